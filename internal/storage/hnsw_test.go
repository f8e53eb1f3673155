package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepool/internal/apperr"
)

func TestMetricOperator(t *testing.T) {
	cases := []struct {
		metric Metric
		want   string
	}{
		{MetricCosine, "<=>"},
		{MetricL2, "<->"},
		{MetricInnerProduct, "<#>"},
	}
	for _, tc := range cases {
		op, err := tc.metric.Operator()
		require.NoError(t, err)
		assert.Equal(t, tc.want, op)
	}

	_, err := Metric("manhattan").Operator()
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFaceIndexSearch(t *testing.T) {
	idx := NewFaceIndex()

	ids := []int64{11, 22, 33}
	embeddings := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 0, 1, 0},
	}
	require.NoError(t, idx.Rebuild(ids, embeddings))
	assert.Equal(t, 3, idx.Count())

	got, distances, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(11), got[0])
	assert.Equal(t, int64(22), got[1])
	assert.InDelta(t, 0, distances[0], 1e-6)
	assert.Less(t, distances[0], distances[1])
}

func TestFaceIndexRebuildLengthMismatch(t *testing.T) {
	idx := NewFaceIndex()
	err := idx.Rebuild([]int64{1, 2}, [][]float32{{1, 0}})
	assert.Error(t, err)
}

func TestFaceIndexSearchUnbuilt(t *testing.T) {
	idx := NewFaceIndex()
	_, _, err := idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestFaceIndexEmptyRebuildClearsGraph(t *testing.T) {
	idx := NewFaceIndex()
	require.NoError(t, idx.Rebuild([]int64{5}, [][]float32{{1, 0}}))
	require.Equal(t, 1, idx.Count())

	require.NoError(t, idx.Rebuild(nil, nil))
	assert.Equal(t, 0, idx.Count())
	_, _, err := idx.Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
}
