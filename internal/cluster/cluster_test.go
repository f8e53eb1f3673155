package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepool/internal/apperr"
)

// twoGroups builds two tight point groups far apart, plus optional
// stragglers nowhere near either.
func twoGroups(perGroup int, stragglers ...[]float64) [][]float64 {
	var data [][]float64
	for i := 0; i < perGroup; i++ {
		off := float64(i) * 0.01
		data = append(data, []float64{0 + off, 0 + off})
	}
	for i := 0; i < perGroup; i++ {
		off := float64(i) * 0.01
		data = append(data, []float64{10 + off, 10 + off})
	}
	data = append(data, stragglers...)
	return data
}

func clusterCount(labels []int) int {
	seen := map[int]bool{}
	for _, l := range labels {
		if l >= 0 {
			seen[l] = true
		}
	}
	return len(seen)
}

func TestDBSCANSeparatesGroups(t *testing.T) {
	data := twoGroups(5)

	labels, err := (&DBSCAN{}).Fit(data, Params{Eps: 0.5, MinSamples: 3})
	require.NoError(t, err)
	require.Len(t, labels, 10)

	assert.Equal(t, 2, clusterCount(labels))
	// Every point inside a group carries that group's label.
	for i := 1; i < 5; i++ {
		assert.Equal(t, labels[0], labels[i])
		assert.Equal(t, labels[5], labels[5+i])
	}
	assert.NotEqual(t, labels[0], labels[5])
}

func TestDBSCANMarksStragglersNoise(t *testing.T) {
	data := twoGroups(5, []float64{100, -100})

	labels, err := (&DBSCAN{}).Fit(data, Params{Eps: 0.5, MinSamples: 3})
	require.NoError(t, err)
	assert.Equal(t, noisePoint, labels[len(labels)-1])
}

func TestAgglomerativeSeparatesGroups(t *testing.T) {
	data := twoGroups(4)

	labels, err := (&Agglomerative{}).Fit(data, Params{Eps: 1.0})
	require.NoError(t, err)
	assert.Equal(t, 2, clusterCount(labels))
	assert.Equal(t, labels[0], labels[3])
	assert.NotEqual(t, labels[0], labels[4])
}

func TestAgglomerativeHonorsClusterCount(t *testing.T) {
	data := twoGroups(4)

	labels, err := (&Agglomerative{}).Fit(data, Params{NumClusters: 1, Eps: 1e9})
	require.NoError(t, err)
	assert.Equal(t, 1, clusterCount(labels))
}

func TestChineseWhispersSeparatesGroups(t *testing.T) {
	data := twoGroups(5)
	p := Params{Eps: 0.5, Seed: 42, Iterations: 20}

	labels, err := (&ChineseWhispers{}).Fit(data, p)
	require.NoError(t, err)
	assert.Equal(t, 2, clusterCount(labels))

	// Same input and seed must reproduce the labeling exactly.
	again, err := (&ChineseWhispers{}).Fit(data, p)
	require.NoError(t, err)
	assert.Equal(t, labels, again)
}

func TestChineseWhispersIsolatedPointIsNoise(t *testing.T) {
	data := twoGroups(3, []float64{500, 500})

	labels, err := (&ChineseWhispers{}).Fit(data, Params{Eps: 0.5, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, noisePoint, labels[len(labels)-1])
}

func TestAffinityPropagationSeparatesGroups(t *testing.T) {
	data := twoGroups(4)

	labels, err := (&AffinityPropagation{}).Fit(data, Params{Damping: 0.9, Iterations: 200})
	require.NoError(t, err)
	require.Len(t, labels, 8)

	assert.Equal(t, labels[0], labels[3])
	assert.Equal(t, labels[4], labels[7])
	assert.NotEqual(t, labels[0], labels[4])
}

func TestAffinityPropagationSinglePoint(t *testing.T) {
	labels, err := (&AffinityPropagation{}).Fit([][]float64{{1, 2}}, Params{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, labels)
}

func TestGetUnknownAlgorithm(t *testing.T) {
	_, err := Get("kmeans")
	assert.Error(t, err)

	for _, name := range []string{"dbscan", "agglomerative", "chinese_whispers", "affinity_propagation"} {
		algo, err := Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, algo.Name())
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(map[string]string{
		"eps":         "0.35",
		"min_samples": "5",
		"seed":        "7",
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, 0.35, p.Eps)
	assert.Equal(t, 5, p.MinSamples)
	assert.Equal(t, int64(7), p.Seed)

	_, err = ParseParams(map[string]string{"eps": "not-a-number"}, 42)
	assert.Error(t, err)

	// Nil params still produce usable defaults seeded from the config.
	p, err = ParseParams(nil, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.Seed)
	assert.Greater(t, p.Eps, 0.0)
	assert.Equal(t, MetricEuclidean, p.Metric)
}

func TestParseParamsMetric(t *testing.T) {
	p, err := ParseParams(map[string]string{"metric": "cosine"}, 42)
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, p.Metric)

	_, err = ParseParams(map[string]string{"metric": "manhattan"}, 42)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDBSCANCosineMetricGroupsByDirection(t *testing.T) {
	// Same direction at different magnitudes: cosine sees two tight groups,
	// euclidean would scatter them.
	data := [][]float64{
		{1, 0}, {2, 0}, {3, 0},
		{0, 1}, {0, 2}, {0, 3},
	}
	p := Params{Eps: 0.1, MinSamples: 2, Metric: MetricCosine}
	p.Normalize()

	labels, err := (&DBSCAN{}).Fit(data, p)
	require.NoError(t, err)

	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.Equal(t, labels[3], labels[5])
	assert.NotEqual(t, labels[0], labels[3])
	assert.Equal(t, 2, clusterCount(labels))
}

func TestRemapLabels(t *testing.T) {
	labels, clusters, noise := remapLabels([]int{7, -1, 7, 3, 3, -1, 9})

	assert.Equal(t, 3, clusters)
	assert.Equal(t, 2, noise)

	// First-seen order: 7 -> 0, 3 -> 1, 9 -> 2.
	id, ok := labels[0].Cluster()
	require.True(t, ok)
	assert.Equal(t, 0, id)

	id, _ = labels[3].Cluster()
	assert.Equal(t, 1, id)

	id, _ = labels[6].Cluster()
	assert.Equal(t, 2, id)

	assert.True(t, labels[1].IsNoise())
	assert.True(t, labels[5].IsNoise())
}

func TestPreprocessNormalize(t *testing.T) {
	out, err := Preprocess(PreprocessNormalize, [][]float64{{3, 4}, {0, 0}}, 42)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, math.Hypot(out[0][0], out[0][1]), 1e-9)
	// The zero vector stays zero instead of dividing by zero.
	assert.Equal(t, []float64{0, 0}, out[1])
}

func TestPreprocessPCAFallsBackOnDegenerateData(t *testing.T) {
	// Identical rows have no variance; the transform falls back to raw.
	data := [][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	out, err := Preprocess(PreprocessPCA, data, 42)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestPreprocessPCAReducesDimensions(t *testing.T) {
	var data [][]float64
	for i := 0; i < 50; i++ {
		row := make([]float64, 64)
		for j := range row {
			row[j] = float64((i*31+j*17)%13) / 13.0
		}
		data = append(data, row)
	}

	out, err := Preprocess(PreprocessPCA, data, 42)
	require.NoError(t, err)
	require.Len(t, out, 50)
	assert.LessOrEqual(t, len(out[0]), pcaComponents)
	assert.Greater(t, len(out[0]), 0)
}

func TestPreprocessUnknownMode(t *testing.T) {
	_, err := Preprocess("whitening", [][]float64{{1}}, 42)
	assert.Error(t, err)
}

func TestPreprocessNone(t *testing.T) {
	data := [][]float64{{1, 2}}
	out, err := Preprocess(PreprocessNone, data, 42)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
