package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/internal/vision"
)

type fakeStore struct {
	event       *models.Event
	matches     []models.FaceMatch
	faceCount   int
	embeddings  [][]float32
	faceIDs     []int64
	extractions int
}

func (f *fakeStore) ResolveEvent(ctx context.Context, code string) (*models.Event, error) {
	if f.event == nil || f.event.Code != code {
		return nil, fmt.Errorf("event %q: %w", code, apperr.ErrNotFound)
	}
	return f.event, nil
}

func (f *fakeStore) NearestFaces(ctx context.Context, eventID int64, embedding []float32, metric storage.Metric, k int) ([]models.FaceMatch, error) {
	if k < len(f.matches) {
		return f.matches[:k], nil
	}
	return f.matches, nil
}

func (f *fakeStore) CountFaces(ctx context.Context, eventID int64) (int, error) {
	return f.faceCount, nil
}

func (f *fakeStore) EventEmbeddings(ctx context.Context, eventID int64) ([]int64, [][]float32, error) {
	return f.faceIDs, f.embeddings, nil
}

func (f *fakeStore) FaceMatchesByIDs(ctx context.Context, eventID int64, faceIDs []int64) (map[int64]models.FaceMatch, error) {
	byID := make(map[int64]models.FaceMatch)
	for _, m := range f.matches {
		byID[m.FaceID] = m
	}
	return byID, nil
}

type fakeExtractor struct {
	faces []vision.DetectedFace
	err   error
	calls int
}

func (f *fakeExtractor) Extract(data []byte) ([]vision.DetectedFace, error) {
	f.calls++
	return f.faces, f.err
}

func (f *fakeExtractor) Dim() int { return 4 }

func oneFace() []vision.DetectedFace {
	return []vision.DetectedFace{{
		Box:       models.BoundingBox{X: 1, Y: 1, Width: 10, Height: 10},
		Embedding: []float32{1, 0, 0, 0},
	}}
}

func testEvent() *models.Event {
	return &models.Event{ID: 1, Code: "summer-gala"}
}

func TestSearchReturnsMatches(t *testing.T) {
	store := &fakeStore{
		event: testEvent(),
		matches: []models.FaceMatch{
			{FaceID: 11, ImageUUID: "aaa", Distance: 0.1, Label: models.AssignedLabel(0)},
			{FaceID: 22, ImageUUID: "bbb", Distance: 0.4, Label: models.NoiseLabel()},
		},
	}
	svc := NewService(store, &fakeExtractor{faces: oneFace()}, 0)

	matches, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(11), matches[0].FaceID)
}

func TestSearchUnknownEventSkipsExtraction(t *testing.T) {
	ex := &fakeExtractor{faces: oneFace()}
	svc := NewService(&fakeStore{}, ex, 0)

	_, err := svc.Search(context.Background(), "nope", []byte("img"), "", 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, ex.calls, "extraction must not run for unknown events")
}

func TestSearchNoFace(t *testing.T) {
	svc := NewService(&fakeStore{event: testEvent()}, &fakeExtractor{}, 0)

	_, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "", 0)
	assert.ErrorIs(t, err, apperr.ErrNoFaceDetected)
}

func TestSearchAmbiguousFace(t *testing.T) {
	faces := append(oneFace(), oneFace()...)
	svc := NewService(&fakeStore{event: testEvent()}, &fakeExtractor{faces: faces}, 0)

	_, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "", 0)
	assert.ErrorIs(t, err, apperr.ErrAmbiguousFace)
}

func TestSearchValidation(t *testing.T) {
	svc := NewService(&fakeStore{event: testEvent()}, &fakeExtractor{faces: oneFace()}, 0)

	_, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "manhattan", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Search(context.Background(), "summer-gala", []byte("img"), "", 101)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Search(context.Background(), "summer-gala", []byte("img"), "", -1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSearchExtractionError(t *testing.T) {
	svc := NewService(&fakeStore{event: testEvent()},
		&fakeExtractor{err: fmt.Errorf("bad payload: %w", apperr.ErrInvalidImage)}, 0)

	_, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidImage)
}

func TestSearchUsesIndexForLargeEvents(t *testing.T) {
	store := &fakeStore{
		event:     testEvent(),
		faceCount: 3,
		faceIDs:   []int64{1, 2, 3},
		embeddings: [][]float32{
			{1, 0, 0, 0},
			{0.9, 0.1, 0, 0},
			{0, 0, 1, 0},
		},
		matches: []models.FaceMatch{
			{FaceID: 1, ImageUUID: "a"},
			{FaceID: 2, ImageUUID: "b"},
			{FaceID: 3, ImageUUID: "c"},
		},
	}
	// Threshold 2 < 3 faces, so the cosine query goes through the index.
	svc := NewService(store, &fakeExtractor{faces: oneFace()}, 2)

	matches, err := svc.Search(context.Background(), "summer-gala", []byte("img"), "cosine", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// The query embedding is {1,0,0,0}: face 1 is exact, face 2 close.
	assert.Equal(t, int64(1), matches[0].FaceID)
	assert.Equal(t, int64(2), matches[1].FaceID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
}
