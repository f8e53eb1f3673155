// Package search answers "who else is this person" queries: one face in,
// the event's nearest faces out.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/observability"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/internal/vision"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

// Store is the slice of the face store the service needs.
type Store interface {
	ResolveEvent(ctx context.Context, code string) (*models.Event, error)
	NearestFaces(ctx context.Context, eventID int64, embedding []float32, metric storage.Metric, k int) ([]models.FaceMatch, error)
	CountFaces(ctx context.Context, eventID int64) (int, error)
	EventEmbeddings(ctx context.Context, eventID int64) ([]int64, [][]float32, error)
	FaceMatchesByIDs(ctx context.Context, eventID int64, faceIDs []int64) (map[int64]models.FaceMatch, error)
}

// Service extracts the query face and delegates the neighbor scan either to
// pgvector or, for large events with cosine queries, to a cached in-memory
// index.
type Service struct {
	store        Store
	extractor    vision.Extractor
	useHNSWAbove int

	mu      sync.Mutex
	indexes map[int64]*storage.FaceIndex
}

// NewService creates a search service. useHNSWAbove <= 0 disables the
// in-memory index entirely.
func NewService(store Store, extractor vision.Extractor, useHNSWAbove int) *Service {
	return &Service{
		store:        store,
		extractor:    extractor,
		useHNSWAbove: useHNSWAbove,
		indexes:      make(map[int64]*storage.FaceIndex),
	}
}

// Search finds the topK faces of the event most similar to the single face
// in the query image. The query must contain exactly one face.
func (s *Service) Search(ctx context.Context, eventCode string, imageData []byte, metric string, topK int) ([]models.FaceMatch, error) {
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, fmt.Errorf("top_k %d out of range [1,%d]: %w", topK, maxTopK, apperr.ErrInvalidInput)
	}
	if metric == "" {
		metric = string(storage.MetricCosine)
	}
	m := storage.Metric(metric)
	if _, err := m.Operator(); err != nil {
		return nil, err
	}

	// Event existence is checked before spending time on extraction.
	event, err := s.store.ResolveEvent(ctx, eventCode)
	if err != nil {
		return nil, err
	}

	faces, err := s.extractor.Extract(imageData)
	if err != nil {
		return nil, err
	}
	switch {
	case len(faces) == 0:
		return nil, fmt.Errorf("query image: %w", apperr.ErrNoFaceDetected)
	case len(faces) > 1:
		return nil, fmt.Errorf("query image has %d faces: %w", len(faces), apperr.ErrAmbiguousFace)
	}
	embedding := faces[0].Embedding

	observability.SimilarityQueries.WithLabelValues(metric).Inc()

	if m == storage.MetricCosine && s.useHNSWAbove > 0 {
		matches, ok, err := s.searchIndexed(ctx, event.ID, embedding, topK)
		if err != nil {
			slog.Warn("indexed search failed, falling back to exhaustive scan",
				"event", eventCode, "error", err)
		} else if ok {
			return matches, nil
		}
	}

	return s.store.NearestFaces(ctx, event.ID, embedding, m, topK)
}

// searchIndexed serves the query from the per-event index when the event is
// large enough. ok=false means the caller should scan exhaustively.
func (s *Service) searchIndexed(ctx context.Context, eventID int64, embedding []float32, topK int) ([]models.FaceMatch, bool, error) {
	count, err := s.store.CountFaces(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	if count <= s.useHNSWAbove {
		return nil, false, nil
	}

	idx, err := s.eventIndex(ctx, eventID, count)
	if err != nil {
		return nil, false, err
	}

	ids, distances, err := idx.Search(embedding, topK)
	if err != nil {
		return nil, false, err
	}

	byID, err := s.store.FaceMatchesByIDs(ctx, eventID, ids)
	if err != nil {
		return nil, false, err
	}

	matches := make([]models.FaceMatch, 0, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		m.Distance = distances[i]
		matches = append(matches, m)
	}
	return matches, true, nil
}

// eventIndex returns the cached index for the event, rebuilding it when the
// face count moved since the last build.
func (s *Service) eventIndex(ctx context.Context, eventID int64, count int) (*storage.FaceIndex, error) {
	s.mu.Lock()
	idx, ok := s.indexes[eventID]
	if !ok {
		idx = storage.NewFaceIndex()
		s.indexes[eventID] = idx
	}
	s.mu.Unlock()

	if idx.Count() != count {
		faceIDs, embeddings, err := s.store.EventEmbeddings(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if err := idx.Rebuild(faceIDs, embeddings); err != nil {
			return nil, err
		}
		slog.Info("rebuilt face index", "event_id", eventID, "faces", len(faceIDs))
	}
	return idx, nil
}

// InvalidateIndex drops the cached index for an event, forcing a rebuild on
// the next large query.
func (s *Service) InvalidateIndex(eventID int64) {
	s.mu.Lock()
	delete(s.indexes, eventID)
	s.mu.Unlock()
}
