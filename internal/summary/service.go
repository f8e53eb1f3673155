// Package summary reports the cluster composition of an event: one entry
// per label with its face count and a few representative faces.
package summary

import (
	"context"
	"fmt"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
)

const (
	defaultSampleSize = 3
	maxSampleSize     = 10
)

// Store is the slice of the face store the service needs.
type Store interface {
	ResolveEvent(ctx context.Context, code string) (*models.Event, error)
	ClusterSummaries(ctx context.Context, eventID int64, sampleSize int) ([]models.ClusterSummary, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Summaries returns the event's clusters with up to sampleSize sample faces
// each. Pending and noise faces appear as their own entries, so the caller
// sees the whole pool.
func (s *Service) Summaries(ctx context.Context, eventCode string, sampleSize int) ([]models.ClusterSummary, error) {
	if sampleSize == 0 {
		sampleSize = defaultSampleSize
	}
	if sampleSize < 1 || sampleSize > maxSampleSize {
		return nil, fmt.Errorf("sample_size %d out of range [1,%d]: %w", sampleSize, maxSampleSize, apperr.ErrInvalidInput)
	}

	event, err := s.store.ResolveEvent(ctx, eventCode)
	if err != nil {
		return nil, err
	}
	return s.store.ClusterSummaries(ctx, event.ID, sampleSize)
}
