package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/observability"
)

// Notifier publishes run-completed notifications. Implemented by
// queue.Producer; nil disables publishing.
type Notifier interface {
	PublishClusteringFinished(ctx context.Context, note models.ClusteringFinished) error
}

// Store is the slice of the face store the engine needs. Implemented by
// storage.PostgresStore.
type Store interface {
	ResolveEvent(ctx context.Context, code string) (*models.Event, error)
	EventEmbeddings(ctx context.Context, eventID int64) ([]int64, [][]float32, error)
	BulkUpdateLabels(ctx context.Context, eventID int64, faceIDs []int64, labels []models.ClusterLabel) error
	TryLockEvent(ctx context.Context, eventID int64) (release func(), ok bool, err error)
}

// Engine runs clustering over an event's face embeddings and writes the
// resulting labels back in one batch. At most one run per event executes at
// a time, across every process holding the same store; overlapping requests
// are rejected rather than queued.
type Engine struct {
	db       Store
	notifier Notifier
	seed     int64

	mu      sync.Mutex
	running map[int64]bool
}

func NewEngine(db Store, notifier Notifier, seed int64) *Engine {
	if seed == 0 {
		seed = 42
	}
	return &Engine{
		db:       db,
		notifier: notifier,
		seed:     seed,
		running:  make(map[int64]bool),
	}
}

// Result summarizes one completed run.
type Result struct {
	EventCode string
	Algorithm string
	Faces     int
	Clusters  int
	Noise     int
}

// Run executes one clustering pass for the event. Fewer than two faces is a
// no-op. An algorithm failure marks every face as noise so a previous run's
// labels cannot survive alongside fresh pending ones.
func (e *Engine) Run(ctx context.Context, eventCode, algorithmName, preprocessing string, rawParams map[string]string) (*Result, error) {
	event, err := e.db.ResolveEvent(ctx, eventCode)
	if err != nil {
		return nil, err
	}

	algo, err := Get(algorithmName)
	if err != nil {
		return nil, err
	}
	params, err := ParseParams(rawParams, e.seed)
	if err != nil {
		return nil, err
	}

	if !e.tryAcquire(event.ID) {
		return nil, fmt.Errorf("event %s: %w", eventCode, apperr.ErrClusterRunActive)
	}
	defer e.release(event.ID)

	// The in-process map only guards this engine; the store lock excludes
	// runs in other processes touching the same event.
	unlock, ok, err := e.db.TryLockEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventCode, apperr.ErrClusterRunActive)
	}
	defer unlock()

	start := time.Now()
	result, err := e.run(ctx, event, algo, preprocessing, params)
	observability.ClusteringDuration.WithLabelValues(algorithmName).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ClusteringRuns.WithLabelValues(algorithmName, outcome).Inc()

	if err == nil && e.notifier != nil {
		note := models.ClusteringFinished{
			EventCode:  eventCode,
			Algorithm:  algorithmName,
			Faces:      result.Faces,
			Clusters:   result.Clusters,
			FinishedAt: time.Now().UTC(),
		}
		if pubErr := e.notifier.PublishClusteringFinished(ctx, note); pubErr != nil {
			slog.Warn("publish clustering note", "event", eventCode, "error", pubErr)
		}
	}
	return result, err
}

func (e *Engine) run(ctx context.Context, event *models.Event, algo Algorithm, preprocessing string, params Params) (*Result, error) {
	faceIDs, embeddings, err := e.db.EventEmbeddings(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{EventCode: event.Code, Algorithm: algo.Name(), Faces: len(faceIDs)}
	if len(faceIDs) < 2 {
		slog.Info("too few faces to cluster", "event", event.Code, "faces", len(faceIDs))
		return result, nil
	}

	matrix := make([][]float64, len(embeddings))
	for i, emb := range embeddings {
		row := make([]float64, len(emb))
		for j, v := range emb {
			row[j] = float64(v)
		}
		matrix[i] = row
	}

	matrix, err = Preprocess(preprocessing, matrix, params.Seed)
	if err != nil {
		return nil, err
	}

	raw, fitErr := algo.Fit(matrix, params)
	if fitErr != nil {
		// Demote everything to noise; the faces stay searchable and a later
		// run can still claim them.
		noise := make([]models.ClusterLabel, len(faceIDs))
		for i := range noise {
			noise[i] = models.NoiseLabel()
		}
		if updErr := e.db.BulkUpdateLabels(ctx, event.ID, faceIDs, noise); updErr != nil {
			slog.Error("mark noise after failed run", "event", event.Code, "error", updErr)
		}
		return result, fmt.Errorf("fit %s: %v: %w", algo.Name(), fitErr, apperr.ErrClusteringFailure)
	}

	labels, clusters, noise := remapLabels(raw)
	if err := e.db.BulkUpdateLabels(ctx, event.ID, faceIDs, labels); err != nil {
		return nil, err
	}

	result.Clusters = clusters
	result.Noise = noise
	slog.Info("clustering finished", "event", event.Code, "algorithm", algo.Name(),
		"faces", result.Faces, "clusters", clusters, "noise", noise)
	return result, nil
}

// remapLabels renumbers raw algorithm output into contiguous ids starting
// at zero in first-seen order. Negative raw labels become noise.
func remapLabels(raw []int) ([]models.ClusterLabel, int, int) {
	mapping := make(map[int]int)
	labels := make([]models.ClusterLabel, len(raw))
	noise := 0

	for i, r := range raw {
		if r < 0 {
			labels[i] = models.NoiseLabel()
			noise++
			continue
		}
		id, ok := mapping[r]
		if !ok {
			id = len(mapping)
			mapping[r] = id
		}
		labels[i] = models.AssignedLabel(id)
	}
	return labels, len(mapping), noise
}

func (e *Engine) tryAcquire(eventID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[eventID] {
		return false
	}
	e.running[eventID] = true
	return true
}

func (e *Engine) release(eventID int64) {
	e.mu.Lock()
	delete(e.running, eventID)
	e.mu.Unlock()
}
