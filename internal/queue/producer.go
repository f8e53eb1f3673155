package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facepool/internal/models"
)

const (
	JobsStreamName  = "CLUSTER_JOBS"
	JobsSubjectBase = "cluster.jobs"

	ProcessedStreamName  = "PROCESSED"
	ProcessedSubjectBase = "processed"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        JobsStreamName,
			Subjects:    []string{JobsSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Clustering jobs for the cluster daemon",
		},
		{
			Name:        ProcessedStreamName,
			Subjects:    []string{ProcessedSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Image-processed and clustering-finished notifications",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishClusterJob enqueues a clustering job for one event.
func (p *Producer) PublishClusterJob(ctx context.Context, job models.ClusterJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal cluster job: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", JobsSubjectBase, job.EventCode)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish cluster job: %w", err)
	}
	return nil
}

// PublishImageProcessed announces that detection finished for one image.
func (p *Producer) PublishImageProcessed(ctx context.Context, note models.ImageProcessed) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal processed note: %w", err)
	}

	subject := fmt.Sprintf("%s.image.%s", ProcessedSubjectBase, note.EventCode)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish processed note: %w", err)
	}
	return nil
}

// PublishClusteringFinished announces that a clustering run completed.
func (p *Producer) PublishClusteringFinished(ctx context.Context, note models.ClusteringFinished) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal clustering note: %w", err)
	}

	subject := fmt.Sprintf("%s.cluster.%s", ProcessedSubjectBase, note.EventCode)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish clustering note: %w", err)
	}
	return nil
}

// JobsDepth returns the number of pending clustering jobs.
func (p *Producer) JobsDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, JobsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
