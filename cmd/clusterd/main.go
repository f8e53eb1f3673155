// clusterd consumes clustering jobs from the queue and sweeps eligible
// events on an interval, keeping cluster labels current while the API stays
// responsive.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facepool/internal/apperr"
	"github.com/your-org/facepool/internal/cluster"
	"github.com/your-org/facepool/internal/config"
	"github.com/your-org/facepool/internal/models"
	"github.com/your-org/facepool/internal/observability"
	"github.com/your-org/facepool/internal/queue"
	"github.com/your-org/facepool/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsPort := flag.Int("metrics-port", 9091, "prometheus metrics port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facepool cluster daemon",
		"algorithm", cfg.Clustering.Algorithm,
		"interval", cfg.Clustering.Interval.String())

	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.Dim())
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create job consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	engine := cluster.NewEngine(db, producer, cfg.Clustering.Seed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Explicit jobs from the queue.
	err = consumer.ConsumeClusterJobs(ctx, "clusterd", func(ctx context.Context, msg jetstream.Msg) error {
		var job models.ClusterJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("malformed cluster job, dropping", "error", err)
			return nil
		}
		return runJob(ctx, engine, job)
	}, 2)
	if err != nil {
		slog.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	// Periodic sweep over eligible events.
	go sweepLoop(ctx, db, engine, cfg.Clustering)

	// Metrics endpoint.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *metricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down cluster daemon...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	slog.Info("cluster daemon stopped")
}

// runJob executes one queued job. A run already in flight for the event is
// fine: the work it would have done is happening, so the message acks.
func runJob(ctx context.Context, engine *cluster.Engine, job models.ClusterJob) error {
	result, err := engine.Run(ctx, job.EventCode, job.Algorithm, job.Preprocessing, job.Params)
	if err != nil {
		if errors.Is(err, apperr.ErrClusterRunActive) {
			slog.Info("run already active, skipping job", "event", job.EventCode)
			return nil
		}
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidInput) {
			slog.Warn("dropping unrunnable job", "event", job.EventCode, "error", err)
			return nil
		}
		return err
	}
	slog.Info("job finished", "event", job.EventCode, "clusters", result.Clusters)
	return nil
}

// sweepLoop periodically re-clusters events that qualify under the
// configured policy.
func sweepLoop(ctx context.Context, db *storage.PostgresStore, engine *cluster.Engine, cfg config.ClusteringConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, db, engine, cfg)
		}
	}
}

func sweep(ctx context.Context, db *storage.PostgresStore, engine *cluster.Engine, cfg config.ClusteringConfig) {
	codes, err := db.ListEventCodes(ctx, cfg.OnlyRunningEvents, time.Now())
	if err != nil {
		slog.Error("list events for sweep", "error", err)
		return
	}

	for _, code := range codes {
		if cfg.RequirePendingFaces {
			event, err := db.ResolveEvent(ctx, code)
			if err != nil {
				continue
			}
			pending, err := db.HasPendingFaces(ctx, event.ID)
			if err != nil || !pending {
				continue
			}
		}

		if _, err := engine.Run(ctx, code, cfg.Algorithm, cfg.Preprocessing, nil); err != nil {
			if !errors.Is(err, apperr.ErrClusterRunActive) {
				slog.Warn("sweep run failed", "event", code, "error", err)
			}
		}
	}
}
