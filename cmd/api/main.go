package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facepool/internal/api"
	"github.com/your-org/facepool/internal/api/ws"
	"github.com/your-org/facepool/internal/config"
	"github.com/your-org/facepool/internal/ingest"
	"github.com/your-org/facepool/internal/observability"
	"github.com/your-org/facepool/internal/queue"
	"github.com/your-org/facepool/internal/search"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/internal/summary"
	"github.com/your-org/facepool/internal/vision"
	"github.com/your-org/facepool/internal/workerpool"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facepool API service", "port", cfg.Server.Port)

	// Embedding extractor. The store's vector width follows it.
	extractor, cleanup, err := buildExtractor(cfg.Vision)
	if err != nil {
		slog.Error("init extractor", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, extractor.Dim())
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relay processed notifications from other instances to WS clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create notification consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeProcessed(ctx, "api-processed", func(ctx context.Context, msg jetstream.Msg) error {
		hub.BroadcastRaw(msg.Data())
		return nil
	})
	if err != nil {
		slog.Warn("start notification consumer", "error", err)
	}

	// Extraction worker pool
	pool := workerpool.New(cfg.Workers.Count, cfg.Workers.QueueDepth, cfg.Workers.TaskTimeout)

	searchSvc := search.NewService(db, extractor, cfg.Search.UseHNSWAbove)
	coordinator := ingest.NewCoordinator(db, minioStore, extractor, pool, producer, hub, searchSvc)
	summarySvc := summary.NewService(db)

	router := api.NewRouter(api.RouterConfig{
		APIKey:               cfg.Server.APIKey,
		DB:                   db,
		MinIO:                minioStore,
		Producer:             producer,
		Hub:                  hub,
		Coordinator:          coordinator,
		Search:               searchSvc,
		Summaries:            summarySvc,
		DefaultAlgorithm:     cfg.Clustering.Algorithm,
		DefaultPreprocessing: cfg.Clustering.Preprocessing,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker pool shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// buildExtractor picks the configured backend. The onnx backend needs the
// runtime shared library on the host; geometric needs nothing.
func buildExtractor(cfg config.VisionConfig) (vision.Extractor, func(), error) {
	switch cfg.Extractor {
	case "", "geometric":
		return vision.NewGeometricExtractor(cfg), func() {}, nil
	case "onnx":
		ort.SetSharedLibraryPath(onnxLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, nil, fmt.Errorf("onnx runtime init: %w", err)
		}
		ex, err := vision.NewONNXExtractor(cfg)
		if err != nil {
			ort.DestroyEnvironment()
			return nil, nil, err
		}
		cleanup := func() {
			ex.Close()
			ort.DestroyEnvironment()
		}
		return ex, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}

// onnxLibPath returns the ONNX Runtime shared library path.
func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
