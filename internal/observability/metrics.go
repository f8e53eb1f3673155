package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepool",
		Name:      "images_ingested_total",
		Help:      "Total number of images accepted for ingestion",
	}, []string{"event"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepool",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in uploaded images",
	}, []string{"event"})

	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepool",
		Name:      "extraction_failures_total",
		Help:      "Total number of failed or timed-out face extractions",
	}, []string{"event"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facepool",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of face detection and embedding extraction",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	ExtractionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facepool",
		Name:      "extraction_queue_depth",
		Help:      "Number of extraction tasks waiting for a worker",
	})

	ClusteringRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepool",
		Name:      "clustering_runs_total",
		Help:      "Total number of clustering runs",
	}, []string{"algorithm", "outcome"})

	ClusteringDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facepool",
		Name:      "clustering_duration_seconds",
		Help:      "Duration of per-event clustering runs",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"algorithm"})

	SimilarityQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facepool",
		Name:      "similarity_queries_total",
		Help:      "Total number of similarity searches",
	}, []string{"metric"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facepool",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facepool",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
