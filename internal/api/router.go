package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facepool/internal/api/handlers"
	"github.com/your-org/facepool/internal/api/ws"
	"github.com/your-org/facepool/internal/auth"
	"github.com/your-org/facepool/internal/ingest"
	"github.com/your-org/facepool/internal/queue"
	"github.com/your-org/facepool/internal/search"
	"github.com/your-org/facepool/internal/storage"
	"github.com/your-org/facepool/internal/summary"
)

type RouterConfig struct {
	APIKey      string
	DB          *storage.PostgresStore
	MinIO       *storage.MinIOStore
	Producer    *queue.Producer
	Hub         *ws.Hub
	Coordinator *ingest.Coordinator
	Search      *search.Service
	Summaries   *summary.Service

	DefaultAlgorithm     string
	DefaultPreprocessing string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAPIKey(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Events
	eventH := handlers.NewEventHandler(cfg.DB)
	v1.POST("/events", eventH.Create)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:code", eventH.Get)
	v1.DELETE("/events/:code", eventH.Delete)

	// Images
	imageH := handlers.NewImageHandler(cfg.DB, cfg.Coordinator)
	v1.POST("/events/:code/images", imageH.Upload)
	v1.GET("/events/:code/images", imageH.List)
	v1.GET("/images/:uuid", imageH.Get)
	v1.DELETE("/images/:uuid", imageH.Delete)

	// Clustering
	clusterH := handlers.NewClusterHandler(cfg.Summaries, cfg.Producer,
		cfg.DefaultAlgorithm, cfg.DefaultPreprocessing)
	v1.POST("/events/:code/clusters/run", clusterH.Run)
	v1.GET("/events/:code/clusters", clusterH.Summaries)

	// Similarity search
	searchH := handlers.NewSearchHandler(cfg.Search)
	v1.POST("/events/:code/search", searchH.Search)

	return r
}
