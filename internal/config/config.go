package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Workers    WorkersConfig    `yaml:"workers"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	// Extractor selects the face extractor: "geometric" (default, no external
	// models) or "onnx" (RetinaFace + ArcFace loaded from ModelsDir).
	Extractor          string  `yaml:"extractor"`
	ModelsDir          string  `yaml:"models_dir"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	MinFaceSize        int     `yaml:"min_face_size"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

// Dim reports the embedding width the configured extractor produces. The
// onnx backend's ArcFace model is fixed at 512.
func (v VisionConfig) Dim() int {
	if v.Extractor == "onnx" {
		return 512
	}
	if v.EmbeddingDim > 0 {
		return v.EmbeddingDim
	}
	return 128
}

type WorkersConfig struct {
	Count       int           `yaml:"count"`
	QueueDepth  int           `yaml:"queue_depth"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

type ClusteringConfig struct {
	// Sweep eligibility policy for the periodic clusterd run. Explicit job
	// requests bypass both checks.
	OnlyRunningEvents   bool          `yaml:"only_running_events"`
	RequirePendingFaces bool          `yaml:"require_pending_faces"`
	Interval            time.Duration `yaml:"interval"`
	Algorithm           string        `yaml:"algorithm"`
	Preprocessing       string        `yaml:"preprocessing"`
	Seed                int64         `yaml:"seed"`
}

type SearchConfig struct {
	// UseHNSWAbove enables the in-memory approximate index for events with
	// more faces than this. Zero disables it; the pgvector scan stays the
	// baseline.
	UseHNSWAbove int `yaml:"use_hnsw_above"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.Extractor == "" {
		cfg.Vision.Extractor = "geometric"
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 128
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 24
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = runtime.NumCPU()
	}
	if cfg.Workers.QueueDepth == 0 {
		cfg.Workers.QueueDepth = cfg.Workers.Count * 2
	}
	if cfg.Workers.TaskTimeout == 0 {
		cfg.Workers.TaskTimeout = 30 * time.Second
	}
	if cfg.Clustering.Interval == 0 {
		cfg.Clustering.Interval = 5 * time.Minute
	}
	if cfg.Clustering.Algorithm == "" {
		cfg.Clustering.Algorithm = "dbscan"
	}
	if cfg.Clustering.Preprocessing == "" {
		cfg.Clustering.Preprocessing = "normalize"
	}
	if cfg.Clustering.Seed == 0 {
		cfg.Clustering.Seed = 42
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEPOOL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEPOOL_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEPOOL_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEPOOL_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEPOOL_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEPOOL_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEPOOL_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEPOOL_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEPOOL_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEPOOL_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEPOOL_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEPOOL_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEPOOL_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEPOOL_EXTRACTOR"); v != "" {
		cfg.Vision.Extractor = v
	}
	if v := os.Getenv("FACEPOOL_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}
}
