package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: facepool
  user: app
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "geometric", cfg.Vision.Extractor)
	assert.Equal(t, 128, cfg.Vision.EmbeddingDim)
	assert.Equal(t, "dbscan", cfg.Clustering.Algorithm)
	assert.Equal(t, "normalize", cfg.Clustering.Preprocessing)
	assert.Equal(t, int64(42), cfg.Clustering.Seed)
	assert.Equal(t, 5*time.Minute, cfg.Clustering.Interval)
	assert.Equal(t, 30*time.Second, cfg.Workers.TaskTimeout)
	assert.Greater(t, cfg.Workers.Count, 0)
	assert.Equal(t, cfg.Workers.Count*2, cfg.Workers.QueueDepth)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  host: localhost
`)

	t.Setenv("FACEPOOL_SERVER_PORT", "9999")
	t.Setenv("FACEPOOL_DB_HOST", "db.internal")
	t.Setenv("FACEPOOL_API_KEY", "sekret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "sekret", cfg.Server.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, Name: "n", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", d.DSN())
}

func TestVisionDim(t *testing.T) {
	assert.Equal(t, 512, VisionConfig{Extractor: "onnx"}.Dim())
	assert.Equal(t, 128, VisionConfig{Extractor: "geometric"}.Dim())
	assert.Equal(t, 256, VisionConfig{Extractor: "geometric", EmbeddingDim: 256}.Dim())
}
