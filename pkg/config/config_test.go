package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Ingestion.PageSize)
	assert.Equal(t, 4, cfg.Ingestion.FanOut)
	assert.True(t, cfg.Ingestion.BlockStartup)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
source:
  baseUrl: http://source.local/messages/
ingestion:
  pageSize: 50
  fanOut: 8
  serverBackoff: 3s
search:
  maxLimit: 200
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("MS_INGESTION_FAN_OUT", "2")
	t.Setenv("MS_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://source.local/messages/", cfg.Source.BaseURL)
	assert.Equal(t, 50, cfg.Ingestion.PageSize)
	assert.Equal(t, 2, cfg.Ingestion.FanOut)
	assert.Equal(t, 3*time.Second, cfg.Ingestion.ServerBackoff)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingestion.NetworkBackoff)
	assert.Equal(t, 200, cfg.Search.MaxLimit)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Ingestion.PageSize = 0
	cfg.Ingestion.FanOut = -1
	cfg.Source.BaseURL = " "

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pageSize")
	assert.Contains(t, err.Error(), "fanOut")
	assert.Contains(t, err.Error(), "baseUrl")
}
