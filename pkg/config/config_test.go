package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("/nonexistent/graphiti-config-dir/config.yaml-does-not-exist")
	// An explicit path that does not exist is an error.
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoadConfigDefaults_NoExplicitPath(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Scope.PreferProject)
	assert.Equal(t, config.DefaultCaptureBatchSize, cfg.Capture.BatchSize)
	assert.Equal(t, config.DefaultCaptureMaxLinesPerFile, cfg.Capture.MaxLinesPerFile)
	assert.Equal(t, config.DefaultIndexerCooldownMinutes, cfg.Indexer.CooldownMinutes)
	assert.Equal(t, config.DefaultIndexerProcessedShaCap, cfg.Indexer.ProcessedShaCap)
	assert.Equal(t, config.DefaultJobQueueWorkerPoolSize, cfg.JobQueue.WorkerPoolSize)
	assert.Equal(t, config.DefaultJobQueueMaxRetries, cfg.JobQueue.MaxRetries)
	assert.Equal(t, config.DefaultJobQueueBaseBackoff, cfg.JobQueue.BaseBackoff)
	assert.Equal(t, config.DefaultJobQueueSoftCap, cfg.JobQueue.SoftCap)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
scope:
  prefer_project: false
capture:
  batch_size: 25
  max_lines_per_file: 200
job_queue:
  worker_pool_size: 8
  max_retries: 5
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.False(t, cfg.Scope.PreferProject)
	assert.Equal(t, 25, cfg.Capture.BatchSize)
	assert.Equal(t, 200, cfg.Capture.MaxLinesPerFile)
	assert.Equal(t, 8, cfg.JobQueue.WorkerPoolSize)
	assert.Equal(t, 5, cfg.JobQueue.MaxRetries)
	// Unspecified fields keep their defaults.
	assert.Equal(t, config.DefaultIndexerCooldownMinutes, cfg.Indexer.CooldownMinutes)
}

func TestLoadConfigFromFile_MalformedYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("capture:\n  batch_size: [unterminated"), 0o644))

	cfg, err := config.LoadConfig(configPath)
	require.Error(t, err)
	require.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfigFromFile_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("totally_unknown_section:\n  foo: bar\n"), 0o644))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCaptureBatchSize, cfg.Capture.BatchSize)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("GRAPHITI_CAPTURE_BATCH_SIZE", "42")
	t.Setenv("GRAPHITI_JOB_QUEUE_WORKER_POOL_SIZE", "16")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Capture.BatchSize)
	assert.Equal(t, 16, cfg.JobQueue.WorkerPoolSize)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("capture:\n  batch_size: 0\n"), 0o644))

	cfg, err := config.LoadConfig(configPath)
	require.Error(t, err)
	require.Nil(t, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidBatchSize)
}

func TestJobQueueBaseBackoffDuration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("job_queue:\n  base_backoff: 20s\n"), 0o644))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.JobQueue.BaseBackoff)
}
