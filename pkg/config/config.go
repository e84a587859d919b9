// Package config provides configuration loading and validation for the graphiti CLI and MCP server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidBatchSize     = errors.New("capture batch size must be positive")
	ErrInvalidMaxLines      = errors.New("max lines per file must be positive")
	ErrInvalidWorkerPool    = errors.New("job queue worker pool size must be positive")
	ErrInvalidMaxRetries    = errors.New("job queue max retries must be non-negative")
	ErrInvalidIndexCooldown = errors.New("indexer cooldown must be non-negative")
)

// Config holds all configuration for the graphiti CLI and MCP server.
type Config struct {
	Scope    ScopeConfig    `mapstructure:"scope"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	JobQueue JobQueueConfig `mapstructure:"job_queue"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScopeConfig controls global-vs-project scope resolution (4.K).
type ScopeConfig struct {
	// PreferProject makes operations resolve to PROJECT scope when a project
	// root is found, rather than defaulting to GLOBAL.
	PreferProject bool `mapstructure:"prefer_project"`
}

// CaptureConfig controls the capture pipeline (4.E/4.G) batching and truncation.
type CaptureConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	MaxLinesPerFile int `mapstructure:"max_lines_per_file"`
}

// IndexerConfig controls the git history indexer (4.I).
type IndexerConfig struct {
	CooldownMinutes    int `mapstructure:"cooldown_minutes"`
	ProcessedShaCap     int `mapstructure:"processed_sha_cap"`
	LargeDiffLineBudget int `mapstructure:"large_diff_line_budget"`
	SummaryWordBudget   int `mapstructure:"summary_word_budget"`
	TruncateCharBudget  int `mapstructure:"truncate_char_budget"`
}

// JobQueueConfig controls the job queue and background worker (4.H).
type JobQueueConfig struct {
	WorkerPoolSize    int           `mapstructure:"worker_pool_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	SoftCap           int           `mapstructure:"soft_cap"`
	ShutdownWait      time.Duration `mapstructure:"shutdown_wait"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches standard locations; a file not found there
// is not an error (defaults apply), but an explicit configPath that does
// not exist is.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.graphiti")
	}

	viperCfg.SetEnvPrefix("GRAPHITI")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("scope.prefer_project", DefaultScopePreferProject)

	viperCfg.SetDefault("capture.batch_size", DefaultCaptureBatchSize)
	viperCfg.SetDefault("capture.max_lines_per_file", DefaultCaptureMaxLinesPerFile)

	viperCfg.SetDefault("indexer.cooldown_minutes", DefaultIndexerCooldownMinutes)
	viperCfg.SetDefault("indexer.processed_sha_cap", DefaultIndexerProcessedShaCap)
	viperCfg.SetDefault("indexer.large_diff_line_budget", DefaultIndexerLargeDiffLineBudget)
	viperCfg.SetDefault("indexer.summary_word_budget", DefaultIndexerSummaryWordBudget)
	viperCfg.SetDefault("indexer.truncate_char_budget", DefaultIndexerTruncateCharBudget)

	viperCfg.SetDefault("job_queue.worker_pool_size", DefaultJobQueueWorkerPoolSize)
	viperCfg.SetDefault("job_queue.max_retries", DefaultJobQueueMaxRetries)
	viperCfg.SetDefault("job_queue.base_backoff", DefaultJobQueueBaseBackoff)
	viperCfg.SetDefault("job_queue.soft_cap", DefaultJobQueueSoftCap)
	viperCfg.SetDefault("job_queue.shutdown_wait", DefaultJobQueueShutdownWait)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
}

func validateConfig(cfg *Config) error {
	if cfg.Capture.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, cfg.Capture.BatchSize)
	}

	if cfg.Capture.MaxLinesPerFile <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxLines, cfg.Capture.MaxLinesPerFile)
	}

	if cfg.JobQueue.WorkerPoolSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerPool, cfg.JobQueue.WorkerPoolSize)
	}

	if cfg.JobQueue.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRetries, cfg.JobQueue.MaxRetries)
	}

	if cfg.Indexer.CooldownMinutes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndexCooldown, cfg.Indexer.CooldownMinutes)
	}

	return nil
}
