// Package llmconfig loads the llm.toml configuration file that drives the
// LLM transport: cloud/local endpoints, retry/timeout/quota policy, and the
// failed-request queue.
package llmconfig

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// CloudConfig configures the cloud-primary endpoint.
type CloudConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// LocalConfig configures the local-fallback endpoint.
type LocalConfig struct {
	Endpoint      string   `toml:"endpoint"`
	FallbackChain []string `toml:"fallback_chain"`
}

// EmbeddingsConfig configures the embedding model, routed to local only.
type EmbeddingsConfig struct {
	Model string `toml:"model"`
}

// RetryConfig configures cloud retry policy.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	DelaySec    int `toml:"delay_sec"`
}

// TimeoutConfig configures per-attempt connect/read timeouts, in seconds.
type TimeoutConfig struct {
	CloudConnectSec int `toml:"cloud_connect_sec"`
	LocalConnectSec int `toml:"local_connect_sec"`
	ReadSec         int `toml:"read_sec"`
}

// QuotaConfig configures cooldown behavior on rate-limit responses.
type QuotaConfig struct {
	CooldownSec int `toml:"cooldown_sec"`
}

// LoggingConfig configures failover-event logging verbosity.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// QueueConfig configures the persistent failed-request queue (4.C).
type QueueConfig struct {
	MaxSize int `toml:"max_size"`
	TTLHours int `toml:"ttl_hours"`
}

// RerankingConfig configures an optional reranking model for search results.
type RerankingConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
}

// Config is the full llm.toml shape.
type Config struct {
	Cloud      CloudConfig      `toml:"cloud"`
	Local      LocalConfig      `toml:"local"`
	Embeddings EmbeddingsConfig `toml:"embeddings"`
	Retry      RetryConfig      `toml:"retry"`
	Timeout    TimeoutConfig    `toml:"timeout"`
	Quota      QuotaConfig      `toml:"quota"`
	Logging    LoggingConfig    `toml:"logging"`
	Queue      QueueConfig      `toml:"queue"`
	Reranking  RerankingConfig  `toml:"reranking"`
}

// ReadTimeout returns the configured read timeout as a time.Duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Timeout.ReadSec) * time.Second
}

// CloudConnectTimeout returns the configured cloud connect timeout.
func (c Config) CloudConnectTimeout() time.Duration {
	return time.Duration(c.Timeout.CloudConnectSec) * time.Second
}

// LocalConnectTimeout returns the configured local connect timeout.
func (c Config) LocalConnectTimeout() time.Duration {
	return time.Duration(c.Timeout.LocalConnectSec) * time.Second
}

// RetryDelay returns the fixed delay between cloud retry attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelaySec) * time.Second
}

// QueueTTL returns the failed-request queue item time-to-live.
func (c Config) QueueTTL() time.Duration {
	return time.Duration(c.Queue.TTLHours) * time.Hour
}

// Default returns a Config with every typed default from the spec's data
// model constants.
func Default() Config {
	return Config{
		Cloud: CloudConfig{
			Endpoint: "https://api.ollama.com",
			Model:    "gpt-oss:120b-cloud",
		},
		Local: LocalConfig{
			Endpoint:      "http://localhost:11434",
			FallbackChain: []string{"llama3.1:8b", "llama3.1:70b", "qwen2.5:32b"},
		},
		Embeddings: EmbeddingsConfig{Model: "nomic-embed-text"},
		Retry:      RetryConfig{MaxAttempts: 3, DelaySec: 10},
		Timeout:    TimeoutConfig{CloudConnectSec: 5, LocalConnectSec: 2, ReadSec: 180},
		Quota:      QuotaConfig{CooldownSec: 600},
		Logging:    LoggingConfig{Level: "info"},
		Queue:      QueueConfig{MaxSize: 1000, TTLHours: 24},
		Reranking:  RerankingConfig{Enabled: false},
	}
}

const (
	envAPIKey        = "OLLAMA_API_KEY"
	envCloudEndpoint = "OLLAMA_CLOUD_ENDPOINT"
	envLocalEndpoint = "OLLAMA_LOCAL_ENDPOINT"
)

// Load reads llm.toml at path, falling back to Default() fields for
// anything unset, then applies OLLAMA_* environment overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envAPIKey); v != "" {
		cfg.Cloud.APIKey = v
	}

	if v := os.Getenv(envCloudEndpoint); v != "" {
		cfg.Cloud.Endpoint = v
	}

	if v := os.Getenv(envLocalEndpoint); v != "" {
		cfg.Local.Endpoint = v
	}
}
