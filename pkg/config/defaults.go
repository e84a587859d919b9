// Package config provides configuration loading and validation for the graphiti CLI and MCP server.
package config

import "time"

// Scope defaults (4.K).
const (
	DefaultScopePreferProject = true
)

// Capture pipeline defaults (4.E/4.G).
const (
	DefaultCaptureBatchSize       = 10
	DefaultCaptureMaxLinesPerFile = 500
)

// Indexer defaults (4.I).
const (
	DefaultIndexerCooldownMinutes      = 5
	DefaultIndexerProcessedShaCap      = 10000
	DefaultIndexerLargeDiffLineBudget  = 2000
	DefaultIndexerSummaryWordBudget    = 400
	DefaultIndexerTruncateCharBudget   = 32000
)

// Job queue defaults (4.H).
const (
	DefaultJobQueueWorkerPoolSize = 4
	DefaultJobQueueMaxRetries     = 3
	DefaultJobQueueBaseBackoff    = 10 * time.Second
	DefaultJobQueueSoftCap        = 100
	DefaultJobQueueShutdownWait   = 30 * time.Second
)

// LLM transport defaults (4.B).
const (
	DefaultLLMRetryMaxAttempts = 3
	DefaultLLMRetryDelaySec    = 10
	DefaultLLMCooldownSec      = 600
)

// LLM queue defaults (4.C).
const (
	DefaultLLMQueueMaxSize  = 1000
	DefaultLLMQueueTTLHours = 24
)

// Security defaults (4.A).
const (
	DefaultSecurityBase64EntropyThreshold = 3.5
	DefaultSecurityHexEntropyThreshold    = 2.5
	DefaultSecurityEntropyMinLength       = 20
	DefaultAuditLogMaxSizeMB              = 10
	DefaultAuditLogBackups                = 5
)
