package security

import (
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	eventSecretDetected  = "secret_detected"
	eventFileExcluded    = "file_excluded"
	eventAllowlistCheck  = "allowlist_check"

	defaultAuditMaxSizeMB = 10
	defaultAuditBackups   = 5
)

// AuditEvent is one append-only JSONL audit log record.
type AuditEvent struct {
	Timestamp    time.Time `json:"ts"`
	Level        string    `json:"level"`
	Event        string    `json:"event"`
	Action       string    `json:"action"`
	SecretType   string    `json:"secret_type,omitempty"`
	LineNumber   int       `json:"line_number,omitempty"`
	Confidence   string    `json:"confidence,omitempty"`
	EntropyScore *float64  `json:"entropy_score,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty"`
}

// FileAuditLog appends newline-delimited JSON audit events to a rotating
// file, created lazily on first write so a quiet project never gets an
// empty audit.log.
type FileAuditLog struct {
	mu     sync.Mutex
	path   string
	writer *lumberjack.Logger
}

// NewFileAuditLog builds a FileAuditLog writing to path, rotating at
// maxSizeMB (default 10) with maxBackups (default 5) kept.
func NewFileAuditLog(path string, maxSizeMB, maxBackups int) *FileAuditLog {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultAuditMaxSizeMB
	}

	if maxBackups <= 0 {
		maxBackups = defaultAuditBackups
	}

	return &FileAuditLog{
		path: path,
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   false,
		},
	}
}

// RecordSecretDetected implements AuditSink.
func (a *FileAuditLog) RecordSecretDetected(f Finding, filePath, placeholder string) {
	a.append(AuditEvent{
		Timestamp:    time.Now().UTC(),
		Level:        "warning",
		Event:        eventSecretDetected,
		Action:       "redacted",
		SecretType:   string(f.Type),
		LineNumber:   f.LineNumber,
		Confidence:   string(f.Confidence),
		EntropyScore: f.EntropyScore,
		FilePath:     filePath,
		Placeholder:  placeholder,
	})
}

// RecordAllowlistCheck implements AuditSink.
func (a *FileAuditLog) RecordAllowlistCheck(f Finding, filePath string) {
	a.append(AuditEvent{
		Timestamp:  time.Now().UTC(),
		Level:      "info",
		Event:      eventAllowlistCheck,
		Action:     "allowed",
		SecretType: string(f.Type),
		LineNumber: f.LineNumber,
		Confidence: string(f.Confidence),
		FilePath:   filePath,
	})
}

// RecordFileExcluded records a file-exclusion decision.
func (a *FileAuditLog) RecordFileExcluded(filePath, pattern string) {
	a.append(AuditEvent{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Event:     eventFileExcluded,
		Action:    "excluded",
		FilePath:  filePath,
		Placeholder: pattern,
	})
}

func (a *FileAuditLog) append(event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	line = append(line, '\n')

	// Audit logging must never block or fail the caller's write path: a
	// rotation or disk error here is swallowed, matching the "lose at most
	// one event" tolerance for audit logging described in the concurrency
	// model.
	_, _ = a.writer.Write(line)
}

// Close flushes and closes the underlying rotating writer.
func (a *FileAuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.writer.Close()
}
