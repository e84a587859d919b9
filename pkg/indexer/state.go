// Package indexer replays an entire repository's history into the graph
// (4.I), independent of the live incremental capture path in pkg/gitcapture
// and pkg/capture. It owns a persisted cursor (IndexState) for exact
// per-commit crash resume, a commit quality gate, and a two-pass
// structured/free-form LLM extraction per qualifying commit.
package indexer

import (
	"time"

	"github.com/sumatoshi-tech/graphiti/pkg/persist"
)

const (
	stateBasename    = "index_state"
	stateVersion     = 1
	processedShaCap  = 10000
	cooldownWindow   = 5 * time.Minute
	sourceDescPrefix = "git-history-index"
)

// IndexState is the indexer's persisted cursor.
type IndexState struct {
	Version             int       `json:"version"`
	LastIndexedSha      string    `json:"last_indexed_sha"`
	ProcessedShas       []string  `json:"processed_shas"`
	LastRunAt           time.Time `json:"last_run_at"`
	IndexedCommitsCount int       `json:"indexed_commits_count"`
}

// LoadState loads (or initializes) the index state at dir.
func LoadState(dir string) (IndexState, error) {
	var s IndexState

	err := persist.LoadState(dir, stateBasename, persist.NewJSONCodec(), &s)
	if err != nil {
		return IndexState{Version: stateVersion}, nil
	}

	return s, nil
}

// Save atomically persists state to dir.
func (s IndexState) Save(dir string) error {
	s.Version = stateVersion

	return persist.SaveState(dir, stateBasename, persist.NewJSONCodec(), s)
}

// RecordCommit updates the cursor after one commit is successfully indexed:
// last_indexed_sha advances, the short SHA is appended to processed_shas
// (trimmed to processedShaCap, oldest first), and the count increments.
func (s IndexState) RecordCommit(fullSha, shortSha string) IndexState {
	s.LastIndexedSha = fullSha
	s.ProcessedShas = append(s.ProcessedShas, shortSha)

	if len(s.ProcessedShas) > processedShaCap {
		s.ProcessedShas = s.ProcessedShas[len(s.ProcessedShas)-processedShaCap:]
	}

	s.IndexedCommitsCount++

	return s
}

// InCooldown reports whether a non-full run should be skipped because the
// last run was within the cooldown window.
func (s IndexState) InCooldown(now time.Time, full bool) bool {
	if full || s.LastRunAt.IsZero() {
		return false
	}

	return now.Sub(s.LastRunAt) < cooldownWindow
}

// Reset clears the cursor for a full reindex.
func Reset() IndexState {
	return IndexState{Version: stateVersion}
}
