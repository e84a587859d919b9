// Package capture implements the summarize-and-store pipeline (4.G): a
// fixed-size batch accumulator, mandatory security-gated LLM summarization
// with a concatenation-only fallback, and episode emission to the graph
// engine. process_pending_commits wires this together with pkg/gitcapture
// for the live incremental git-capture path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sumatoshi-tech/graphiti/pkg/gitcapture"
	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/llm"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

const itemSeparator = "\n" + separatorLine + "\n"

var separatorLine = strings.Repeat("=", 80)

// BatchAccumulator buffers items up to capacity, yielding a full batch from
// Add as soon as it fills and any remainder from Flush.
type BatchAccumulator struct {
	capacity int
	items    []string
}

// NewBatchAccumulator builds an accumulator with the given capacity.
func NewBatchAccumulator(capacity int) *BatchAccumulator {
	if capacity <= 0 {
		capacity = 1
	}

	return &BatchAccumulator{capacity: capacity}
}

// Add appends item and returns a full batch (and true) if capacity was
// reached; otherwise returns (nil, false). After Add returns a batch, the
// accumulator's internal sequence is empty.
func (b *BatchAccumulator) Add(item string) ([]string, bool) {
	b.items = append(b.items, item)

	if len(b.items) < b.capacity {
		return nil, false
	}

	batch := b.items
	b.items = nil

	return batch, true
}

// Flush returns any partial batch and clears the accumulator.
func (b *BatchAccumulator) Flush() []string {
	if len(b.items) == 0 {
		return nil
	}

	batch := b.items
	b.items = nil

	return batch
}

// Clock allows tests to control the timestamp embedded in episode names.
type Clock func() time.Time

// Pipeline wires the security gate, LLM summarization, and graph store
// together to implement summarize_and_store and process_pending_commits.
type Pipeline struct {
	Sanitizer *security.Sanitizer
	LLM       graphengine.LLMClient
	Store     graphengine.Store
	Logger    *slog.Logger
	Now       Clock
}

// EpisodeHandle identifies a stored episode.
type EpisodeHandle struct {
	Name string
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}

// SummarizeAndStore implements 4.G's summarize_and_store.
func (p *Pipeline) SummarizeAndStore(ctx context.Context, items []string, source, itemsLabel, scope string, tags []string) (*EpisodeHandle, error) {
	if len(items) == 0 {
		return nil, nil //nolint:nilnil // "no items" is a legitimate no-op, not an error.
	}

	joined := strings.Join(items, itemSeparator)

	sanitized := p.Sanitizer.Sanitize(joined, "")

	summary, err := p.summarize(ctx, source, len(items), itemsLabel, sanitized.Sanitized)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	name := fmt.Sprintf("%s_%d", source, p.now().Unix())

	err = p.Store.AddEpisode(ctx, graphengine.Episode{
		Name:          name,
		Body:          summary,
		ReferenceTime: p.now(),
		GroupID:       scope,
		SourceDesc:    source,
	})
	if err != nil {
		return nil, fmt.Errorf("add episode: %w", err)
	}

	return &EpisodeHandle{Name: name}, nil
}

func (p *Pipeline) summarize(ctx context.Context, source string, count int, itemsLabel, sanitizedContent string) (string, error) {
	prompt := buildSummaryPrompt(source, count, itemsLabel, sanitizedContent)

	text, err := p.LLM.Chat(ctx, []graphengine.Message{{Role: "user", Content: prompt}}, nil)
	if err == nil {
		return text, nil
	}

	var unavailable *llm.ErrLLMUnavailable
	if errors.As(err, &unavailable) {
		if p.Logger != nil {
			p.Logger.Warn("llm unavailable, falling back to concatenation-only summary", "source", source, "queue_id", unavailable.QueueID)
		}

		return fmt.Sprintf("Session from %s (%d items): %s", source, count, sanitizedContent), nil
	}

	return "", err
}

func buildSummaryPrompt(source string, count int, itemsLabel, sanitizedContent string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source: %s\n", source)
	fmt.Fprintf(&b, "Count: %d %s\n\n", count, itemsLabel)
	b.WriteString("Produce a single cohesive session summary focused on decisions, architecture, ")
	b.WriteString("bug root-causes, and dependency changes. Exclude raw code and WIP noise. If the ")
	b.WriteString("input contains multiple merge commits covering overlapping changes, deduplicate ")
	b.WriteString("them in the summary rather than repeating the same change.\n\n")
	b.WriteString(sanitizedContent)

	return b.String()
}

// ProcessPendingCommitsResult reports process_pending_commits' outcome.
type ProcessPendingCommitsResult struct {
	EpisodesStored int
	Skipped        int
}

// ProcessPendingCommits implements 4.G's process_pending_commits: drain the
// pending-commits file, fetch + relevance-filter each commit's diff, batch
// the relevant ones, and summarize-and-store each full batch (plus any
// remainder).
func (p *Pipeline) ProcessPendingCommits(ctx context.Context, fetch func(shaHex string) (gitcapture.CommitDiff, string, error), pendingPath, scope string, batchSize int) (ProcessPendingCommitsResult, error) {
	hashes, err := gitcapture.Drain(pendingPath)
	if err != nil {
		return ProcessPendingCommitsResult{}, fmt.Errorf("drain pending commits: %w", err)
	}

	filter := gitcapture.NewFilter(nil)
	accumulator := NewBatchAccumulator(batchSize)

	result := ProcessPendingCommitsResult{}

	for _, sha := range hashes {
		cd, subject, err := fetch(sha)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("skipping commit, diff fetch failed", "sha", sha, "error", err)
			}

			result.Skipped++

			continue
		}

		if !filter.IsRelevant(subject) {
			result.Skipped++

			continue
		}

		if batch, full := accumulator.Add(cd.Render()); full {
			if _, err := p.SummarizeAndStore(ctx, batch, "git", "commits", scope, nil); err != nil {
				return result, fmt.Errorf("summarize commit batch: %w", err)
			}

			result.EpisodesStored++
		}
	}

	if remainder := accumulator.Flush(); len(remainder) > 0 {
		if _, err := p.SummarizeAndStore(ctx, remainder, "git", "commits", scope, nil); err != nil {
			return result, fmt.Errorf("summarize final commit batch: %w", err)
		}

		result.EpisodesStored++
	}

	return result, nil
}
