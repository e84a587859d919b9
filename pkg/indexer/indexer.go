package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sumatoshi-tech/graphiti/pkg/gitcapture"
	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

const (
	largeDiffLineBudget = 300
	summaryWordBudget   = 300
	truncateCharBudget  = 32000
)

// Clock allows tests to control "now".
type Clock func() time.Time

// Pipeline runs the full-history replay.
type Pipeline struct {
	Repo      *gitlib.Repository
	Sanitizer *security.Sanitizer
	LLM       graphengine.LLMClient
	Store     graphengine.Store
	StateDir  string
	GroupID   string
	Logger    *slog.Logger
	Now       Clock
}

// Result reports one Run's outcome.
type Result struct {
	SkippedReason   string
	CommitsWalked   int
	CommitsIndexed  int
	CommitsSkipped  int
	EpisodesEmitted int
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}

// Run implements 4.I's replay operation.
func (p *Pipeline) Run(ctx context.Context, since string, full bool) (Result, error) {
	state, err := LoadState(p.StateDir)
	if err != nil {
		return Result{}, fmt.Errorf("load index state: %w", err)
	}

	if state.InCooldown(p.now(), full) {
		return Result{SkippedReason: "cooldown"}, nil
	}

	if full {
		state = Reset()

		if removed, err := p.Store.DeleteEpisodesBySourceSubstring(ctx, sourceDescPrefix); err != nil {
			if p.Logger != nil {
				p.Logger.Warn("full reset: delete existing indexer episodes failed", "error", err)
			}
		} else if p.Logger != nil {
			p.Logger.Info("full reset: deleted existing indexer episodes", "count", removed)
		}
	}

	hashes, err := p.resolveCursor(since, state, full)
	if err != nil {
		return Result{}, err
	}

	result := Result{CommitsWalked: len(hashes)}

	for _, hash := range hashes {
		skipped, indexErr := p.indexOne(ctx, hash, &state)
		if indexErr != nil {
			return result, indexErr
		}

		if skipped {
			result.CommitsSkipped++

			continue
		}

		result.CommitsIndexed++
		result.EpisodesEmitted += 2
	}

	state.LastRunAt = p.now()
	if err := state.Save(p.StateDir); err != nil {
		return result, fmt.Errorf("save index state: %w", err)
	}

	return result, nil
}

// resolveCursor determines which commits (newest-first from the walk,
// returned oldest-first for processing) to replay, per 4.I's cursor rule.
func (p *Pipeline) resolveCursor(since string, state IndexState, full bool) ([]gitlib.Hash, error) {
	walk, err := p.Repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}
	defer walk.Free()

	if err := walk.PushHead(); err != nil {
		return nil, fmt.Errorf("push HEAD: %w", err)
	}

	stopSha := ""
	if !full {
		if since != "" {
			if looksLikeDate(since) {
				return p.resolveCursorByDate(since)
			}

			stopSha = since
		} else {
			stopSha = state.LastIndexedSha
		}
	}

	var hashes []gitlib.Hash

	for {
		hash, err := walk.Next()
		if err != nil {
			break
		}

		if stopSha != "" && strings.HasPrefix(hash.String(), stopSha) {
			break
		}

		hashes = append(hashes, hash)
	}

	reverse(hashes)

	return hashes, nil
}

func (p *Pipeline) resolveCursorByDate(since string) ([]gitlib.Hash, error) {
	t, err := parseSinceDate(since)
	if err != nil {
		return nil, fmt.Errorf("parse since date: %w", err)
	}

	iter, err := p.Repo.Log(&gitlib.LogOptions{Since: &t})
	if err != nil {
		return nil, fmt.Errorf("log since %s: %w", since, err)
	}
	defer iter.Close()

	var hashes []gitlib.Hash

	err = iter.ForEach(func(c *gitlib.Commit) error {
		hashes = append(hashes, c.Hash())

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	reverse(hashes)

	return hashes, nil
}

// looksLikeDate matches 4.I's "dash/slash/space means date; otherwise SHA"
// rule.
func looksLikeDate(since string) bool {
	return strings.ContainsAny(since, "-/ ")
}

func parseSinceDate(since string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006/01/02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, since); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", since)
}

func reverse(hashes []gitlib.Hash) {
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
}

// indexOne applies the quality gate and, if the commit passes, runs both
// extraction passes and persists the cursor incrementally.
func (p *Pipeline) indexOne(ctx context.Context, hash gitlib.Hash, state *IndexState) (bool, error) {
	commit, err := p.Repo.LookupCommit(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("lookup commit %s: %w", hash.String(), err)
	}
	defer commit.Free()

	author := commit.Author()

	skip, _ := ShouldSkipCommit(commit, author.Email, commit.Message())
	if skip {
		return true, nil
	}

	cd, err := gitcapture.FetchCommitDiff(ctx, p.Repo, hash, 0)
	if err != nil {
		return false, fmt.Errorf("fetch commit diff %s: %w", hash.String(), err)
	}

	diffText := cd.DiffBody
	if countLines(diffText) > largeDiffLineBudget {
		diffText, err = p.summarizeDiff(ctx, diffText)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warn("diff summarization failed, truncating instead", "sha", cd.ShortHash, "error", err)
			}

			diffText = truncateChars(diffText, truncateCharBudget)
		}
	}

	sanitized := p.Sanitizer.Sanitize(diffText, "")

	if err := p.emitStructuredPass(ctx, cd, sanitized.Sanitized); err != nil {
		return false, err
	}

	if err := p.emitFreeformPass(ctx, cd, sanitized.Sanitized); err != nil {
		return false, err
	}

	*state = state.RecordCommit(cd.FullHash, cd.ShortHash)
	if err := state.Save(p.StateDir); err != nil {
		return false, fmt.Errorf("save index state after commit %s: %w", cd.ShortHash, err)
	}

	return false, nil
}

func (p *Pipeline) summarizeDiff(ctx context.Context, diffText string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following diff in at most %d words, focused on what changed and why:\n\n%s",
		summaryWordBudget, diffText,
	)

	return p.LLM.Chat(ctx, []graphengine.Message{{Role: "user", Content: prompt}}, nil)
}

func (p *Pipeline) emitStructuredPass(ctx context.Context, cd gitcapture.CommitDiff, sanitizedDiff string) error {
	prompt := fmt.Sprintf(
		"Commit %s: %s\n\n%s\n\nAnswer four questions about this commit: "+
			"(1) What decision was made? (2) What changed? (3) Why? (4) What is the impact?",
		cd.ShortHash, cd.Subject, sanitizedDiff,
	)

	text, err := p.LLM.Chat(ctx, []graphengine.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return fmt.Errorf("structured pass for %s: %w", cd.ShortHash, err)
	}

	return p.Store.AddEpisode(ctx, graphengine.Episode{
		Name:          fmt.Sprintf("%s:structured:%s", sourceDescPrefix, cd.ShortHash),
		Body:          text,
		ReferenceTime: cd.CommittedAt,
		GroupID:       p.GroupID,
		SourceDesc:    fmt.Sprintf("%s:structured:%s", sourceDescPrefix, cd.ShortHash),
	})
}

func (p *Pipeline) emitFreeformPass(ctx context.Context, cd gitcapture.CommitDiff, sanitizedDiff string) error {
	prompt := fmt.Sprintf(
		"Commit %s: %s\n\n%s\n\nList the entities and relationships present: people, components, "+
			"decisions, bugs, features, dependencies.",
		cd.ShortHash, cd.Subject, sanitizedDiff,
	)

	text, err := p.LLM.Chat(ctx, []graphengine.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return fmt.Errorf("freeform pass for %s: %w", cd.ShortHash, err)
	}

	return p.Store.AddEpisode(ctx, graphengine.Episode{
		Name:          fmt.Sprintf("%s:freeform:%s", sourceDescPrefix, cd.ShortHash),
		Body:          text,
		ReferenceTime: cd.CommittedAt,
		GroupID:       p.GroupID,
		SourceDesc:    fmt.Sprintf("%s:freeform:%s", sourceDescPrefix, cd.ShortHash),
	})
}

func countLines(s string) int {
	if s == "" {
		return 0
	}

	return strings.Count(s, "\n") + 1
}

func truncateChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit] + "... (truncated at " + strconv.Itoa(limit) + " chars)"
}
