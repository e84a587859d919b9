// Package gitcapture drains the pending-commits file a post-commit hook
// appends to, fetches per-commit diffs with per-file truncation, and
// pre-filters commits by message relevance (4.E). Diff fetching is built on
// pkg/gitlib's git2go wrapper rather than shelling out to git, matching the
// teacher's established idiom of talking to the repository through the
// library instead of subprocesses.
package gitcapture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
)

const truncationMarkerFmt = "... (truncated at %d lines)"

// Drain implements 4.E's pending-file drain. A race where the post-commit
// hook appends between the existence check and the rename is acceptable —
// the hook re-creates the base file for the next drain.
func Drain(path string) ([]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	processingPath := path + ".processing"

	if err := renameWithRetry(path, processingPath); err != nil {
		return nil, fmt.Errorf("rename pending file: %w", err)
	}

	defer os.Remove(processingPath)

	data, err := os.ReadFile(processingPath)
	if err != nil {
		return nil, fmt.Errorf("read pending file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	hashes := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			hashes = append(hashes, line)
		}
	}

	return hashes, nil
}

// renameWithRetry handles a pre-existing target (a prior drain that crashed
// before removing its temp file) by clearing it and retrying once.
func renameWithRetry(path, processingPath string) error {
	err := os.Rename(path, processingPath)
	if err == nil {
		return nil
	}

	if !errors.Is(err, os.ErrExist) && !os.IsExist(err) {
		if _, statErr := os.Stat(processingPath); statErr != nil {
			return err
		}
	}

	if removeErr := os.Remove(processingPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return err
	}

	return os.Rename(path, processingPath)
}

// CommitDiff is the rendered metadata + diff body for one commit.
type CommitDiff struct {
	FullHash    string
	ShortHash   string
	AuthorName  string
	AuthorEmail string
	Subject     string
	Body        string
	CommittedAt time.Time
	ParentCount int
	DiffBody    string
}

// FetchCommitDiff implements 4.E's fetch_commit_diff, rendering commit
// metadata and a per-file-truncated diff against each parent (merge commits
// render a section per parent; root commits diff against the empty tree,
// which gitlib.Commit.Diff already handles).
func FetchCommitDiff(ctx context.Context, repo *gitlib.Repository, hash gitlib.Hash, maxLinesPerFile int) (CommitDiff, error) {
	commit, err := repo.LookupCommit(ctx, hash)
	if err != nil {
		return CommitDiff{}, fmt.Errorf("lookup commit %s: %w", hash.String(), err)
	}
	defer commit.Free()

	subject, body := splitMessage(commit.Message())
	author := commit.Author()

	cd := CommitDiff{
		FullHash:    hash.String(),
		ShortHash:   shortHash(hash.String()),
		AuthorName:  author.Name,
		AuthorEmail: author.Email,
		Subject:     subject,
		Body:        body,
		CommittedAt: author.When,
		ParentCount: commit.NumParents(),
	}

	diffBody, err := renderDiffBody(commit, maxLinesPerFile)
	if err != nil {
		return CommitDiff{}, err
	}

	cd.DiffBody = diffBody

	return cd, nil
}

func renderDiffBody(commit *gitlib.Commit, maxLinesPerFile int) (string, error) {
	numParents := commit.NumParents()
	if numParents == 0 {
		return renderDiffAgainstParent(commit, 0, maxLinesPerFile)
	}

	var sections []string

	for n := range numParents {
		section, err := renderDiffAgainstParent(commit, n, maxLinesPerFile)
		if err != nil {
			return "", err
		}

		if numParents > 1 {
			section = fmt.Sprintf("--- against parent %d (%s) ---\n%s", n+1, commit.ParentHash(n).String(), section)
		}

		sections = append(sections, section)
	}

	return strings.Join(sections, "\n\n"), nil
}

func renderDiffAgainstParent(commit *gitlib.Commit, parentIndex, maxLinesPerFile int) (string, error) {
	diff, err := commit.Diff(parentIndex)
	if err != nil {
		return "", fmt.Errorf("diff against parent %d: %w", parentIndex, err)
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return "", fmt.Errorf("count deltas: %w", err)
	}

	sections := make([]string, 0, numDeltas)

	for i := range numDeltas {
		patch, err := diff.PatchText(i)
		if err != nil {
			return "", fmt.Errorf("render patch %d: %w", i, err)
		}

		sections = append(sections, truncatePatch(patch, maxLinesPerFile))
	}

	return strings.Join(sections, ""), nil
}

// truncatePatch caps a single file's unified-diff text at maxLines lines,
// appending a marker line in place of the remainder when it does.
func truncatePatch(patch string, maxLines int) string {
	if maxLines <= 0 {
		return patch
	}

	lines := strings.SplitAfter(patch, "\n")
	if len(lines) <= maxLines {
		return patch
	}

	truncated := strings.Join(lines[:maxLines], "")

	return truncated + fmt.Sprintf(truncationMarkerFmt+"\n", maxLines)
}

// Render concatenates a CommitDiff's metadata and diff body with a blank
// line between, matching spec.md's data-model description verbatim.
func (cd CommitDiff) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "commit %s\n", cd.FullHash)
	fmt.Fprintf(&b, "Author: %s <%s>\n", cd.AuthorName, cd.AuthorEmail)
	fmt.Fprintf(&b, "Date: %s\n", cd.CommittedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "\n    %s\n", cd.Subject)

	if cd.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", indentBody(cd.Body))
	}

	b.WriteString("\n")
	b.WriteString(cd.DiffBody)

	return b.String()
}

func indentBody(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}

	return strings.Join(lines, "\n")
}

func splitMessage(message string) (subject, body string) {
	message = strings.TrimRight(message, "\n")

	parts := strings.SplitN(message, "\n\n", 2)
	subject = strings.TrimSpace(parts[0])

	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}

	return subject, body
}

func shortHash(full string) string {
	const shortLen = 7
	if len(full) <= shortLen {
		return full
	}

	return full[:shortLen]
}
