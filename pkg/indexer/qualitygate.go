package indexer

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
)

var botAuthorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[bot\]@`),
	regexp.MustCompile(`@dependabot\.com$`),
	regexp.MustCompile(`noreply@github\.com$`),
	regexp.MustCompile(`^\d+\+[^@]*\[bot\]@`),
}

var depsBumpPrefixes = []string{
	"chore(deps):", "chore(deps-dev):", "build(deps):", "chore(release):",
}

var versionBumpBasenames = []string{
	"package.json", "pyproject.toml", "__version__", "changelog", "setup.py", "setup.cfg",
}

const tinyChangeThreshold = 3

// SkipReason names why should_skip_commit decided to skip a commit.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipBotAuthor   SkipReason = "bot_author"
	SkipDepsBumpMsg SkipReason = "deps_bump_message"
	SkipEmptyMerge  SkipReason = "empty_merge"
	SkipTinyChange  SkipReason = "tiny_change"
	SkipVersionBump SkipReason = "version_bump_only"
)

// ShouldSkipCommit implements 4.I's should_skip_commit in priority order.
// Any stats-based step that cannot compute (diff/stat failure) fails open —
// the commit is processed rather than skipped.
func ShouldSkipCommit(commit *gitlib.Commit, authorEmail, message string) (bool, SkipReason) {
	if isBotAuthor(authorEmail) {
		return true, SkipBotAuthor
	}

	lowerMsg := strings.ToLower(strings.TrimSpace(message))
	for _, prefix := range depsBumpPrefixes {
		if strings.HasPrefix(lowerMsg, prefix) {
			return true, SkipDepsBumpMsg
		}
	}

	diff, err := commit.Diff(0)
	if err != nil {
		return false, SkipNone
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return false, SkipNone
	}

	if commit.NumParents() > 1 && numDeltas == 0 {
		return true, SkipEmptyMerge
	}

	stats, err := diff.Stats()
	if err != nil {
		return false, SkipNone
	}
	defer stats.Free()

	if stats.Insertions()+stats.Deletions() <= tinyChangeThreshold {
		return true, SkipTinyChange
	}

	if numDeltas > 0 && allFilesAreVersionBumps(diff, numDeltas) {
		return true, SkipVersionBump
	}

	return false, SkipNone
}

func isBotAuthor(email string) bool {
	for _, pattern := range botAuthorPatterns {
		if pattern.MatchString(email) {
			return true
		}
	}

	return false
}

func allFilesAreVersionBumps(diff *gitlib.Diff, numDeltas int) bool {
	for i := range numDeltas {
		delta, err := diff.Delta(i)
		if err != nil {
			return false
		}

		name := strings.ToLower(filepath.Base(delta.NewFile.Path))
		if name == "" || name == "." {
			name = strings.ToLower(filepath.Base(delta.OldFile.Path))
		}

		if !matchesAnyVersionBumpBasename(name) {
			return false
		}
	}

	return true
}

func matchesAnyVersionBumpBasename(name string) bool {
	for _, bump := range versionBumpBasenames {
		if strings.Contains(name, bump) {
			return true
		}
	}

	return false
}
