package gitcapture_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/gitcapture"
	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
)

func TestDrain_MissingFile_ReturnsEmpty(t *testing.T) {
	hashes, err := gitcapture.Drain(filepath.Join(t.TempDir(), "pending_commits"))
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestDrain_SplitsAndStripsEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_commits")
	require.NoError(t, os.WriteFile(path, []byte("abc123\n\ndef456\n"), 0o644))

	hashes, err := gitcapture.Drain(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", "def456"}, hashes)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + ".processing")
	assert.True(t, os.IsNotExist(statErr))
}

func TestDrain_StalePreexistingTemp_RetriesAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending_commits")
	require.NoError(t, os.WriteFile(path, []byte("abc123\n"), 0o644))
	require.NoError(t, os.WriteFile(path+".processing", []byte("stale"), 0o644))

	hashes, err := gitcapture.Drain(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, hashes)
}

func TestFilter_ExcludesFixup(t *testing.T) {
	f := gitcapture.NewFilter(nil)
	assert.False(t, f.IsRelevant("fixup! typo in readme"))
}

func TestFilter_MatchesBugsCategory(t *testing.T) {
	f := gitcapture.NewFilter(nil)
	assert.True(t, f.IsRelevant("Fix crash on empty input"))
}

func TestFilter_NoKeywordMatch_NotRelevant(t *testing.T) {
	f := gitcapture.NewFilter(nil)
	assert.False(t, f.IsRelevant("bump copyright year"))
}

func TestFilter_RestrictedToCategory(t *testing.T) {
	f := gitcapture.NewFilter([]string{"dependencies"})
	assert.False(t, f.IsRelevant("fix a crash"))
	assert.True(t, f.IsRelevant("upgrade the logging library"))
}

func TestFilter_UnknownCategory_FallsBackToDefaults(t *testing.T) {
	f := gitcapture.NewFilter([]string{"nonexistent"})
	assert.True(t, f.IsRelevant("fix crash on startup"))
}

func TestFetchCommitDiff_RootCommit(t *testing.T) {
	dir := initTestRepo(t)
	writeAndCommit(t, dir, "a.txt", "hello\n", "Fix initial bug in a")

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)
	defer repo.Free()

	head, err := repo.Head()
	require.NoError(t, err)

	cd, err := gitcapture.FetchCommitDiff(t.Context(), repo, head, 500)
	require.NoError(t, err)
	assert.Equal(t, 0, cd.ParentCount)
	assert.Equal(t, "Fix initial bug in a", cd.Subject)
	assert.Contains(t, cd.DiffBody, "a.txt")
}

func TestFetchCommitDiff_TruncatesLargeFile(t *testing.T) {
	dir := initTestRepo(t)
	writeAndCommit(t, dir, "a.txt", "line\n", "Fix a bug")

	var big string
	for range 1000 {
		big += "line\n"
	}

	writeAndCommit(t, dir, "a.txt", big, "Fix another bug with a large file")

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)
	defer repo.Free()

	head, err := repo.Head()
	require.NoError(t, err)

	cd, err := gitcapture.FetchCommitDiff(t.Context(), repo, head, 10)
	require.NoError(t, err)
	assert.Contains(t, cd.DiffBody, "truncated at 10 lines")
}

func initTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")

	return dir
}

func writeAndCommit(t *testing.T, dir, file, content, message string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	runGit(t, dir, "add", file)
	runGit(t, dir, "commit", "-m", message)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}
