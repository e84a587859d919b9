package indexer_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/graphengine/localstore"
	"github.com/sumatoshi-tech/graphiti/pkg/indexer"
	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

func TestIndexState_RecordCommit_TrimsProcessedShas(t *testing.T) {
	s := indexer.IndexState{}
	for i := range 3 {
		s = s.RecordCommit("full", "sha"+string(rune('a'+i)))
	}

	assert.Len(t, s.ProcessedShas, 3)
	assert.Equal(t, 3, s.IndexedCommitsCount)
}

func TestIndexState_InCooldown(t *testing.T) {
	now := time.Now()
	s := indexer.IndexState{LastRunAt: now.Add(-1 * time.Minute)}

	assert.True(t, s.InCooldown(now, false))
	assert.False(t, s.InCooldown(now, true))

	old := indexer.IndexState{LastRunAt: now.Add(-10 * time.Minute)}
	assert.False(t, old.InCooldown(now, false))
}

func TestLoadState_MissingFile_ReturnsEmpty(t *testing.T) {
	s, err := indexer.LoadState(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, s.LastIndexedSha)
}

func TestSaveAndLoadState_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := indexer.IndexState{LastIndexedSha: "abc123", IndexedCommitsCount: 5}
	require.NoError(t, s.Save(dir))

	loaded, err := indexer.LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.LastIndexedSha)
	assert.Equal(t, 5, loaded.IndexedCommitsCount)
}

type stubIndexerLLM struct{}

func (stubIndexerLLM) Chat(_ context.Context, _ []graphengine.Message, _ *graphengine.Schema) (string, error) {
	return "stub response", nil
}

func newSanitizer(t *testing.T) *security.Sanitizer {
	t.Helper()

	allowlist, err := security.LoadAllowlist(t.TempDir(), true)
	require.NoError(t, err)

	return security.NewSanitizer(allowlist, nil)
}

func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "dev@example.com")
	runGit(t, dir, "config", "user.name", "Dev")

	return dir
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-m", message)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestPipeline_Run_IndexesQualifyingCommitsAndSkipsTrivial(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "substantial content here that is not tiny at all\n", "Fix crash on startup and document the root cause")
	commitFile(t, dir, "package.json", `{"version":"1.0.1"}`, "chore(release): bump version")

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)
	defer repo.Free()

	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	p := &indexer.Pipeline{
		Repo:      repo,
		Sanitizer: newSanitizer(t),
		LLM:       stubIndexerLLM{},
		Store:     store,
		StateDir:  t.TempDir(),
		GroupID:   "repo-a",
	}

	result, err := p.Run(t.Context(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CommitsWalked)
	assert.Equal(t, 1, result.CommitsSkipped)
	assert.Equal(t, 1, result.CommitsIndexed)
	assert.Equal(t, 2, result.EpisodesEmitted)
	assert.Len(t, store.List(), 2)
}

func TestPipeline_Run_Cooldown_SkipsNonFullRun(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "content\n", "Fix a real bug here")

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)
	defer repo.Free()

	stateDir := t.TempDir()
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	p := &indexer.Pipeline{
		Repo: repo, Sanitizer: newSanitizer(t), LLM: stubIndexerLLM{}, Store: store,
		StateDir: stateDir, GroupID: "repo-a",
	}

	_, err = p.Run(t.Context(), "", false)
	require.NoError(t, err)

	result, err := p.Run(t.Context(), "", false)
	require.NoError(t, err)
	assert.Equal(t, "cooldown", result.SkippedReason)
}

func TestPipeline_Run_Full_ClearsStateAndReindexes(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "a.txt", "content\n", "Fix a real bug here")

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)
	defer repo.Free()

	stateDir := t.TempDir()
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	p := &indexer.Pipeline{
		Repo: repo, Sanitizer: newSanitizer(t), LLM: stubIndexerLLM{}, Store: store,
		StateDir: stateDir, GroupID: "repo-a",
	}

	_, err = p.Run(t.Context(), "", false)
	require.NoError(t, err)

	result, err := p.Run(t.Context(), "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CommitsIndexed)
}
