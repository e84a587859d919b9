package localstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/graphengine/localstore"
)

func TestStore_AddAndSearch(t *testing.T) {
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.AddEpisode(t.Context(), graphengine.Episode{
		Name: "commit-abc123", Body: "Fixed the authentication race condition in login flow",
		GroupID: "repo-a", SourceDesc: "git:abc123", ReferenceTime: time.Now(),
	}))

	results, err := store.Search(t.Context(), "authentication race", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "commit-abc123", results[0].Name)
}

func TestStore_AddEpisode_DedupesByNameAndGroup(t *testing.T) {
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	ep := graphengine.Episode{Name: "commit-abc123", GroupID: "repo-a", Body: "v1"}
	require.NoError(t, store.AddEpisode(t.Context(), ep))

	ep.Body = "v2"
	require.NoError(t, store.AddEpisode(t.Context(), ep))

	assert.Len(t, store.List(), 1)

	got, ok := store.Show("commit-abc123")
	require.True(t, ok)
	assert.Equal(t, "v2", got.Body)
}

func TestStore_DeleteBySourceSubstring(t *testing.T) {
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.AddEpisode(t.Context(), graphengine.Episode{Name: "a", GroupID: "g", SourceDesc: "conversation:sess-1"}))
	require.NoError(t, store.AddEpisode(t.Context(), graphengine.Episode{Name: "b", GroupID: "g", SourceDesc: "git:sha1"}))

	removed, err := store.DeleteEpisodesBySourceSubstring(t.Context(), "conversation:")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, store.List(), 1)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := localstore.Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.AddEpisode(t.Context(), graphengine.Episode{Name: "x", GroupID: "g"}))

	reopened, err := localstore.Open(dir)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)
}

func TestStore_Search_NoMatches(t *testing.T) {
	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.AddEpisode(t.Context(), graphengine.Episode{Name: "x", Body: "hello world", GroupID: "g"}))

	results, err := store.Search(t.Context(), "nonexistent term", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
