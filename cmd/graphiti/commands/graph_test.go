package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddThenListThenShowThenDelete(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	addCmd := NewAddCommand()
	addOut := &bytes.Buffer{}
	addCmd.SetOut(addOut)
	addCmd.SetArgs([]string{"--global", "hello world episode"})
	require.NoError(t, addCmd.Execute())
	assert.Contains(t, addOut.String(), "added episode")

	listCmd := NewListCommand()
	listOut := &bytes.Buffer{}
	listCmd.SetOut(listOut)
	listCmd.SetArgs([]string{"--global"})
	require.NoError(t, listCmd.Execute())
	assert.Contains(t, listOut.String(), "manual")

	showCmd := NewShowCommand()
	showOut := &bytes.Buffer{}
	showCmd.SetOut(showOut)

	// Extract the episode name the add command reported, to show it by
	// exact name.
	name := extractEpisodeName(t, addOut.String())
	showCmd.SetArgs([]string{"--global", name})
	require.NoError(t, showCmd.Execute())
	assert.Contains(t, showOut.String(), "hello world episode")

	deleteCmd := NewDeleteCommand()
	deleteOut := &bytes.Buffer{}
	deleteCmd.SetOut(deleteOut)
	deleteCmd.SetArgs([]string{"--global", name})
	require.NoError(t, deleteCmd.Execute())
	assert.Contains(t, deleteOut.String(), "deleted")
}

func TestDelete_MissingNameAndSource_IsUsageError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewDeleteCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--global"})

	err := cmd.Execute()
	require.Error(t, err)

	var usageErr *UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestDelete_NotFound_ReturnsError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewDeleteCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--global", "does-not-exist"})

	require.Error(t, cmd.Execute())
}

func TestCompact_Succeeds(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewCompactCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--global"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "compact complete")
}

func TestSearch_FindsAddedEpisode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	addCmd := NewAddCommand()
	addCmd.SetOut(&bytes.Buffer{})
	addCmd.SetArgs([]string{"--global", "the quick brown fox"})
	require.NoError(t, addCmd.Execute())

	searchCmd := NewSearchCommand()
	out := &bytes.Buffer{}
	searchCmd.SetOut(out)
	searchCmd.SetArgs([]string{"--global", "quick fox"})
	require.NoError(t, searchCmd.Execute())
	assert.Contains(t, out.String(), "quick brown fox")
}

func TestList_Empty_ReportsNoEpisodes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewListCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--global"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no episodes")
}

func TestAddAndDelete_MutuallyExclusiveScopeFlags_IsUsageError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewAddCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--global", "--project", "text"})

	err := cmd.Execute()
	require.Error(t, err)

	var usageErr *UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func extractEpisodeName(t *testing.T, addOutput string) string {
	t.Helper()

	const prefix = "added episode "

	idx := len(prefix)
	require.GreaterOrEqual(t, len(addOutput), idx)
	require.Equal(t, prefix, addOutput[:idx])

	end := idx
	for end < len(addOutput) && addOutput[end] != '\n' {
		end++
	}

	return addOutput[idx:end]
}
