package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow_PrintsResolvedDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewConfigCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "capture.batch_size")
}

func TestConfigShow_JSON(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewConfigCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"show", "--format", "json"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "\"Capture\"")
}

func TestConfigPaths_GlobalScope(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewConfigCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"paths", "--global"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "scope:               global")
}
