package convcapture_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/convcapture"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	content := ""

	for _, l := range lines {
		content += l + "\n"
	}

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestCapture_Manual_ProcessesAllTurns(t *testing.T) {
	path := writeTranscript(t,
		`{"index":1,"role":"user","content":"hello"}`,
		`{"index":2,"role":"assistant","text":"hi there"}`,
	)

	result, ok, err := convcapture.Capture(path, "sess-1", false, t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, result.TurnsCaptured)
	assert.Contains(t, result.Text, "Turn 1:")
	assert.Contains(t, result.Text, "hi there")
}

func TestCapture_Auto_SkipsAlreadyCapturedTurns(t *testing.T) {
	metaDir := t.TempDir()
	path := writeTranscript(t,
		`{"index":1,"content":"first"}`,
		`{"index":2,"content":"second"}`,
	)

	result, ok, err := convcapture.Capture(path, "sess-1", true, metaDir, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, result.TurnsCaptured)

	path2 := writeTranscript(t,
		`{"index":1,"content":"first"}`,
		`{"index":2,"content":"second"}`,
		`{"index":3,"content":"third"}`,
	)

	result2, ok2, err := convcapture.Capture(path2, "sess-1", true, metaDir, nil)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, 1, result2.TurnsCaptured)
	assert.Contains(t, result2.Text, "third")
}

func TestCapture_Auto_NoNewTurns_ReturnsFalse(t *testing.T) {
	metaDir := t.TempDir()
	path := writeTranscript(t, `{"index":1,"content":"first"}`)

	_, ok, err := convcapture.Capture(path, "sess-1", true, metaDir, nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err := convcapture.Capture(path, "sess-1", true, metaDir, nil)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestCapture_SkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		`not json at all`,
		`{"index":1,"content":"valid"}`,
	)

	result, ok, err := convcapture.Capture(path, "sess-1", false, t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, result.TurnsCaptured)
}

func TestCapture_SkipsEmptyText(t *testing.T) {
	path := writeTranscript(t,
		`{"index":1,"content":""}`,
		`{"index":2,"content":"has text"}`,
	)

	result, ok, err := convcapture.Capture(path, "sess-1", false, t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, result.TurnsCaptured)
}

func TestCapture_IndexFallsBackToLineNumber(t *testing.T) {
	path := writeTranscript(t,
		`{"content":"no index field"}`,
	)

	result, ok, err := convcapture.Capture(path, "sess-1", false, t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, result.Text, "Turn 1:")
}

func TestCapture_TurnFieldAsIndexAlias(t *testing.T) {
	path := writeTranscript(t, `{"turn":5,"message":"aliased field names"}`)

	result, ok, err := convcapture.Capture(path, "sess-1", false, t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, result.MaxTurnIndex)
}
