// Package convcapture turns AI-assistant conversation transcripts (one JSON
// object per line) into episode text, tracking the last captured turn index
// per session so hook-driven auto-capture only processes new turns (4.F).
package convcapture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sumatoshi-tech/graphiti/pkg/persist"
)

const metadataBasename = "capture_metadata"

// turn is the tolerant shape of one transcript line. Index accepts either
// "index" or "turn"; text accepts "content", "message", or "text".
type turn struct {
	Index   *int    `json:"index"`
	Turn    *int    `json:"turn"`
	Content *string `json:"content"`
	Message *string `json:"message"`
	Text    *string `json:"text"`
	Role    string  `json:"role"`
}

// parsedTurn pairs a decoded turn with its 1-based line number in the
// transcript file, used as the index fallback when neither "index" nor
// "turn" is present.
type parsedTurn struct {
	turn
	lineNumber int
}

func (t turn) index(lineNumber int) int {
	if t.Index != nil {
		return *t.Index
	}

	if t.Turn != nil {
		return *t.Turn
	}

	return lineNumber
}

func (t turn) text() string {
	if t.Content != nil {
		return *t.Content
	}

	if t.Message != nil {
		return *t.Message
	}

	if t.Text != nil {
		return *t.Text
	}

	return ""
}

// Metadata persists last_captured_turn_index per session_id.
type Metadata struct {
	LastCapturedTurn map[string]int `json:"last_captured_turn"`
}

// LoadMetadata loads the metadata file from dir, returning an empty
// Metadata if the file does not yet exist.
func LoadMetadata(dir string) (Metadata, error) {
	var m Metadata

	err := persist.LoadState(dir, metadataBasename, persist.NewJSONCodec(), &m)
	if err != nil {
		return Metadata{LastCapturedTurn: map[string]int{}}, nil
	}

	if m.LastCapturedTurn == nil {
		m.LastCapturedTurn = map[string]int{}
	}

	return m, nil
}

// Save atomically writes metadata to dir, creating parent directories
// lazily (persist.SaveState already does this).
func (m Metadata) Save(dir string) error {
	return persist.SaveState(dir, metadataBasename, persist.NewJSONCodec(), m)
}

// Result is the outcome of capturing one transcript.
type Result struct {
	Text          string
	MaxTurnIndex  int
	TurnsCaptured int
}

// Capture implements 4.F's capture(transcript_path, session_id, auto). When
// auto is true, turns with index <= the session's last captured turn are
// skipped and metadata is updated to the new maximum on success; when auto
// is false, every turn is processed and metadata is left untouched. Returns
// ok=false when there is no new text to emit (no turns, or all skipped).
func Capture(transcriptPath, sessionID string, auto bool, metadataDir string, logger *slog.Logger) (Result, bool, error) {
	var lastCaptured int

	var meta Metadata

	if auto {
		var err error

		meta, err = LoadMetadata(metadataDir)
		if err != nil {
			return Result{}, false, fmt.Errorf("load capture metadata: %w", err)
		}

		lastCaptured = meta.LastCapturedTurn[sessionID]
	}

	turns, err := parseTranscript(transcriptPath, logger)
	if err != nil {
		return Result{}, false, err
	}

	var sections []string

	maxIndex := lastCaptured

	for _, pt := range turns {
		idx := pt.index(pt.lineNumber)
		t := pt.turn

		if auto && idx <= lastCaptured {
			continue
		}

		text := strings.TrimSpace(t.text())
		if text == "" {
			continue
		}

		sections = append(sections, fmt.Sprintf("Turn %d:\n%s", idx, text))

		if idx > maxIndex {
			maxIndex = idx
		}
	}

	if len(sections) == 0 {
		return Result{}, false, nil
	}

	result := Result{
		Text:          strings.Join(sections, "\n---\n"),
		MaxTurnIndex:  maxIndex,
		TurnsCaptured: len(sections),
	}

	if auto {
		meta.LastCapturedTurn[sessionID] = maxIndex
		if err := meta.Save(metadataDir); err != nil {
			return Result{}, false, fmt.Errorf("save capture metadata: %w", err)
		}
	}

	return result, true, nil
}

func parseTranscript(path string, logger *slog.Logger) ([]parsedTurn, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	var turns []parsedTurn

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var t turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			if logger != nil {
				logger.Warn("skipping malformed transcript line", "line", lineNumber, "error", err)
			}

			continue
		}

		turns = append(turns, parsedTurn{turn: t, lineNumber: lineNumber})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	return turns, nil
}
