package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// graphitiCommandSubstring identifies graphiti-owned entries in the
// AI-assistant settings file by substring match on the command field,
// since this file has no marker convention of its own.
const graphitiCommandSubstring = "graphiti capture"

// stopHookEntry is one entry in settings.hooks.Stop[].hooks[].
type stopHookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type stopHookGroup struct {
	Hooks []stopHookEntry `json:"hooks"`
}

type hooksSection struct {
	Stop []stopHookGroup `json:"Stop"`
}

// settingsFile round-trips every top-level key the real settings file may
// carry: only the "hooks" key is decoded into a typed shape, everything
// else passes through raw so installing/removing a hook never clobbers
// unrelated settings.
type settingsFile struct {
	fields map[string]json.RawMessage
	hooks  hooksSection
}

// InstallSettingsHook adds a graphiti Stop-hook entry to the AI-assistant
// settings file at path, creating the file if absent. A no-op if a
// graphiti entry is already present.
func InstallSettingsHook(path, command string) error {
	settings, err := loadSettings(path)
	if err != nil {
		return err
	}

	if hasGraphitiEntry(settings.hooks) {
		return nil
	}

	settings.hooks.Stop = append(settings.hooks.Stop, stopHookGroup{
		Hooks: []stopHookEntry{{Type: "command", Command: command}},
	})

	return saveSettings(path, settings)
}

// RemoveSettingsHook removes any graphiti Stop-hook entries, identified by
// substring match on the command field.
func RemoveSettingsHook(path string) error {
	settings, err := loadSettings(path)
	if err != nil {
		return err
	}

	var kept []stopHookGroup

	for _, group := range settings.hooks.Stop {
		var filteredHooks []stopHookEntry

		for _, entry := range group.Hooks {
			if !strings.Contains(entry.Command, graphitiCommandSubstring) {
				filteredHooks = append(filteredHooks, entry)
			}
		}

		if len(filteredHooks) > 0 {
			kept = append(kept, stopHookGroup{Hooks: filteredHooks})
		}
	}

	settings.hooks.Stop = kept

	return saveSettings(path, settings)
}

// HasSettingsHook reports whether a graphiti Stop-hook entry is present.
func HasSettingsHook(path string) (bool, error) {
	settings, err := loadSettings(path)
	if err != nil {
		return false, err
	}

	return hasGraphitiEntry(settings.hooks), nil
}

func hasGraphitiEntry(h hooksSection) bool {
	for _, group := range h.Stop {
		for _, entry := range group.Hooks {
			if strings.Contains(entry.Command, graphitiCommandSubstring) {
				return true
			}
		}
	}

	return false
}

func loadSettings(path string) (settingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settingsFile{fields: map[string]json.RawMessage{}}, nil
		}

		return settingsFile{}, fmt.Errorf("read settings file: %w", err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return settingsFile{}, fmt.Errorf("parse settings file: %w", err)
	}

	var hooks hooksSection

	if raw, ok := fields["hooks"]; ok {
		if err := json.Unmarshal(raw, &hooks); err != nil {
			return settingsFile{}, fmt.Errorf("parse settings hooks section: %w", err)
		}
	}

	return settingsFile{fields: fields, hooks: hooks}, nil
}

func saveSettings(path string, settings settingsFile) error {
	hooksRaw, err := json.Marshal(settings.hooks)
	if err != nil {
		return fmt.Errorf("marshal settings hooks section: %w", err)
	}

	settings.fields["hooks"] = hooksRaw

	data, err := json.MarshalIndent(settings.fields, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings file: %w", err)
	}

	return os.WriteFile(path, append(data, '\n'), 0o644)
}
