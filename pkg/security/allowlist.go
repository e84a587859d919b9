package security

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sumatoshi-tech/graphiti/pkg/persist"
)

// ErrJustificationRequired is returned when adding an allowlist entry
// without a non-empty free-text justification.
var ErrJustificationRequired = errors.New("allowlist entry requires a non-empty justification")

const allowlistBasename = "allowlist"

// AllowlistEntry is one project allowlist record. The secret itself is
// never stored, only its sha256 hash (the map key).
type AllowlistEntry struct {
	Justification string    `json:"justification"`
	AddedBy       string    `json:"added_by"`
	AddedDate     time.Time `json:"added_date"`
}

type allowlistFile struct {
	Entries map[string]AllowlistEntry `json:"entries"`
}

// FileAllowlist is a per-project, disk-persisted allowlist keyed by
// sha256(matched_text). Disabled (Enabled == false) causes every finding to
// be treated as non-allowlisted, matching the "disabled allowlists cause
// all findings to be redacted" contract.
type FileAllowlist struct {
	mu      sync.RWMutex
	dir     string
	enabled bool
	entries map[string]AllowlistEntry
}

// LoadAllowlist reads allowlist.json from dir, if present. A missing file
// is not an error: it is treated as an empty, enabled allowlist.
func LoadAllowlist(dir string, enabled bool) (*FileAllowlist, error) {
	al := &FileAllowlist{dir: dir, enabled: enabled, entries: make(map[string]AllowlistEntry)}

	var stored allowlistFile

	err := persist.LoadState(dir, allowlistBasename, persist.NewJSONCodec(), &stored)
	if err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return al, nil
		}

		return al, nil //nolint:nilerr // a corrupt/missing allowlist degrades to "nothing is allowlisted", not a hard failure.
	}

	if stored.Entries != nil {
		al.entries = stored.Entries
	}

	return al, nil
}

// IsAllowed implements Allowlist.
func (a *FileAllowlist) IsAllowed(matched string) bool {
	if !a.enabled {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.entries[HashMatched(matched)]

	return ok
}

// Add records a new allowlist entry and persists the file atomically.
// justification must be non-empty.
func (a *FileAllowlist) Add(matched, justification, addedBy string) error {
	if justification == "" {
		return ErrJustificationRequired
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries[HashMatched(matched)] = AllowlistEntry{
		Justification: justification,
		AddedBy:       addedBy,
		AddedDate:     time.Now().UTC(),
	}

	return persist.SaveState(a.dir, allowlistBasename, persist.NewJSONCodec(), allowlistFile{Entries: a.entries})
}

// Remove deletes an allowlist entry by the original matched text and
// persists the change.
func (a *FileAllowlist) Remove(matched string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, HashMatched(matched))

	return persist.SaveState(a.dir, allowlistBasename, persist.NewJSONCodec(), allowlistFile{Entries: a.entries})
}
