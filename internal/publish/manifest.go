package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"devlog-cache/internal/atomicfile"
	"devlog-cache/internal/core"
)

// Entry mirrors the last confirmed remote state of one key. Entries are
// written only after a confirmed skip or a confirmed write, never guessed.
type Entry struct {
	ContentHash string    `json:"content_hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// manifestFile is the on-disk shape.
type manifestFile struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Manifest is the local cache of last-known remote object state, used to
// skip redundant remote HEAD calls. It is a cache of authoritative remote
// state, not the source of truth: a disagreeing HEAD always wins.
type Manifest struct {
	path  string
	clock core.Clock

	mu      sync.Mutex
	entries map[string]Entry
}

// OpenManifest loads the manifest at path. A missing file is an empty
// manifest; a file that fails to parse is a fatal error, because silently
// resetting would re-upload every artifact.
func OpenManifest(path string, clock core.Clock) (*Manifest, error) {
	m := &Manifest{
		path:    path,
		clock:   clock,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, core.NewError(core.KindFatal, "manifest.open", fmt.Errorf("reading manifest %s: %w", path, err))
	}

	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.NewError(core.KindFatal, "manifest.open", fmt.Errorf("manifest %s is corrupt, refusing to discard it: %w", path, err))
	}
	if f.Entries != nil {
		m.entries = f.Entries
	}
	return m, nil
}

// Lookup returns the recorded entry for key, if any.
func (m *Manifest) Lookup(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

// Record updates the entry for key and flushes the manifest atomically.
func (m *Manifest) Record(key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, existed := m.entries[key]
	m.entries[key] = e
	if err := m.flushLocked(); err != nil {
		if existed {
			m.entries[key] = old
		} else {
			delete(m.entries, key)
		}
		return err
	}
	return nil
}

// Len returns the number of recorded keys.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manifest) flushLocked() error {
	data, err := json.MarshalIndent(&manifestFile{
		Entries:   m.entries,
		UpdatedAt: m.clock.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := atomicfile.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("flushing manifest %s: %w", m.path, err)
	}
	return nil
}
