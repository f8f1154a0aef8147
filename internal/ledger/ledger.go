// Package ledger persists the set of already-ingested upstream event IDs so
// fetch jobs never process the same clip or commit twice.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"devlog-cache/internal/atomicfile"
	"devlog-cache/internal/core"
)

// Source identifies the upstream system an event ID belongs to.
type Source string

const (
	SourceTwitch Source = "twitch"
	SourceGitHub Source = "github"
)

// Record is proof that one external event has been ingested.
type Record struct {
	Source      Source    `json:"source"`
	ExternalID  string    `json:"external_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// ledgerFile is the on-disk shape: a JSON document holding the record array.
type ledgerFile struct {
	Records   []Record  `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
}

type recordKey struct {
	source Source
	id     string
}

// Ledger is the persisted dedup set. The file is loaded fully into memory at
// construction and flushed atomically after every MarkSeen, so a crash
// mid-write leaves either the pre-write or the post-write file, never a mix.
//
// MarkSeen and Clear serialize through a single writer lock; HasSeen reads
// the in-memory snapshot under the shared lock and never mutates it.
type Ledger struct {
	path  string
	clock core.Clock

	mu   sync.RWMutex
	seen map[recordKey]Record
}

// Open loads the ledger at path. A missing file is an empty ledger.
// A file that exists but fails to parse is a fatal error: silently starting
// from an empty set would reprocess every upstream event.
func Open(path string, clock core.Clock) (*Ledger, error) {
	l := &Ledger{
		path:  path,
		clock: clock,
		seen:  make(map[recordKey]Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, core.NewError(core.KindFatal, "ledger.open", fmt.Errorf("reading ledger %s: %w", path, err))
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.NewError(core.KindFatal, "ledger.open", fmt.Errorf("ledger %s is corrupt, refusing to discard it: %w", path, err))
	}

	for _, r := range f.Records {
		l.seen[recordKey{r.Source, r.ExternalID}] = r
	}
	return l, nil
}

// HasSeen reports whether the event has already been ingested.
func (l *Ledger) HasSeen(source Source, externalID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[recordKey{source, externalID}]
	return ok
}

// MarkSeen records the event and flushes the ledger to disk. Marking an
// already-seen event is a no-op. Call this only after the event has been
// durably processed, never before.
func (l *Ledger) MarkSeen(source Source, externalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := recordKey{source, externalID}
	if _, ok := l.seen[key]; ok {
		return nil
	}

	l.seen[key] = Record{
		Source:      source,
		ExternalID:  externalID,
		FirstSeenAt: l.clock.Now().UTC(),
	}
	if err := l.flushLocked(); err != nil {
		// Keep the in-memory and on-disk states consistent: an unflushed
		// record must not suppress reprocessing after a restart.
		delete(l.seen, key)
		return err
	}
	return nil
}

// Clear removes every record. Explicit operator action only.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.seen
	l.seen = make(map[recordKey]Record)
	if err := l.flushLocked(); err != nil {
		l.seen = old
		return err
	}
	return nil
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) flushLocked() error {
	f := ledgerFile{
		Records:   make([]Record, 0, len(l.seen)),
		UpdatedAt: l.clock.Now().UTC(),
	}
	for _, r := range l.seen {
		f.Records = append(f.Records, r)
	}
	// Keep the file diffable: ordered by source, then external ID.
	sort.Slice(f.Records, func(i, j int) bool {
		a, b := f.Records[i], f.Records[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ExternalID < b.ExternalID
	})

	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	if err := atomicfile.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("flushing ledger %s: %w", l.path, err)
	}
	return nil
}
