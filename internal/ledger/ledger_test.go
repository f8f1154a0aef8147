package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"devlog-cache/internal/core"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func testClock() fixedClock {
	return fixedClock{t: time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)}
}

func TestOpen(t *testing.T) {
	t.Run("missing file is an empty ledger", func(t *testing.T) {
		l, err := Open(filepath.Join(t.TempDir(), "seen_ids.json"), testClock())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if l.Len() != 0 {
			t.Errorf("Len() = %d, want 0", l.Len())
		}
	})

	t.Run("corrupt file is a fatal error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seen_ids.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := Open(path, testClock())
		if err == nil {
			t.Fatal("Open() expected error for corrupt ledger")
		}
		if !core.IsFatal(err) {
			t.Errorf("Open() error kind = %v, want fatal", core.KindOf(err))
		}
	})
}

func TestMarkSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ids.json")
	l, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if l.HasSeen(SourceTwitch, "clip-1") {
		t.Error("HasSeen() = true before MarkSeen")
	}

	if err := l.MarkSeen(SourceTwitch, "clip-1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if !l.HasSeen(SourceTwitch, "clip-1") {
		t.Error("HasSeen() = false after MarkSeen")
	}

	// The same ID under a different source is a different event.
	if l.HasSeen(SourceGitHub, "clip-1") {
		t.Error("HasSeen() leaked across sources")
	}

	t.Run("idempotent", func(t *testing.T) {
		if err := l.MarkSeen(SourceTwitch, "clip-1"); err != nil {
			t.Fatalf("second MarkSeen() error = %v", err)
		}
		if l.Len() != 1 {
			t.Errorf("Len() = %d, want 1", l.Len())
		}
	})
}

func TestMarkSeen_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ids.json")

	l, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.MarkSeen(SourceTwitch, "c1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if err := l.MarkSeen(SourceGitHub, "push-42"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	// Simulated process restart: reload from disk.
	reloaded, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if !reloaded.HasSeen(SourceTwitch, "c1") {
		t.Error("twitch record lost across restart")
	}
	if !reloaded.HasSeen(SourceGitHub, "push-42") {
		t.Error("github record lost across restart")
	}
	if reloaded.Len() != 2 {
		t.Errorf("Len() after reload = %d, want 2", reloaded.Len())
	}
}

func TestCrashMidWriteLeavesPreWriteState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seen_ids.json")

	l, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.MarkSeen(SourceTwitch, "c1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	// A crash before the atomic rename leaves a stray temp file next to the
	// ledger. It must not affect reload.
	if err := os.WriteFile(filepath.Join(dir, ".tmp-crashed"), []byte(`{"records":[{"source":"twitch","external_id":"torn`), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if !reloaded.HasSeen(SourceTwitch, "c1") {
		t.Error("pre-crash record lost")
	}
	if reloaded.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reloaded.Len())
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ids.json")
	l, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.MarkSeen(SourceTwitch, "c1"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	if err := l.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", l.Len())
	}

	// Clear persists too.
	reloaded, err := Open(path, testClock())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if reloaded.HasSeen(SourceTwitch, "c1") {
		t.Error("cleared record survived restart")
	}
}

func TestMarkSeen_FlushFailureRollsBack(t *testing.T) {
	// Point the ledger at a path whose directory does not exist so the
	// flush fails; the in-memory set must not claim the event was recorded.
	l := &Ledger{
		path:  filepath.Join(t.TempDir(), "missing-dir", "seen_ids.json"),
		clock: testClock(),
		seen:  map[recordKey]Record{},
	}

	if err := l.MarkSeen(SourceTwitch, "c1"); err == nil {
		t.Fatal("MarkSeen() expected error")
	}
	if l.HasSeen(SourceTwitch, "c1") {
		t.Error("unflushed record visible in memory")
	}
}
