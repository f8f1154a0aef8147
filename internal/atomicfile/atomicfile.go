// Package atomicfile writes files via temp-file-plus-rename so readers only
// ever observe the previous or the next complete content, never a torn mix.
package atomicfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile atomically replaces the file at path with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := WriteReader(path, bytes.NewReader(data), perm)
	return err
}

// WriteReader atomically replaces the file at path with the bytes read from
// r and returns the number of bytes written. The temp file is created in the
// same directory so the rename stays on one filesystem.
func WriteReader(path string, r io.Reader, perm os.FileMode) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return 0, fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return written, nil
}

// Staged is a temp file holding fully written content that has not replaced
// anything yet. Callers validate the content, then either Commit or Abort;
// until Commit, no destination path is touched.
type Staged struct {
	path string
	done bool
}

// Stage streams r into a temp file in dir and returns the staged file with
// the number of bytes written. dir must be on the same filesystem as the
// eventual Commit destination.
func Stage(dir string, r io.Reader, perm os.FileMode) (*Staged, int64, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("setting temp file mode: %w", err)
	}
	return &Staged{path: tmpPath}, written, nil
}

// Commit atomically renames the staged file over path.
func (s *Staged) Commit(path string) error {
	if s.done {
		return fmt.Errorf("staged file already committed or aborted")
	}
	if err := os.Rename(s.path, path); err != nil {
		return fmt.Errorf("renaming staged file: %w", err)
	}
	s.done = true
	return nil
}

// Abort removes the staged file. Safe to call after Commit.
func (s *Staged) Abort() {
	if s.done {
		return
	}
	os.Remove(s.path)
	s.done = true
}
