package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"devlog-cache/internal/atomicfile"
	"devlog-cache/internal/core"
)

// FileSystemStore is a filesystem-backed implementation of core.Store.
// It mirrors the remote bucket layout for local runs and tests:
//
//	<root>/
//	  objects/
//	    <key>          (body, nested directories per key path)
//	  meta/
//	    <key>.json     (metadata sidecar)
//
// Bodies and sidecars are both written via temp-file-plus-rename. The
// sidecar is written last and is the commit point: a key without a parseable
// sidecar does not exist as far as readers are concerned.
type FileSystemStore struct {
	name       string
	root       string
	objectsDir string
	metaDir    string
	clock      core.Clock
}

// fileMeta is the sidecar shape.
type fileMeta struct {
	ETag        string    `json:"etag"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
func NewFileSystemStore(name, root string, clock core.Clock) (*FileSystemStore, error) {
	objectsDir := filepath.Join(root, "objects")
	metaDir := filepath.Join(root, "meta")

	for _, dir := range []string{objectsDir, metaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	return &FileSystemStore{
		name:       name,
		root:       root,
		objectsDir: objectsDir,
		metaDir:    metaDir,
		clock:      clock,
	}, nil
}

// Put stages the body, validates it, and only then replaces the previous
// object and commits the metadata sidecar. The digest is computed while
// streaming; when the caller supplied one, a mismatch fails the write rather
// than recording a wrong validator. Any failure before the commit leaves the
// previous object and its sidecar untouched.
func (s *FileSystemStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, contentHash string) (core.ObjectMeta, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, err
	}

	objPath := filepath.Join(s.objectsDir, filepath.FromSlash(key))
	metaPath := filepath.Join(s.metaDir, filepath.FromSlash(key)+".json")
	for _, p := range []string{objPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return core.ObjectMeta{}, core.Errorf(core.KindTransient, "fs.put", "creating parent directory for %s: %w", key, err)
		}
	}

	h := sha256.New()
	staged, written, err := atomicfile.Stage(filepath.Dir(objPath), io.TeeReader(body, h), 0644)
	if err != nil {
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, "fs.put", "writing %s: %w", key, err)
	}
	defer staged.Abort()

	if written != size {
		return core.ObjectMeta{}, core.Errorf(core.KindBadInput, "fs.put", "size mismatch for %s: expected %d bytes, got %d", key, size, written)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if contentHash != "" && contentHash != sum {
		return core.ObjectMeta{}, core.Errorf(core.KindBadInput, "fs.put", "content hash mismatch for %s: expected %s, got %s", key, contentHash, sum)
	}

	meta := core.ObjectMeta{
		Key:         key,
		ETag:        sum,
		ContentType: contentType,
		Size:        size,
		UploadedAt:  s.clock.Now().UTC(),
	}
	sidecar, err := json.MarshalIndent(fileMeta{
		ETag:        meta.ETag,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		UploadedAt:  meta.UploadedAt,
	}, "", "  ")
	if err != nil {
		return core.ObjectMeta{}, fmt.Errorf("encoding metadata for %s: %w", key, err)
	}

	if err := staged.Commit(objPath); err != nil {
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, "fs.put", "committing %s: %w", key, err)
	}
	// Between the body rename above and the sidecar rename below, a
	// concurrent Get pairs the new body with the old sidecar's metadata.
	// The body is already validated, so the exposure is limited to a stale
	// ETag/Size until the sidecar lands.
	if err := atomicfile.WriteFile(metaPath, sidecar, 0644); err != nil {
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, "fs.put", "writing metadata for %s: %w", key, err)
	}

	return meta, nil
}

// Head returns metadata for key from the sidecar; the body is never opened.
func (s *FileSystemStore) Head(ctx context.Context, key string) (core.ObjectMeta, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, err
	}
	return s.readMeta(key, "fs.head")
}

// Get returns metadata and an open reader over the body.
func (s *FileSystemStore) Get(ctx context.Context, key string) (core.ObjectMeta, io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return core.ObjectMeta{}, nil, err
	}

	meta, err := s.readMeta(key, "fs.get")
	if err != nil {
		return core.ObjectMeta{}, nil, err
	}

	f, err := os.Open(filepath.Join(s.objectsDir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return core.ObjectMeta{}, nil, core.Errorf(core.KindNotFound, "fs.get", "object not found: %s", key)
		}
		return core.ObjectMeta{}, nil, core.Errorf(core.KindTransient, "fs.get", "opening %s: %w", key, err)
	}
	return meta, f, nil
}

// List walks the sidecar tree and returns committed keys under prefix in
// lexical order, paginated with the shared token protocol.
func (s *FileSystemStore) List(ctx context.Context, prefix, pageToken string) ([]string, string, error) {
	var keys []string
	err := filepath.WalkDir(s.metaDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.metaDir, p)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, "", core.Errorf(core.KindTransient, "fs.list", "walking store: %w", err)
	}

	sort.Strings(keys)
	return pageKeys(keys, pageToken, listPageSize)
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{s.root, s.objectsDir, s.metaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return core.Errorf(core.KindFatal, "fs.validate", "store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return core.Errorf(core.KindFatal, "fs.validate", "store path is not a directory: %s", dir)
		}
	}
	return nil
}

func (s *FileSystemStore) readMeta(key, op string) (core.ObjectMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.metaDir, filepath.FromSlash(key)+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return core.ObjectMeta{}, core.Errorf(core.KindNotFound, op, "object not found: %s", key)
		}
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, op, "reading metadata for %s: %w", key, err)
	}

	var fm fileMeta
	if err := json.Unmarshal(data, &fm); err != nil {
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, op, "parsing metadata for %s: %w", key, err)
	}
	return core.ObjectMeta{
		Key:         key,
		ETag:        fm.ETag,
		ContentType: fm.ContentType,
		Size:        fm.Size,
		UploadedAt:  fm.UploadedAt,
	}, nil
}

// validateKey rejects keys that would escape the store root or alias the
// pagination and sidecar conventions.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return core.Errorf(core.KindBadInput, "store.key", "invalid object key: %q", key)
	}
	return nil
}

// Compile-time check that FileSystemStore implements core.Store.
var _ core.Store = (*FileSystemStore)(nil)
