package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"devlog-cache/internal/core"
	"devlog-cache/internal/digest"
)

// MemoryStore is an in-memory implementation of core.Store, useful for
// testing. It is safe for concurrent use.
type MemoryStore struct {
	name  string
	clock core.Clock

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	meta core.ObjectMeta
	body []byte
}

// NewMemoryStore creates a new in-memory store with the given name.
func NewMemoryStore(name string, clock core.Clock) *MemoryStore {
	return &MemoryStore{
		name:    name,
		clock:   clock,
		objects: make(map[string]memoryObject),
	}
}

// Put stores an object. The write replaces any previous object under key in
// one step, so readers never observe a partial body.
func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, contentHash string) (core.ObjectMeta, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return core.ObjectMeta{}, core.Errorf(core.KindTransient, "memory.put", "reading body for %s: %w", key, err)
	}
	if int64(len(data)) != size {
		return core.ObjectMeta{}, core.Errorf(core.KindBadInput, "memory.put", "size mismatch for %s: expected %d bytes, got %d", key, size, len(data))
	}
	if contentHash == "" {
		contentHash = digest.FromBytes(data)
	}

	meta := core.ObjectMeta{
		Key:         key,
		ETag:        contentHash,
		ContentType: contentType,
		Size:        size,
		UploadedAt:  m.clock.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{meta: meta, body: data}
	return meta, nil
}

// Head returns metadata for key without the body.
func (m *MemoryStore) Head(ctx context.Context, key string) (core.ObjectMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return core.ObjectMeta{}, core.Errorf(core.KindNotFound, "memory.head", "object not found: %s", key)
	}
	return obj.meta, nil
}

// Get returns metadata and a reader over the body.
func (m *MemoryStore) Get(ctx context.Context, key string) (core.ObjectMeta, io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return core.ObjectMeta{}, nil, core.Errorf(core.KindNotFound, "memory.get", "object not found: %s", key)
	}
	return obj.meta, io.NopCloser(bytes.NewReader(obj.body)), nil
}

// List returns keys under prefix in lexical order. The page token is the
// last key of the previous page.
func (m *MemoryStore) List(ctx context.Context, prefix, pageToken string) ([]string, string, error) {
	m.mu.RLock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return pageKeys(keys, pageToken, listPageSize)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error { return nil }

// listPageSize matches the S3 default page size so all backends paginate
// with the same rhythm.
const listPageSize = 1000

// pageKeys applies the shared client-side pagination protocol: keys must be
// sorted; token is the last key already returned.
func pageKeys(sorted []string, token string, pageSize int) ([]string, string, error) {
	start := 0
	if token != "" {
		start = sort.SearchStrings(sorted, token)
		if start < len(sorted) && sorted[start] == token {
			start++
		}
	}
	end := start + pageSize
	if end >= len(sorted) {
		return sorted[start:], "", nil
	}
	return sorted[start:end], sorted[end-1], nil
}

// Compile-time check that MemoryStore implements core.Store.
var _ core.Store = (*MemoryStore)(nil)
