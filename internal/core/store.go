package core

import (
	"context"
	"io"
	"time"
)

// ObjectMeta describes a stored artifact without its body.
type ObjectMeta struct {
	// Key is the logical path of the object inside the store.
	Key string
	// ETag is the strong validator: the lowercase hex SHA-256 of the exact
	// content bytes, unquoted. HTTP quoting happens at the serving layer.
	ETag string
	// ContentType is the MIME type recorded at upload time.
	ContentType string
	// Size is the body length in bytes.
	Size int64
	// UploadedAt is the store-assigned wall-clock time of the last write.
	UploadedAt time.Time
}

// Store provides access to the durable object store holding published
// artifacts. All operations are atomic at the single-key level: no caller
// ever observes a half-written object.
//
// Errors are classified through the core error taxonomy: Head and Get return
// KindNotFound for missing keys, KindTransient for retryable backend
// failures, and KindFatal for auth/permission problems.
type Store interface {
	// Put writes an object. contentHash is the lowercase hex SHA-256 of the
	// body when the caller has already computed it; when empty the store
	// computes it while writing. size is the number of bytes that will be
	// read from body.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType, contentHash string) (ObjectMeta, error)

	// Head returns metadata for a key without transferring the body.
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Get returns metadata and a reader over the body. The caller closes
	// the reader.
	Get(ctx context.Context, key string) (ObjectMeta, io.ReadCloser, error)

	// List returns keys under prefix in lexical order, one page at a time.
	// Pass the returned next token to continue; an empty next token means
	// the listing is complete.
	List(ctx context.Context, prefix, pageToken string) (keys []string, next string, err error)

	// ValidateSetup verifies that the store is accessible and properly
	// configured.
	ValidateSetup(ctx context.Context) error
}

// Purger invalidates edge-cached copies of the given absolute URLs.
// Implementations must be idempotent: purging an already-evicted or unknown
// URL succeeds, so a partial failure is safe to retry wholesale.
type Purger interface {
	PurgeURLs(ctx context.Context, urls []string) (purged []string, err error)
}
