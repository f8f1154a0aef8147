// Package publish decides upload-vs-skip per artifact: byte-identical
// content is never physically written twice under the same key.
package publish

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"devlog-cache/internal/core"
	"devlog-cache/internal/digest"
)

// Artifact is a named, typed byte payload handed to the publisher by a
// producer. Body must be seekable: the publisher hashes it before deciding
// whether an upload is needed at all.
type Artifact struct {
	Key         string
	ContentType string
	Body        io.ReadSeeker
}

// Outcome reports what Publish did for one artifact.
type Outcome int

const (
	// Skipped means the remote object already holds these exact bytes.
	Skipped Outcome = iota
	// Written means a physical write happened.
	Written
)

func (o Outcome) String() string {
	if o == Written {
		return "written"
	}
	return "skipped"
}

// putBackoff is the delay schedule for transient store errors: one initial
// attempt plus one retry per entry.
var putBackoff = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}

// Publisher performs idempotent publishes against a Store, consulting the
// local manifest to avoid redundant HEAD calls. Safe for concurrent use;
// each key is only ever in flight once.
type Publisher struct {
	store    core.Store
	manifest *Manifest
	logger   core.Logger

	keysMu   sync.Mutex
	inFlight map[string]*sync.Mutex
}

// NewPublisher creates a Publisher.
func NewPublisher(store core.Store, manifest *Manifest, logger core.Logger) *Publisher {
	return &Publisher{
		store:    store,
		manifest: manifest,
		logger:   logger,
		inFlight: make(map[string]*sync.Mutex),
	}
}

// Publish uploads the artifact unless the remote object already holds
// byte-identical content.
//
// The decision sequence: hash locally, confirm the remote state with a cheap
// HEAD, and only write when the remote validator disagrees or the object is
// missing. The remote check runs regardless of what the manifest says: a
// crash between a write and the manifest update, a fresh manifest, or an
// out-of-band bucket change all leave the manifest disagreeing with the
// bucket, and only the remote validator decides whether a physical write is
// needed. The manifest is reconciled from the confirmed remote state, so the
// next run after any of those events skips without a duplicate write.
func (p *Publisher) Publish(ctx context.Context, a Artifact) (Outcome, error) {
	unlock := p.lockKey(a.Key)
	defer unlock()

	localHash, size, err := digest.FromReader(a.Body)
	if err != nil {
		return Skipped, fmt.Errorf("hashing %s: %w", a.Key, err)
	}

	entry, known := p.manifest.Lookup(a.Key)
	meta, err := p.headWithRetry(ctx, a.Key)
	switch {
	case err == nil && meta.ETag == localHash:
		p.logger.Debug("publish skipped", "key", a.Key, "hash", localHash)
		if !known || entry.ContentHash != localHash || !entry.UploadedAt.Equal(meta.UploadedAt) {
			if err := p.manifest.Record(a.Key, Entry{ContentHash: localHash, UploadedAt: meta.UploadedAt}); err != nil {
				return Skipped, err
			}
		}
		return Skipped, nil
	case err == nil:
		if known && entry.ContentHash == localHash {
			// Out-of-band bucket mutation: the manifest says these bytes
			// are up, the bucket disagrees.
			p.logger.Warn("manifest out of sync with store", "key", a.Key)
		}
	case core.IsNotFound(err):
		// First write under this key.
	default:
		return Skipped, fmt.Errorf("confirming remote state of %s: %w", a.Key, err)
	}

	meta, err = p.putWithRetry(ctx, a, size, localHash)
	if err != nil {
		return Skipped, fmt.Errorf("publishing %s: %w", a.Key, err)
	}

	if err := p.manifest.Record(a.Key, Entry{ContentHash: localHash, UploadedAt: meta.UploadedAt}); err != nil {
		return Written, err
	}
	p.logger.Info("artifact published", "key", a.Key, "bytes", size, "hash", localHash)
	return Written, nil
}

// RunReport summarizes a batch publish run.
type RunReport struct {
	Written int
	Skipped int
	// Failed maps artifact keys to their final error after retries.
	Failed map[string]error
}

// FailedKeys returns the failed keys in lexical order.
func (r RunReport) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PublishAll publishes artifacts through a bounded worker pool. Individual
// failures are collected in the report rather than aborting the run; the
// caller decides what a partial run means. Cancellation is cooperative:
// artifacts not yet started are dropped, in-flight puts run to completion so
// no torn object is left behind.
func (p *Publisher) PublishAll(ctx context.Context, artifacts []Artifact, workers int) (RunReport, error) {
	if workers < 1 {
		workers = 1
	}

	report := RunReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(workers)

	for _, a := range artifacts {
		a := a
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			outcome, err := p.Publish(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed[a.Key] = err
			case outcome == Written:
				report.Written++
			default:
				report.Skipped++
			}
			return nil
		})
	}

	g.Wait()
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("publish run cancelled: %w", err)
	}
	return report, nil
}

func (p *Publisher) headWithRetry(ctx context.Context, key string) (core.ObjectMeta, error) {
	var meta core.ObjectMeta
	err := p.retry(ctx, func() error {
		var err error
		meta, err = p.store.Head(ctx, key)
		return err
	})
	return meta, err
}

func (p *Publisher) putWithRetry(ctx context.Context, a Artifact, size int64, contentHash string) (core.ObjectMeta, error) {
	var meta core.ObjectMeta
	err := p.retry(ctx, func() error {
		if _, err := a.Body.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding body: %w", err)
		}
		var err error
		meta, err = p.store.Put(ctx, a.Key, a.Body, size, a.ContentType, contentHash)
		return err
	})
	return meta, err
}

// retry runs fn, retrying transient failures on the putBackoff schedule.
// NotFound, Fatal and BadInput errors surface immediately.
func (p *Publisher) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !core.IsTransient(err) || attempt == len(putBackoff) {
			return err
		}

		p.logger.Warn("transient store error, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-time.After(putBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// lockKey serializes publishes per key. The returned func releases the key.
func (p *Publisher) lockKey(key string) func() {
	p.keysMu.Lock()
	mu, ok := p.inFlight[key]
	if !ok {
		mu = &sync.Mutex{}
		p.inFlight[key] = mu
	}
	p.keysMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
