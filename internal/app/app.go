// Package app is the application layer between the CLI and the publish,
// serve, and purge operations. It constructs all dependencies from config
// and manages their lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"devlog-cache/internal/config"
	"devlog-cache/internal/core"
	"devlog-cache/internal/edge"
	"devlog-cache/internal/ledger"
	"devlog-cache/internal/policy"
	"devlog-cache/internal/publish"
	"devlog-cache/internal/purge"
	"devlog-cache/internal/store"
)

// App wires the store, ledger, manifest, publisher, and purge controller
// from config and exposes the high-level operations the CLI needs.
type App struct {
	cfg       *config.Config
	store     core.Store
	ledger    *ledger.Ledger
	manifest  *publish.Manifest
	publisher *publish.Publisher
	logger    core.Logger
	logFile   *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "Publish", "Serve") and scopes the log
// lines of this invocation. The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID+"/"+operation)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := core.RealClock{}
	st, err := store.NewStoreFromConfig(context.Background(), cfg.Store, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	manifest, err := publish.OpenManifest(cfg.Manifest.Path, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening manifest: %w", err)
	}

	return &App{
		cfg:       cfg,
		store:     st,
		ledger:    led,
		manifest:  manifest,
		publisher: publish.NewPublisher(st, manifest, logger),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// Ledger exposes the dedup ledger to upstream fetchers.
func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Publisher exposes the idempotent publisher to in-process producers.
func (a *App) Publisher() *publish.Publisher { return a.publisher }

// PublishDir walks dir and publishes every regular file, keyed by its
// slash-separated path relative to dir (optionally under keyPrefix), with
// the content type inferred from the extension. Returns the run report;
// individual failures are inside it.
func (a *App) PublishDir(ctx context.Context, dir, keyPrefix string, workers int) (publish.RunReport, error) {
	var artifacts []publish.Artifact
	var open []*os.File
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("opening %s: %w", p, err)
		}
		open = append(open, f)

		key := filepath.ToSlash(rel)
		if keyPrefix != "" {
			key = path.Join(keyPrefix, key)
		}
		artifacts = append(artifacts, publish.Artifact{
			Key:         key,
			ContentType: policy.ContentTypeForPath(key),
			Body:        f,
		})
		return nil
	})
	if err != nil {
		return publish.RunReport{}, fmt.Errorf("walking %s: %w", dir, err)
	}

	a.logger.Info("publish run starting", "dir", dir, "artifacts", len(artifacts), "workers", workers)
	return a.publisher.PublishAll(ctx, artifacts, workers)
}

// Serve runs the edge HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	controller, err := a.purgeController()
	if err != nil {
		a.logger.Warn("purge endpoint disabled", "reason", err)
		controller = nil
	}

	handler := edge.NewHandler(a.store, controller, a.logger)
	server := edge.NewServer(a.cfg.Edge.Listen, handler.Routes(), a.logger)
	return server.Run(ctx)
}

// Purge derives and executes the purge for a date scope using the
// configured token.
func (a *App) Purge(ctx context.Context, scope string) (purge.Outcome, error) {
	controller, err := a.purgeController()
	if err != nil {
		return purge.Outcome{}, err
	}
	return controller.Purge(ctx, scope, a.purgeToken())
}

func (a *App) purgeController() (*purge.Controller, error) {
	var purger core.Purger
	if a.cfg.Purge.ZoneID != "" {
		apiToken := a.cfg.Purge.APIToken
		if apiToken == "" {
			apiToken = os.Getenv("CLOUDFLARE_API_TOKEN")
		}
		purger = purge.NewHTTPPurger(a.cfg.Purge.APIBase, a.cfg.Purge.ZoneID, apiToken)
	}
	return purge.NewController(a.purgeToken(), a.cfg.Edge.PublicBaseURL, purger, a.logger)
}

func (a *App) purgeToken() string {
	if a.cfg.Purge.Token != "" {
		return a.cfg.Purge.Token
	}
	return os.Getenv("PURGE_TOKEN")
}

// LedgerLen returns the number of recorded dedup entries.
func (a *App) LedgerLen() int { return a.ledger.Len() }

// LedgerClear wipes the dedup ledger. Explicit operator action only.
func (a *App) LedgerClear() error {
	a.logger.Warn("clearing dedup ledger", "path", a.ledger.Path(), "entries", a.ledger.Len())
	return a.ledger.Clear()
}

// ValidateStore checks that the configured store is reachable.
func (a *App) ValidateStore(ctx context.Context) error {
	return a.store.ValidateSetup(ctx)
}
