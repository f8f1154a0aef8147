// Package purge invalidates edge-cached copies of a logical content unit
// after a publish, ahead of TTL expiry.
package purge

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"time"

	"devlog-cache/internal/core"
)

// Outcome reports a completed purge.
type Outcome struct {
	Scope string `json:"scope"`
	// Paths is the deterministically derived set for the scope.
	Paths []string `json:"paths"`
	// Executed is false when no purge backend is configured; short edge
	// TTLs plus conditional GET remain the correctness mechanism then.
	Executed bool `json:"executed"`
	// Purged lists the paths the edge confirmed invalidated.
	Purged []string `json:"purged"`
}

// Controller authenticates purge requests, derives the dependent path set
// for a scope, and executes the invalidation. It never purges more than the
// derived set: no global purge is reachable from here.
type Controller struct {
	token   string
	baseURL string
	purger  core.Purger
	logger  core.Logger
}

// NewController creates a Controller. token must be non-empty: a purge
// surface without a secret would let anyone evict the edge cache.
func NewController(token, baseURL string, purger core.Purger, logger core.Logger) (*Controller, error) {
	if token == "" {
		return nil, core.Errorf(core.KindFatal, "purge.new", "purge token is not configured")
	}
	return &Controller{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		purger:  purger,
		logger:  logger,
	}, nil
}

// Authorize checks a presented token in constant time.
func (c *Controller) Authorize(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.token)) != 1 {
		return core.Errorf(core.KindForbidden, "purge.auth", "invalid purge token")
	}
	return nil
}

// DerivePaths expands a date scope into the fixed dependent path set: the
// canonical page, both digest JSON documents, the asset prefix for that
// date, and the date-independent aggregates that embed every post. The
// expansion is pure; no network call is needed to know what to purge.
func DerivePaths(scope string) ([]string, error) {
	if _, err := time.Parse("2006-01-02", scope); err != nil {
		return nil, core.Errorf(core.KindBadInput, "purge.derive", "scope must be YYYY-MM-DD, got %q", scope)
	}

	paths := []string{
		"blog/" + scope,
		"blogs/" + scope + "/FINAL-" + scope + "_digest.json",
		"blogs/" + scope + "/API-" + scope + "_digest.json",
		"blogs/" + scope + "/assets/",
		"blogs/index.json",
		"feed.xml",
		"feed.atom",
		"feed.json",
		"sitemap.xml",
	}
	sort.Strings(paths)
	return paths, nil
}

// Purge authenticates, validates the scope, derives the path set, and asks
// the edge to invalidate it. Execution is idempotent and safe to retry.
func (c *Controller) Purge(ctx context.Context, scope, token string) (Outcome, error) {
	if err := c.Authorize(token); err != nil {
		c.logger.Warn("purge rejected", "scope", scope)
		return Outcome{}, err
	}

	paths, err := DerivePaths(scope)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Scope: scope, Paths: paths, Purged: []string{}}
	if c.purger == nil {
		c.logger.Info("purge derived without execution, no purge backend configured", "scope", scope, "paths", len(paths))
		return out, nil
	}

	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = c.baseURL + "/" + p
	}

	purgedURLs, err := c.purger.PurgeURLs(ctx, urls)
	if err != nil {
		return Outcome{}, fmt.Errorf("executing purge for %s: %w", scope, err)
	}

	out.Executed = true
	for _, u := range purgedURLs {
		out.Purged = append(out.Purged, strings.TrimPrefix(strings.TrimPrefix(u, c.baseURL), "/"))
	}
	sort.Strings(out.Purged)
	c.logger.Info("purge executed", "scope", scope, "purged", len(out.Purged))
	return out, nil
}
