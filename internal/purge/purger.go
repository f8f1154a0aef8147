package purge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"devlog-cache/internal/core"
)

// HTTPPurger invalidates URLs through a Cloudflare-style zone purge API:
// POST <apiBase>/zones/<zoneID>/purge_cache with {"files": [...]}.
// Purging is idempotent on the provider side, so the whole batch is safe to
// resubmit after a partial failure.
type HTTPPurger struct {
	apiBase  string
	zoneID   string
	apiToken string
	client   *http.Client
}

// NewHTTPPurger creates an HTTPPurger.
func NewHTTPPurger(apiBase, zoneID, apiToken string) *HTTPPurger {
	return &HTTPPurger{
		apiBase:  apiBase,
		zoneID:   zoneID,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type purgeRequest struct {
	Files []string `json:"files"`
}

type purgeResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// PurgeURLs submits the batch and returns the URLs confirmed purged.
// API-level failures are Transient: the caller may resubmit the batch.
func (p *HTTPPurger) PurgeURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(purgeRequest{Files: urls})
	if err != nil {
		return nil, fmt.Errorf("encoding purge request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/zones/%s/purge_cache", p.apiBase, p.zoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building purge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, core.NewError(core.KindTransient, "purge.http", fmt.Errorf("calling purge API: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewError(core.KindTransient, "purge.http", fmt.Errorf("reading purge API response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, core.Errorf(core.KindFatal, "purge.http", "purge API rejected credentials: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, core.Errorf(core.KindTransient, "purge.http", "purge API returned %s: %s", resp.Status, respBody)
	}

	var parsed purgeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, core.NewError(core.KindTransient, "purge.http", fmt.Errorf("parsing purge API response: %w", err))
	}
	if !parsed.Success {
		return nil, core.Errorf(core.KindTransient, "purge.http", "purge API reported failure: %v", parsed.Errors)
	}

	return urls, nil
}

// Compile-time check that HTTPPurger implements core.Purger.
var _ core.Purger = (*HTTPPurger)(nil)
