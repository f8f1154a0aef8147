// Package policy maps artifact content types to the cache lifetimes served
// with them. The table is static: policies are enumerated, never inferred at
// runtime from arbitrary strings.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// Policy holds the cache lifetimes for one content category.
type Policy struct {
	BrowserMaxAge        time.Duration
	EdgeMaxAge           time.Duration
	StaleWhileRevalidate time.Duration
}

// NoCache is the Cache-Control value for responses that must never be
// cached: 404s, 500s, and control-plane replies.
const NoCache = "no-cache, no-store, must-revalidate"

var (
	jsonPolicy  = Policy{BrowserMaxAge: 300 * time.Second, EdgeMaxAge: 1800 * time.Second, StaleWhileRevalidate: 60 * time.Second}
	htmlPolicy  = Policy{BrowserMaxAge: 3600 * time.Second, EdgeMaxAge: 86400 * time.Second, StaleWhileRevalidate: 300 * time.Second}
	mediaPolicy = Policy{BrowserMaxAge: 86400 * time.Second, EdgeMaxAge: 86400 * time.Second, StaleWhileRevalidate: 3600 * time.Second}
	xmlPolicy   = Policy{BrowserMaxAge: 3600 * time.Second, EdgeMaxAge: 86400 * time.Second, StaleWhileRevalidate: 300 * time.Second}

	// defaultPolicy is the most conservative entry; unknown types land here.
	defaultPolicy = jsonPolicy
)

// For returns the policy for a MIME content type. Every type maps to
// exactly one policy; unknown types fall back to the shortest-TTL entry.
func For(contentType string) Policy {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))

	switch {
	case ct == "application/json":
		return jsonPolicy
	case ct == "text/html":
		return htmlPolicy
	case strings.HasPrefix(ct, "image/"), strings.HasPrefix(ct, "video/"):
		return mediaPolicy
	case ct == "application/xml", ct == "text/xml",
		ct == "application/rss+xml", ct == "application/atom+xml":
		return xmlPolicy
	default:
		return defaultPolicy
	}
}

// CacheControl renders the browser-facing header value.
func (p Policy) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, s-maxage=%d, stale-while-revalidate=%d",
		int(p.BrowserMaxAge.Seconds()), int(p.EdgeMaxAge.Seconds()), int(p.StaleWhileRevalidate.Seconds()))
}

// CDNCacheControl renders the edge-only header value.
func (p Policy) CDNCacheControl() string {
	return fmt.Sprintf("max-age=%d, stale-while-revalidate=%d",
		int(p.EdgeMaxAge.Seconds()), int(p.StaleWhileRevalidate.Seconds()))
}

// contentTypes maps file extensions to MIME types for the publish CLI.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".atom": "application/atom+xml",
	".txt":  "text/plain; charset=utf-8",
	".css":  "text/css",
	".js":   "application/javascript",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// ContentTypeForPath infers a MIME type from a file path's extension.
// Unknown extensions are served as application/octet-stream.
func ContentTypeForPath(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "application/octet-stream"
	}
	if ct, ok := contentTypes[strings.ToLower(path[i:])]; ok {
		return ct
	}
	return "application/octet-stream"
}
