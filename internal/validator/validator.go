// Package validator derives HTTP validators from object metadata and
// evaluates conditional request headers against them.
package validator

import (
	"net/http"
	"strings"
	"time"

	"devlog-cache/internal/core"
)

// Result is the outcome of evaluating a conditional request.
type Result int

const (
	// Proceed means the full body must be transferred.
	Proceed Result = iota
	// NotModified means the client's copy is current; respond 304, no body.
	NotModified
)

// ETagFor renders the quoted strong ETag for an object.
func ETagFor(meta core.ObjectMeta) string {
	return `"` + meta.ETag + `"`
}

// LastModifiedFor renders the Last-Modified value in HTTP-date format.
func LastModifiedFor(meta core.ObjectMeta) string {
	return meta.UploadedAt.UTC().Format(http.TimeFormat)
}

// Evaluate applies the conditional request rules, first match wins:
//
//  1. If-None-Match containing the object's strong ETag (or *) → NotModified.
//  2. Otherwise, with no If-None-Match present, If-Modified-Since at or
//     after uploadedAt → NotModified.
//  3. Otherwise → Proceed.
//
// Malformed conditional headers are treated as absent. Failing open to
// Proceed costs a redundant transfer; a false 304 would hide new content.
func Evaluate(reqHeader http.Header, meta core.ObjectMeta) Result {
	if inm := reqHeader.Get("If-None-Match"); inm != "" {
		if etagMatches(inm, ETagFor(meta)) {
			return NotModified
		}
		// If-None-Match takes precedence over If-Modified-Since: a client
		// holding a stale ETag needs the new body even if its date is fresh.
		return Proceed
	}

	if ims := reqHeader.Get("If-Modified-Since"); ims != "" {
		t, err := http.ParseTime(ims)
		if err != nil {
			return Proceed
		}
		// HTTP dates have second resolution; truncate before comparing.
		if !meta.UploadedAt.UTC().Truncate(time.Second).After(t) {
			return NotModified
		}
	}

	return Proceed
}

// etagMatches reports whether the quoted strong etag appears in an
// If-None-Match header value. Weak validators (W/ prefix) never match a
// strong comparison; unparseable entries simply do not match.
func etagMatches(headerValue, quotedETag string) bool {
	for _, candidate := range strings.Split(headerValue, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.HasPrefix(candidate, "W/") {
			continue
		}
		if candidate == quotedETag {
			return true
		}
	}
	return false
}
