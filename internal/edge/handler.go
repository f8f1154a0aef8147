// Package edge is the HTTP surface that serves published artifacts with
// correct validators and cache policy, and hosts the authenticated purge
// endpoint.
package edge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"devlog-cache/internal/core"
	"devlog-cache/internal/policy"
	"devlog-cache/internal/purge"
	"devlog-cache/internal/validator"
)

// datePath matches the legacy slashed blog URLs that redirect to the
// canonical dashed form.
var datePath = regexp.MustCompile(`^/blogs?/(\d{4})/(\d{2})/(\d{2})$`)

// Handler serves artifacts from the store. It is stateless per request:
// the only shared state is the read-only policy table and the read-through
// store.
type Handler struct {
	store      core.Store
	controller *purge.Controller
	logger     core.Logger
}

// NewHandler creates a Handler. controller may be nil, which disables the
// purge endpoint with a 404.
func NewHandler(store core.Store, controller *purge.Controller, logger core.Logger) *Handler {
	return &Handler{store: store, controller: controller, logger: logger}
}

// Routes builds the router: CORS preflight is answered before any store
// lookup, every other response flows through the access log.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match", "If-Modified-Since"},
		MaxAge:         86400,
	}))
	r.Use(accessLog(h.logger))

	r.Get("/healthz", h.health)
	r.Post("/control/purge", h.purgeHandler)
	r.Get("/*", h.serveObject)
	r.NotFound(h.notFoundHandler)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// serveObject resolves the request path to a store key and serves it with
// validators and cache policy. Unchanged content is answered 304 without a
// body; error responses always carry no-cache headers so they are never
// accidentally cached.
func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request) {
	if m := datePath.FindStringSubmatch(r.URL.Path); m != nil {
		http.Redirect(w, r, fmt.Sprintf("/blog/%s-%s-%s", m[1], m[2], m[3]), http.StatusMovedPermanently)
		return
	}

	key := resolveKey(r.URL.Path)
	meta, err := h.store.Head(r.Context(), key)
	if err != nil {
		h.storeError(w, key, err)
		return
	}

	if validator.Evaluate(r.Header, meta) == validator.NotModified {
		setCacheHeaders(w, meta)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	meta, body, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.storeError(w, key, err)
		return
	}
	defer body.Close()

	setCacheHeaders(w, meta)
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", meta.Size))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		h.logger.Error("streaming body failed", "key", key, "error", err)
	}
}

// purgeHandler implements POST /control/purge?date=YYYY-MM-DD.
// A missing or non-Bearer Authorization header is 401; a wrong token is 403.
func (h *Handler) purgeHandler(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		writeJSONError(w, http.StatusNotFound, "purge is not configured")
		return
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if auth == "" || !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	outcome, err := h.controller.Purge(r.Context(), r.URL.Query().Get("date"), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"scope":    outcome.Scope,
			"purged":   outcome.Paths,
			"executed": outcome.Executed,
		})
	case core.IsForbidden(err):
		writeJSONError(w, http.StatusForbidden, "invalid token")
	case core.IsBadInput(err):
		writeJSONError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
	default:
		h.logger.Error("purge failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "purge failed")
	}
}

func (h *Handler) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, "not found")
}

// storeError maps a store failure to a client response without leaking
// internal detail; full context goes to the server log.
func (h *Handler) storeError(w http.ResponseWriter, key string, err error) {
	switch {
	case core.IsNotFound(err), core.IsBadInput(err):
		writeJSONError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("store error", "key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// resolveKey maps a URL path to a store key.
func resolveKey(path string) string {
	key := strings.TrimPrefix(path, "/")
	if key == "" {
		return "index.html"
	}
	return key
}

// setCacheHeaders writes the full validator and cache policy header set for
// a cacheable response.
func setCacheHeaders(w http.ResponseWriter, meta core.ObjectMeta) {
	pol := policy.For(meta.ContentType)
	h := w.Header()
	h.Set("ETag", validator.ETagFor(meta))
	h.Set("Last-Modified", validator.LastModifiedFor(meta))
	h.Set("Cache-Control", pol.CacheControl())
	h.Set("CDN-Cache-Control", pol.CDNCacheControl())
	h.Set("Vary", "Accept-Encoding")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", policy.NoCache)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
