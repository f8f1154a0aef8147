package purge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"devlog-cache/internal/core"
)

func TestHTTPPurger_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody purgeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.Write([]byte(`{"success":true,"errors":[]}`))
	}))
	defer srv.Close()

	p := NewHTTPPurger(srv.URL, "zone123", "tok")
	urls := []string{"https://devlog.example.com/blog/2025-08-27", "https://devlog.example.com/feed.xml"}

	purged, err := p.PurgeURLs(context.Background(), urls)
	if err != nil {
		t.Fatalf("PurgeURLs() error = %v", err)
	}
	if !reflect.DeepEqual(purged, urls) {
		t.Errorf("purged = %v, want %v", purged, urls)
	}
	if gotPath != "/zones/zone123/purge_cache" {
		t.Errorf("request path = %q, want /zones/zone123/purge_cache", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if !reflect.DeepEqual(gotBody.Files, urls) {
		t.Errorf("request files = %v, want %v", gotBody.Files, urls)
	}
}

func TestHTTPPurger_EmptyBatchIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty batch should not reach the API")
	}))
	defer srv.Close()

	p := NewHTTPPurger(srv.URL, "zone123", "tok")
	purged, err := p.PurgeURLs(context.Background(), nil)
	if err != nil || purged != nil {
		t.Fatalf("PurgeURLs(nil) = %v, %v; want nil, nil", purged, err)
	}
}

func TestHTTPPurger_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind core.Kind
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, `{}`, core.KindFatal},
		{"forbidden is fatal", http.StatusForbidden, `{}`, core.KindFatal},
		{"server error is transient", http.StatusInternalServerError, `{}`, core.KindTransient},
		{"rate limit is transient", http.StatusTooManyRequests, `{}`, core.KindTransient},
		{"api-level failure is transient", http.StatusOK, `{"success":false,"errors":[{"code":1003,"message":"bad zone"}]}`, core.KindTransient},
		{"malformed response is transient", http.StatusOK, `not json`, core.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewHTTPPurger(srv.URL, "zone123", "tok")
			_, err := p.PurgeURLs(context.Background(), []string{"https://devlog.example.com/feed.xml"})
			if core.KindOf(err) != tt.wantKind {
				t.Errorf("error kind = %v, want %v (err = %v)", core.KindOf(err), tt.wantKind, err)
			}
		})
	}
}

func TestHTTPPurger_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	p := NewHTTPPurger(srv.URL, "zone123", "tok")
	_, err := p.PurgeURLs(context.Background(), []string{"https://devlog.example.com/feed.xml"})
	if !core.IsTransient(err) {
		t.Fatalf("error kind = %v, want transient (err = %v)", core.KindOf(err), err)
	}
}
