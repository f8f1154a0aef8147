package policy

import "testing"

func TestFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        Policy
	}{
		{"application/json", jsonPolicy},
		{"application/json; charset=utf-8", jsonPolicy},
		{"text/html", htmlPolicy},
		{"TEXT/HTML; charset=utf-8", htmlPolicy},
		{"image/png", mediaPolicy},
		{"image/jpeg", mediaPolicy},
		{"video/mp4", mediaPolicy},
		{"application/xml", xmlPolicy},
		{"application/rss+xml", xmlPolicy},
		{"application/atom+xml", xmlPolicy},
		{"application/octet-stream", defaultPolicy},
		{"", defaultPolicy},
		{"application/wasm", defaultPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := For(tt.contentType); got != tt.want {
				t.Errorf("For(%q) = %+v, want %+v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestCacheControl_Exact(t *testing.T) {
	// Header strings are part of the external contract; they must be
	// bit-exact for interoperability with caches and browsers.
	tests := []struct {
		contentType string
		want        string
	}{
		{"application/json", "public, max-age=300, s-maxage=1800, stale-while-revalidate=60"},
		{"text/html", "public, max-age=3600, s-maxage=86400, stale-while-revalidate=300"},
		{"image/png", "public, max-age=86400, s-maxage=86400, stale-while-revalidate=3600"},
		{"application/xml", "public, max-age=3600, s-maxage=86400, stale-while-revalidate=300"},
		{"application/octet-stream", "public, max-age=300, s-maxage=1800, stale-while-revalidate=60"},
	}

	for _, tt := range tests {
		if got := For(tt.contentType).CacheControl(); got != tt.want {
			t.Errorf("CacheControl(%s) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestCDNCacheControl(t *testing.T) {
	got := For("application/json").CDNCacheControl()
	want := "max-age=1800, stale-while-revalidate=60"
	if got != want {
		t.Errorf("CDNCacheControl() = %q, want %q", got, want)
	}
}

func TestContentTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"index.html", "text/html; charset=utf-8"},
		{"blogs/2025-08-27/FINAL-2025-08-27_digest.json", "application/json"},
		{"sitemap.xml", "application/xml"},
		{"feed.atom", "application/atom+xml"},
		{"assets/clip.mp4", "video/mp4"},
		{"assets/cover.PNG", "image/png"},
		{"README", "application/octet-stream"},
		{"archive.tar.gz", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := ContentTypeForPath(tt.path); got != tt.want {
			t.Errorf("ContentTypeForPath(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
