package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"devlog-cache/internal/core"
	"devlog-cache/internal/digest"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func testClock() fixedClock {
	return fixedClock{t: time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryStore_PutHeadGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("test", testClock())

	data := `{"title":"devlog"}`
	meta, err := s.Put(ctx, "blogs/2025-08-27/digest.json", strings.NewReader(data), int64(len(data)), "application/json", "")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if meta.ETag != digest.FromBytes([]byte(data)) {
		t.Errorf("ETag = %s, want content digest", meta.ETag)
	}
	if meta.ContentType != "application/json" {
		t.Errorf("ContentType = %s", meta.ContentType)
	}
	if meta.UploadedAt.IsZero() {
		t.Error("UploadedAt is zero")
	}

	head, err := s.Head(ctx, "blogs/2025-08-27/digest.json")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head != meta {
		t.Errorf("Head() = %+v, want %+v", head, meta)
	}

	got, body, err := s.Get(ctx, "blogs/2025-08-27/digest.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer body.Close()
	if got.ETag != meta.ETag {
		t.Errorf("Get meta.ETag = %s, want %s", got.ETag, meta.ETag)
	}
	b, _ := io.ReadAll(body)
	if string(b) != data {
		t.Errorf("body = %q, want %q", b, data)
	}
}

func TestMemoryStore_ErrorKinds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("test", testClock())

	if _, err := s.Head(ctx, "nope"); !core.IsNotFound(err) {
		t.Errorf("Head() missing key error kind = %v, want not found", core.KindOf(err))
	}
	if _, _, err := s.Get(ctx, "nope"); !core.IsNotFound(err) {
		t.Errorf("Get() missing key error kind = %v, want not found", core.KindOf(err))
	}

	_, err := s.Put(ctx, "k", strings.NewReader("abc"), 99, "text/plain", "")
	if !core.IsBadInput(err) {
		t.Errorf("Put() size mismatch error kind = %v, want bad input", core.KindOf(err))
	}
}

func TestMemoryStore_PutTrustsCallerHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("test", testClock())

	meta, err := s.Put(ctx, "k", strings.NewReader("abc"), 3, "text/plain", "precomputed")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if meta.ETag != "precomputed" {
		t.Errorf("ETag = %s, want caller hash", meta.ETag)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("test", testClock())

	for _, key := range []string{"blogs/a.json", "blogs/b.json", "feed.xml"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, "application/json", ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	keys, next, err := s.List(ctx, "blogs/", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if next != "" {
		t.Errorf("next = %q, want empty", next)
	}
	want := []string{"blogs/a.json", "blogs/b.json"}
	if len(keys) != len(want) {
		t.Fatalf("List() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestPageKeys(t *testing.T) {
	var keys []string
	for i := 0; i < 5; i++ {
		keys = append(keys, fmt.Sprintf("k%02d", i))
	}

	page1, next, err := pageKeys(keys, "", 2)
	if err != nil {
		t.Fatalf("pageKeys() error = %v", err)
	}
	if len(page1) != 2 || page1[0] != "k00" || next != "k01" {
		t.Fatalf("page1 = %v next = %q", page1, next)
	}

	page2, next, err := pageKeys(keys, next, 2)
	if err != nil {
		t.Fatalf("pageKeys() error = %v", err)
	}
	if len(page2) != 2 || page2[0] != "k02" || next != "k03" {
		t.Fatalf("page2 = %v next = %q", page2, next)
	}

	page3, next, err := pageKeys(keys, next, 2)
	if err != nil {
		t.Fatalf("pageKeys() error = %v", err)
	}
	if len(page3) != 1 || page3[0] != "k04" || next != "" {
		t.Fatalf("page3 = %v next = %q", page3, next)
	}
}
