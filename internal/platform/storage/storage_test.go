package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"cases/a/b.txt", "cases/a/b.txt", false},
		{"/cases//a/./b.txt", "cases/a/b.txt", false},
		{`cases\a\b.txt`, "cases/a/b.txt", false},
		{"", "", true},
		{"../etc/passwd", "", true},
		{"cases/../../x", "", true},
	}
	for _, tc := range tests {
		got, err := CleanKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("CleanKey(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("CleanKey(%q)=%q,%v want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.StorageConfig{Mode: config.StorageLocal, LocalDir: t.TempDir(), Prefix: "qf"}, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := UploadKey("case-1", "up-1", "../../逐字稿.txt")
	if !strings.HasSuffix(key, "/逐字稿.txt") {
		t.Fatalf("unsafe upload key %q", key)
	}

	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists before Put: ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, key, strings.NewReader("hello"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists after Put: ok=%v err=%v", ok, err)
	}
	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello" {
		t.Fatalf("Get=%q", b)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete twice should be a no-op: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmulatorReads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/storage/v1/b/quotes/o/") {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "missing.txt") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = io.WriteString(w, "emulated")
			return
		}
		_, _ = io.WriteString(w, `{"size":"8"}`)
	}))
	defer srv.Close()

	s := &gcsStore{
		log:          logger.Nop(),
		mode:         config.StorageGCSEmulator,
		bucket:       "quotes",
		emulatorHost: srv.URL,
		httpClient:   srv.Client(),
	}
	ctx := context.Background()
	rc, err := s.Get(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "emulated" {
		t.Fatalf("Get=%q", b)
	}
	if ok, err := s.Exists(ctx, "docs/a.txt"); err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	if ok, err := s.Exists(ctx, "docs/missing.txt"); err != nil || ok {
		t.Fatalf("Exists missing: ok=%v err=%v", ok, err)
	}
	if _, err := s.Get(ctx, "docs/missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := ContentTypeForKey("a/b.DOCX"); !strings.Contains(got, "wordprocessingml") {
		t.Fatalf("docx content type=%q", got)
	}
	if got := ContentTypeForKey("a/b.bin"); got != "application/octet-stream" {
		t.Fatalf("default content type=%q", got)
	}
}
