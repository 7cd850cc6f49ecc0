package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/media/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Write(context.Background(), "/media/2024/05/./a.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "media/2024/05/a.png" {
		t.Fatalf("key = %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "media", "2024", "05", "a.png")); err != nil {
		t.Fatalf("stat: %v", err)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if got := store.URL(key); got != "http://localhost:8080/media/media/2024/05/a.png" {
		t.Fatalf("URL = %q", got)
	}
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", ".."} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("sanitizeKey(%q) succeeded, want error", key)
		}
	}
}

func TestFileStoreHandler(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	if _, err := store.Write(context.Background(), "2024/06/a.png", png); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cases := []struct {
		name   string
		method string
		path   string
		want   int
		ctype  string
	}{
		{name: "stored file", method: http.MethodGet, path: "/2024/06/a.png", want: http.StatusOK, ctype: "image/png"},
		{name: "head", method: http.MethodHead, path: "/2024/06/a.png", want: http.StatusOK, ctype: "image/png"},
		{name: "missing", method: http.MethodGet, path: "/2024/06/b.png", want: http.StatusNotFound},
		{name: "root", method: http.MethodGet, path: "/", want: http.StatusNotFound},
		{name: "post", method: http.MethodPost, path: "/2024/06/a.png", want: http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			store.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.ctype != "" && rec.Header().Get("Content-Type") != tc.ctype {
				t.Fatalf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tc.ctype)
			}
			if tc.method == http.MethodGet && tc.want == http.StatusOK && rec.Body.Len() != len(png) {
				t.Fatalf("body = %d bytes, want %d", rec.Body.Len(), len(png))
			}
		})
	}
}
