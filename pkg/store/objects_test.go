package store

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPutWritesFile(t *testing.T) {
	root := t.TempDir()
	s := NewFSObjectStore(root, "http://localhost:8084", "sekrit")

	err := s.Put(context.Background(), "chat-imports/u1/import-1.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "chat-imports", "u1", "import-1.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}
}

func TestTraversalStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewFSObjectStore(root, "http://localhost", "sekrit")

	if err := s.Put(context.Background(), "../../escape.txt", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// The traversal collapses; the object lands inside the root.
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Fatalf("object not written inside root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); err == nil {
		t.Fatal("traversal escaped the store root")
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewFSObjectStore(root, "http://localhost:8084", "sekrit")
	_ = s.Put(context.Background(), "a/b.txt", []byte("payload"))

	signed, err := s.SignedURL("a/b.txt", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	req := httptest.NewRequest("GET", u.Path+"?"+u.RawQuery, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "payload" {
		t.Fatalf("body = %q", body)
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	s := NewFSObjectStore(t.TempDir(), "http://localhost", "sekrit")
	_ = s.Put(context.Background(), "a.txt", []byte("x"))

	signed, _ := s.SignedURL("a.txt", time.Minute)
	tampered := strings.Replace(signed, "sig=", "sig=ff", 1)
	u, _ := url.Parse(tampered)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", u.Path+"?"+u.RawQuery, nil))
	if rec.Code != 403 {
		t.Fatalf("tampered signature status = %d, want 403", rec.Code)
	}
}

func TestExpiredLinkRejected(t *testing.T) {
	s := NewFSObjectStore(t.TempDir(), "http://localhost", "sekrit")
	_ = s.Put(context.Background(), "a.txt", []byte("x"))

	current := time.Now()
	s.now = func() time.Time { return current }
	signed, _ := s.SignedURL("a.txt", time.Minute)

	current = current.Add(2 * time.Minute)
	u, _ := url.Parse(signed)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", u.Path+"?"+u.RawQuery, nil))
	if rec.Code != 403 {
		t.Fatalf("expired link status = %d, want 403", rec.Code)
	}
}
