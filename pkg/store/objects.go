package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ObjectStore is the byte-storage collaborator: upload by path plus
// time-limited signed retrieval URLs.
type ObjectStore interface {
	Put(ctx context.Context, objectPath string, data []byte) error
	SignedURL(objectPath string, ttl time.Duration) (string, error)
}

// FSObjectStore stores objects under a local root directory and signs
// retrieval URLs with an HMAC so links expire and cannot be forged.
type FSObjectStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewFSObjectStore builds a filesystem object store. baseURL is the public
// prefix under which SignedURL links are served (e.g. http://host:port).
func NewFSObjectStore(root, baseURL, secret string) *FSObjectStore {
	return &FSObjectStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
}

// Put writes data to objectPath below the store root.
func (s *FSObjectStore) Put(_ context.Context, objectPath string, data []byte) error {
	clean, err := s.cleanPath(objectPath)
	if err != nil {
		return err
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("object store mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("object store write: %w", err)
	}
	return nil
}

// SignedURL returns a retrieval URL valid for ttl.
func (s *FSObjectStore) SignedURL(objectPath string, ttl time.Duration) (string, error) {
	clean, err := s.cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	sig := s.sign(clean, exp)
	return fmt.Sprintf("%s/files/%s?exp=%d&sig=%s", s.baseURL, clean, exp, sig), nil
}

// ServeHTTP serves signed downloads under /files/. Expired or tampered
// signatures yield 403.
func (s *FSObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/files/")
	clean, err := s.cleanPath(objectPath)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil || s.now().Unix() > exp {
		http.Error(w, "link expired", http.StatusForbidden)
		return
	}
	sig := r.URL.Query().Get("sig")
	if !hmac.Equal([]byte(sig), []byte(s.sign(clean, exp))) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.root, filepath.FromSlash(clean)))
}

// Verify reports whether a path/expiry/signature triple is currently valid.
func (s *FSObjectStore) Verify(objectPath string, exp int64, sig string) bool {
	clean, err := s.cleanPath(objectPath)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(clean, exp)))
}

func (s *FSObjectStore) sign(objectPath string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", objectPath, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *FSObjectStore) cleanPath(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("object store: invalid path %q", objectPath)
	}
	return strings.TrimPrefix(clean, "/"), nil
}
