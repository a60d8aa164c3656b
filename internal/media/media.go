// Package media stores attachment bytes on disk, content-addressed by
// SHA-256 digest, with digest verification on download.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Store is the wallet-local media directory.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the media directory under a wallet's data dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Pinned is the result of pinning a local file into the content-addressed store.
type Pinned struct {
	Digest string
	Mime   string
	Size   int64
}

// Pin hashes a local file, sniffs its mime type, and copies it under the
// content-addressed media directory keyed by its SHA-256 digest.
func (s *Store) Pin(path string) (Pinned, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pinned{}, fmt.Errorf("%w: %s", walleterr.ErrInvalidFilePath, err)
	}
	if len(data) == 0 {
		return Pinned{}, fmt.Errorf("%w: %s", walleterr.ErrEmptyFile, path)
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	mime := http.DetectContentType(data)

	dest := s.pathFor(digest)
	if _, err := os.Stat(dest); err == nil {
		return Pinned{Digest: digest, Mime: mime, Size: int64(len(data))}, nil
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return Pinned{}, fmt.Errorf("write media %s: %w", digest, err)
	}
	return Pinned{Digest: digest, Mime: mime, Size: int64(len(data))}, nil
}

// Write stores already-fetched bytes (e.g. from the relay) under their
// digest, verifying the digest matches before writing.
func (s *Store) Write(expectedDigest string, data []byte) error {
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != expectedDigest {
		return fmt.Errorf("%w: expected digest %s, got %s", walleterr.ErrFingerprintMismatch, expectedDigest, actual)
	}
	return os.WriteFile(s.pathFor(expectedDigest), data, 0o644)
}

// Exists reports whether a digest's file is present on disk, used by the
// Consistency Checker.
func (s *Store) Exists(digest string) bool {
	_, err := os.Stat(s.pathFor(digest))
	return err == nil
}

// Read returns the bytes stored for a digest.
func (s *Store) Read(digest string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(digest))
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", digest, err)
	}
	return data, nil
}

func (s *Store) pathFor(digest string) string {
	return filepath.Join(s.dir, digest)
}
