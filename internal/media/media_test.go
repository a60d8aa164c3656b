package media

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestPin_ContentAddressedAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "media_files"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	src := filepath.Join(dir, "attachment.png")
	data := []byte("\x89PNGfakepixels")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	sum := sha256.Sum256(data)
	wantDigest := hex.EncodeToString(sum[:])

	pinned, err := store.Pin(src)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if pinned.Digest != wantDigest {
		t.Fatalf("digest = %s, want %s", pinned.Digest, wantDigest)
	}
	if !store.Exists(wantDigest) {
		t.Fatalf("expected stored file to exist")
	}

	pinned2, err := store.Pin(src)
	if err != nil {
		t.Fatalf("second Pin: %v", err)
	}
	if pinned2.Digest != wantDigest {
		t.Fatalf("second pin digest mismatch")
	}
}

func TestPin_RejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(filepath.Join(dir, "media_files"))

	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := store.Pin(empty); err == nil {
		t.Fatalf("expected error pinning empty file")
	}
}

func TestWrite_VerifiesDigest(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(filepath.Join(dir, "media_files"))

	data := []byte("consignment media bytes")
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if err := store.Write(digest, data); err != nil {
		t.Fatalf("Write with correct digest: %v", err)
	}
	if !store.Exists(digest) {
		t.Fatalf("expected file to exist after write")
	}

	if err := store.Write("0000000000000000000000000000000000000000000000000000000000000000", data); err == nil {
		t.Fatalf("expected digest mismatch error")
	}
}
