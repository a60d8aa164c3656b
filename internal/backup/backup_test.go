package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestZipUnzip_RoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "wallet.db"), []byte("sqlite-bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "media_files"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "media_files", "abc123"), []byte("img-bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	archive, err := Zip(src)
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}

	dst := t.TempDir()
	if err := Unzip(archive, dst); err != nil {
		t.Fatalf("Unzip: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "wallet.db"))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "sqlite-bytes" {
		t.Fatalf("restored content = %q", got)
	}
	got2, err := os.ReadFile(filepath.Join(dst, "media_files", "abc123"))
	if err != nil {
		t.Fatalf("read restored nested file: %v", err)
	}
	if string(got2) != "img-bytes" {
		t.Fatalf("restored nested content = %q", got2)
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	plaintext := []byte("this is the zipped wallet archive")
	sealed, err := Seal("correct horse battery staple", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed blob leaks plaintext")
	}

	opened, err := Open("correct horse battery staple", sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened = %q, want %q", opened, plaintext)
	}
}

func TestOpen_WrongPasswordFails(t *testing.T) {
	sealed, err := Seal("right-password", []byte("secret archive"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open("wrong-password", sealed); err == nil {
		t.Fatalf("expected error opening with wrong password")
	}
}

func TestIsDue(t *testing.T) {
	cases := []struct {
		name    string
		lastOp  string
		lastBak string
		want    bool
	}{
		{"never backed up, has operations", "2026-01-01T00:00:00Z", "", true},
		{"backup newer than op", "2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z", false},
		{"op newer than backup", "2026-01-03T00:00:00Z", "2026-01-02T00:00:00Z", true},
		{"no operations yet", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDue(tc.lastOp, tc.lastBak); got != tc.want {
				t.Fatalf("IsDue(%q, %q) = %v, want %v", tc.lastOp, tc.lastBak, got, tc.want)
			}
		})
	}
}
