// Package backup implements wallet backup and restore: the whole wallet
// directory (sqlite file, media files, keys) is zipped, then sealed with a
// password-derived key. scrypt derives the key and XChaCha20-Poly1305
// authenticates the ciphertext.
package backup

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

const (
	backupMagic = "RGBWBKP1"
	saltLen     = 16
)

// Zip walks dir and produces a zip archive of its contents in memory.
func Zip(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("zip wallet dir %q: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Unzip extracts a zip archive's contents into dir, which must not already
// contain a wallet.
func Unzip(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	for _, f := range zr.File {
		dest := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.Name, err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open archived file %s: %w", f.Name, err)
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return fmt.Errorf("create %s: %w", dest, err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return fmt.Errorf("write %s: %w", dest, copyErr)
		}
	}
	return nil
}

// Seal derives a key from password via scrypt and encrypts plaintext with
// XChaCha20-Poly1305, prefixing the output with a magic/version tag, the
// scrypt salt, and the AEAD nonce.
func Seal(password string, plaintext []byte) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: backup password required", walleterr.ErrWrongPassword)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(password), salt, config.ScryptN, config.ScryptR, config.ScryptP, config.ScryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive backup key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, []byte(backupMagic))

	out := make([]byte, 0, len(backupMagic)+saltLen+len(nonce)+len(sealed))
	out = append(out, []byte(backupMagic)...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Open reverses Seal, returning walleterr.ErrWrongPassword on AEAD auth failure.
func Open(password string, blob []byte) ([]byte, error) {
	if len(blob) < len(backupMagic)+saltLen {
		return nil, fmt.Errorf("%w: backup file truncated", walleterr.ErrInvalidFilePath)
	}
	if string(blob[:len(backupMagic)]) != backupMagic {
		return nil, fmt.Errorf("%w: unrecognized backup format", walleterr.ErrUnsupportedBackupVersion)
	}
	rest := blob[len(backupMagic):]
	salt, rest := rest[:saltLen], rest[saltLen:]

	key, err := scrypt.Key([]byte(password), salt, config.ScryptN, config.ScryptR, config.ScryptP, config.ScryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive backup key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(rest) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: backup file truncated", walleterr.ErrInvalidFilePath)
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(backupMagic))
	if err != nil {
		return nil, fmt.Errorf("%w: backup decryption failed", walleterr.ErrWrongPassword)
	}
	return plaintext, nil
}

// IsDue reports whether a backup should be taken, comparing the operation
// and backup timestamps recorded in db.BackupInfo.
func IsDue(lastOperationTimestamp, lastBackupTimestamp string) bool {
	return lastOperationTimestamp > lastBackupTimestamp && lastOperationTimestamp != ""
}

// DefaultScryptCost exposes the cost parameter for callers that want to log
// or tune it; kept in line with config's other tunables rather than hardcoded
// at call sites.
func DefaultScryptCost() (n, r, p int) {
	return config.ScryptN, config.ScryptR, config.ScryptP
}
