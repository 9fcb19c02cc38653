package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprint computes the SHA-256 hex digest of the exact source document
// bytes. It is the schema cache key: identical bytes always produce the
// identical fingerprint, independent of render settings.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintFile computes the fingerprint of a file on disk.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint open %s: %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return Fingerprint(f)
}
