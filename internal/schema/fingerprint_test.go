package schema

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	data := []byte("%PDF-1.4 fake document body")

	a, err := Fingerprint(bytes.NewReader(data))
	require.NoError(t, err)
	b, err := Fingerprint(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "sha-256 hex digest")
}

func TestFingerprintDiffersOnContent(t *testing.T) {
	a, err := Fingerprint(bytes.NewReader([]byte("document one")))
	require.NoError(t, err)
	b, err := Fingerprint(bytes.NewReader([]byte("document two")))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFingerprintFileMatchesReader(t *testing.T) {
	data := []byte("same bytes either way")
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromFile, err := FingerprintFile(path)
	require.NoError(t, err)
	fromReader, err := Fingerprint(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, fromReader, fromFile)
}

func TestFingerprintFileMissing(t *testing.T) {
	_, err := FingerprintFile(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}
