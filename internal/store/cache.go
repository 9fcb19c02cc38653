// Package store persists schema specs keyed by document fingerprint.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Guillaume-Lombardo/extractforms/constants"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// ErrCacheCorrupt reports an unreadable or malformed cached spec. Callers
// treat it as a cache miss, never as a request failure.
var ErrCacheCorrupt = errors.New("cached schema is corrupt")

// Cache is the schema cache contract. Lookup returns (nil, nil) on a clean
// miss. Store is idempotent per fingerprint: identical content is a no-op,
// differing content replaces the entry atomically.
type Cache interface {
	Lookup(fingerprint string) (*schema.Spec, error)
	Store(spec *schema.Spec) error
	List() ([]*schema.Spec, error)
}

// FSCache keeps one file per fingerprint under a directory. Writes go
// through a temp file plus rename so a reader never observes a partial
// record.
type FSCache struct {
	dir    string
	logger *slog.Logger
}

// NewFSCache builds a filesystem cache rooted at dir, creating it if needed.
func NewFSCache(dir string, logger *slog.Logger) (*FSCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create schema cache dir %s: %w", dir, err)
	}
	return &FSCache{dir: dir, logger: logger}, nil
}

// entryPath derives the deterministic file name for a spec. Lookup matches
// on the same fingerprint encoding, keeping the key symmetric with Store.
func (c *FSCache) entryPath(spec *schema.Spec) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s-%s%s", safeName(spec.Name), spec.ID, spec.Fingerprint, constants.SchemaFileSuffix))
}

// safeName reduces a backend-proposed schema name to [a-z0-9-] so it cannot
// contain path separators or glob metacharacters. Runs of other characters
// collapse to a single dash.
func safeName(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "schema"
	}
	return b.String()
}

func (c *FSCache) entriesForFingerprint(fingerprint string) []string {
	matches, _ := filepath.Glob(filepath.Join(c.dir, "*-"+fingerprint+constants.SchemaFileSuffix))
	sort.Strings(matches)
	return matches
}

// Lookup returns the cached spec for a fingerprint, (nil, nil) on a miss, or
// ErrCacheCorrupt when the entry exists but cannot be trusted.
func (c *FSCache) Lookup(fingerprint string) (*schema.Spec, error) {
	if fingerprint == "" {
		return nil, nil
	}
	matches := c.entriesForFingerprint(fingerprint)
	if len(matches) == 0 {
		return nil, nil
	}
	spec, err := LoadFile(matches[0])
	if err != nil {
		return nil, err
	}
	if spec.Fingerprint != fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch in %s", ErrCacheCorrupt, matches[0])
	}
	return spec, nil
}

// Store persists a spec. At most one entry per fingerprint survives; the
// last completed write wins.
func (c *FSCache) Store(spec *schema.Spec) error {
	if spec.Fingerprint == "" {
		return errors.New("store schema: empty fingerprint")
	}
	payload, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	existing := c.entriesForFingerprint(spec.Fingerprint)
	target := c.entryPath(spec)
	for _, path := range existing {
		if path != target {
			continue
		}
		current, readErr := os.ReadFile(path)
		if readErr == nil && bytes.Equal(current, payload) {
			return nil // idempotent no-op
		}
	}

	tmp, err := os.CreateTemp(c.dir, ".schema-*")
	if err != nil {
		return fmt.Errorf("create temp schema file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write schema: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close schema file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace schema file: %w", err)
	}

	for _, path := range existing {
		if path != target {
			_ = os.Remove(path)
		}
	}
	c.logger.Info("schema.cache.stored", "path", target, "fields", len(spec.Fields))
	return nil
}

// List loads every readable cached spec, skipping corrupt entries with a
// logged anomaly.
func (c *FSCache) List() ([]*schema.Spec, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+constants.SchemaFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list schema cache: %w", err)
	}
	sort.Strings(matches)
	specs := make([]*schema.Spec, 0, len(matches))
	for _, path := range matches {
		spec, loadErr := LoadFile(path)
		if loadErr != nil {
			c.logger.Warn("schema.cache.corrupt_entry", "path", path, "error", loadErr)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadFile reads a schema file, enforcing the file-name contract and basic
// object-shape validation before the payload is used.
func LoadFile(path string) (*schema.Spec, error) {
	if !strings.HasSuffix(path, constants.SchemaFileSuffix) {
		return nil, fmt.Errorf("schema file %s: missing %s suffix", path, constants.SchemaFileSuffix)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	var spec schema.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, path, err)
	}
	if err := validateShape(&spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, path, err)
	}
	return &spec, nil
}

func validateShape(spec *schema.Spec) error {
	if spec.ID == "" {
		return errors.New("missing id")
	}
	if _, err := uuid.Parse(spec.ID); err != nil {
		return fmt.Errorf("id is not a UUID: %w", err)
	}
	if len(spec.Fields) == 0 {
		return errors.New("no fields")
	}
	seen := make(map[string]struct{}, len(spec.Fields))
	for _, f := range spec.Fields {
		if f.Key == "" {
			return errors.New("field with empty key")
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
	}
	return nil
}
