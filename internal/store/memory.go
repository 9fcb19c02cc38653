package store

import (
	"sync"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// MemCache is an in-memory Cache used by tests and embedding callers that
// do not want filesystem persistence.
type MemCache struct {
	mu    sync.RWMutex
	byFpr map[string]schema.Spec
}

// NewMemCache builds an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{byFpr: make(map[string]schema.Spec)}
}

// Lookup returns the spec for a fingerprint, or (nil, nil) on a miss.
func (c *MemCache) Lookup(fingerprint string) (*schema.Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.byFpr[fingerprint]
	if !ok {
		return nil, nil
	}
	out := spec
	return &out, nil
}

// Store keeps at most one entry per fingerprint.
func (c *MemCache) Store(spec *schema.Spec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFpr[spec.Fingerprint] = *spec
	return nil
}

// List returns all stored specs.
func (c *MemCache) List() ([]*schema.Spec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs := make([]*schema.Spec, 0, len(c.byFpr))
	for fpr := range c.byFpr {
		spec := c.byFpr[fpr]
		specs = append(specs, &spec)
	}
	return specs, nil
}
