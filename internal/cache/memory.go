package cache

import (
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps entries in process memory. A zero default TTL keeps them
// for the life of the process.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory cache swept every sweep interval
func NewMemoryCache(ttl, sweep time.Duration) *MemoryCache {
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryCache{items: gocache.New(ttl, sweep)}
}

// Get returns the stored bytes for key
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores a copy of value, so callers may reuse their buffer. A zero ttl
// uses the default.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, slices.Clone(value), ttl)
	return nil
}

// Len returns the number of unexpired entries
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
