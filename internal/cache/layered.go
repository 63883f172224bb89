package cache

import (
	"errors"
	"time"
)

// LayeredCache checks a fast layer before a slow one and promotes slow hits
type LayeredCache struct {
	fast Cache
	slow Cache
}

// NewLayeredCache creates a memory-over-disk cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return NewLayered(NewMemoryCache(memoryTTL, 10*time.Minute), NewDiskCache(diskDir, diskTTL))
}

// NewLayered stacks two arbitrary caches
func NewLayered(fast, slow Cache) *LayeredCache {
	return &LayeredCache{fast: fast, slow: slow}
}

// Get retrieves a value, checking the fast layer first
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.fast.Get(key); found {
		return val, true
	}

	if val, found := c.slow.Get(key); found {
		_ = c.fast.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	return errors.Join(c.fast.Set(key, value, ttl), c.slow.Set(key, value, ttl))
}
