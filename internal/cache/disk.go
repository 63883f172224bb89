package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskCache stores one JSON file per key under dir so cached plans survive
// restarts. File names are key hashes; the key is stored in the file and
// checked on read.
type DiskCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

type diskEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// NewDiskCache creates a disk cache. A zero ttl never expires entries.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl, now: time.Now}
}

// Get returns the stored bytes for key. Expired entries are removed.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	name := c.file(key)
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, false
	}

	var e diskEntry
	if json.Unmarshal(raw, &e) != nil || e.Key != key {
		return nil, false
	}
	if !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt) {
		_ = os.Remove(name)
		return nil, false
	}
	return e.Value, true
}

// Set writes the entry through a temp file and a rename, so readers never
// see a partial entry. A zero ttl uses the cache default.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	e := diskEntry{Key: key, Value: value}
	if ttl != 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	_, werr := tmp.Write(raw)
	if err := errors.Join(werr, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.file(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

func (c *DiskCache) file(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}
