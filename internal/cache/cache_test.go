package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheKey_StableAndNamespaced(t *testing.T) {
	a := CacheKey("plan", "What does Seneca say?")
	b := CacheKey("plan", "What does Seneca say?")
	c := CacheKey("plan", "What does", " Seneca say?")

	if a != b {
		t.Errorf("Expected stable key, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected part boundaries to change the key")
	}
	if !strings.HasPrefix(a, "sagrag:v1:plan:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
}

func TestMemoryCache_JSONRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := SetJSON(c, "k", []string{"stoic", "legal"}, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got []string
	if !GetJSON(c, "k", &got) {
		t.Fatal("Expected cache hit")
	}
	if len(got) != 2 || got[0] != "stoic" {
		t.Errorf("Unexpected value: %v", got)
	}
}

func TestMemoryCache_StoresCopy(t *testing.T) {
	c := NewMemoryCache(0, time.Minute)
	buf := []byte("stoic")
	_ = c.Set("k", buf, 0)
	buf[0] = 'X'

	got, ok := c.Get("k")
	if !ok || string(got) != "stoic" {
		t.Errorf("Expected stored copy, got %q %v", got, ok)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	memory := NewMemoryCache(time.Hour, time.Minute)
	layered := NewLayered(memory, disk)

	if err := disk.Set("sagrag:v1:plan:abc", []byte("value"), 0); err != nil {
		t.Fatalf("disk set failed: %v", err)
	}

	val, ok := layered.Get("sagrag:v1:plan:abc")
	if !ok || string(val) != "value" {
		t.Fatalf("Expected disk hit, got %q %v", val, ok)
	}
	if memory.Len() != 1 {
		t.Errorf("Expected hit to be promoted to memory, len=%d", memory.Len())
	}

	if err := layered.Set("sagrag:v1:plan:def", []byte("both"), 0); err != nil {
		t.Fatalf("layered set failed: %v", err)
	}
	if v, ok := disk.Get("sagrag:v1:plan:def"); !ok || string(v) != "both" {
		t.Errorf("Expected write-through to disk, got %q %v", v, ok)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Set("k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}

	now := time.Now()
	c.now = func() time.Time { return now }
	_ = c.Set("k", []byte("v"), 0)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Expected fresh entry to hit")
	}
	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry past the default TTL to miss")
	}
}

func TestDiskCache_NoTTLNeverExpires(t *testing.T) {
	c := NewDiskCache(t.TempDir(), 0)
	_ = c.Set("k", []byte("v"), 0)
	c.now = func() time.Time { return time.Now().AddDate(10, 0, 0) }
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Errorf("Expected entry without TTL to persist, got %q %v", v, ok)
	}
}

func TestDiskCache_ArbitraryKeys(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	keys := []string{"sagrag:v1:plan:abc", "../escape", "a/b\\c"}
	for _, k := range keys {
		if err := c.Set(k, []byte(k), 0); err != nil {
			t.Fatalf("Set(%q) failed: %v", k, err)
		}
	}
	for _, k := range keys {
		if v, ok := c.Get(k); !ok || string(v) != k {
			t.Errorf("Get(%q) = %q %v", k, v, ok)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(keys) {
		t.Errorf("Expected %d files in the cache dir, got %d", len(keys), len(entries))
	}
}

func TestFileLoader_ReloadsOnModTimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.txt")
	loads := 0
	loader := NewFileLoader(path, func(b []byte) (string, error) {
		loads++
		return string(b), nil
	})

	v, err := loader.Load()
	if err != nil || v != "" {
		t.Fatalf("Expected empty value for missing file, got %q %v", v, err)
	}

	if err := os.WriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	v, _ = loader.Load()
	v2, _ := loader.Load()
	if v != "one" || v2 != "one" {
		t.Errorf("Unexpected values %q %q", v, v2)
	}
	if loads != 1 {
		t.Errorf("Expected a single decode for unchanged file, got %d", loads)
	}

	future := time.Now().Add(time.Hour)
	if err := os.WriteFile(path, []byte("two!"), 0644); err != nil {
		t.Fatal(err)
	}
	_ = os.Chtimes(path, future, future)

	v, _ = loader.Load()
	if v != "two!" {
		t.Errorf("Expected reload after change, got %q", v)
	}
	if loads != 2 {
		t.Errorf("Expected 2 decodes, got %d", loads)
	}
}
