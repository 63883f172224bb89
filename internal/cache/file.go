package cache

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLoader holds a value decoded from a file and reloads it only when the
// file's modification time changes
type FileLoader[T any] struct {
	path   string
	decode func([]byte) (T, error)

	mu      sync.RWMutex
	modTime time.Time
	size    int64
	value   T
	loaded  bool
}

// NewFileLoader creates a loader for path
func NewFileLoader[T any](path string, decode func([]byte) (T, error)) *FileLoader[T] {
	return &FileLoader[T]{path: path, decode: decode}
}

// Load returns the current value, re-reading the file when it changed.
// A missing file yields the zero value and no error.
func (l *FileLoader[T]) Load() (T, error) {
	var zero T
	if l.path == "" {
		return zero, nil
	}

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.Invalidate()
			return zero, nil
		}
		return zero, fmt.Errorf("stat %s: %w", l.path, err)
	}

	l.mu.RLock()
	if l.loaded && info.ModTime().Equal(l.modTime) && info.Size() == l.size {
		v := l.value
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", l.path, err)
	}
	v, err := l.decode(data)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", l.path, err)
	}

	l.mu.Lock()
	l.value = v
	l.modTime = info.ModTime()
	l.size = info.Size()
	l.loaded = true
	l.mu.Unlock()

	return v, nil
}

// Invalidate forces the next Load to re-read the file
func (l *FileLoader[T]) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value = zero
	l.loaded = false
}
