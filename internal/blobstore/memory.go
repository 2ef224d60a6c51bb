package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process store used by tests and dry runs. It is safe for
// concurrent use.
type Memory struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	mtimes map[string]time.Time

	// Now is the clock used to stamp writes. Tests override it to
	// exercise the engine's last-sync skip behavior.
	Now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		blobs:  make(map[string][]byte),
		mtimes: make(map[string]time.Time),
		Now:    time.Now,
	}
}

func (m *Memory) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[path]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[path] = stored
	m.mtimes[path] = m.Now().UTC()
	return nil
}

func (m *Memory) List(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(path, "/") + "/"
	var paths []string
	for p := range m.blobs {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Memory) LastModified(ctx context.Context, path string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.mtimes[path]; ok {
		return t, nil
	}

	// Directory semantics: newest child wins.
	prefix := strings.TrimSuffix(path, "/") + "/"
	var newest time.Time
	for p, t := range m.mtimes {
		if strings.HasPrefix(p, prefix) && t.After(newest) {
			newest = t
		}
	}
	return newest, nil
}
