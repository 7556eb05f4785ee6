package objectstore

import (
	"context"
	"strings"
	"sync"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// memoryStore is a process-shared, mutex-guarded byte store. It backs
// memory:// URIs and is the default for tests.
type memoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		files: map[string][]byte{},
		dirs:  map[string]bool{"": true},
	}
}

func (m *memoryStore) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, ieerr.NotFound("object not found: %s", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memoryStore) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[path] = buf
	m.markParentDirs(path)
	return nil
}

func (m *memoryStore) markParentDirs(path string) {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		m.dirs[strings.Join(parts[:i], "/")] = true
	}
}

func (m *memoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	trimmed := strings.TrimSuffix(path, "/")
	if m.dirs[trimmed] {
		return true, nil
	}
	return false, nil
}

func (m *memoryStore) CreateDir(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[strings.TrimSuffix(path, "/")] = true
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]ListEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix = strings.TrimSuffix(prefix, "/")
	seen := map[string]ListEntry{}

	consider := func(path string, isDir bool) {
		rel := path
		if prefix != "" {
			if !strings.HasPrefix(path, prefix+"/") {
				return
			}
			rel = strings.TrimPrefix(path, prefix+"/")
		}
		if rel == "" {
			return
		}
		head, isNested := splitFirst(rel)
		mode := ModeFile
		if isNested || isDir {
			mode = ModeDir
		}
		if existing, ok := seen[head]; !ok || (existing.Mode == ModeFile && mode == ModeDir) {
			seen[head] = ListEntry{Name: head, Mode: mode}
		}
	}

	for path := range m.files {
		consider(path, false)
	}
	for dir := range m.dirs {
		if dir == "" {
			continue
		}
		consider(dir, true)
	}

	out := make([]ListEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out, nil
}

func splitFirst(rel string) (head string, isNested bool) {
	if idx := strings.Index(rel, "/"); idx >= 0 {
		return rel[:idx], true
	}
	return rel, false
}

func (m *memoryStore) RemoveAll(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix = strings.TrimSuffix(prefix, "/")
	for path := range m.files {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			delete(m.files, path)
		}
	}
	for dir := range m.dirs {
		if dir == prefix || strings.HasPrefix(dir, prefix+"/") {
			delete(m.dirs, dir)
		}
	}
	return nil
}
