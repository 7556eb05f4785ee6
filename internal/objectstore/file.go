package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// fileStore backs file:// and fs:// URIs with the local filesystem, rooted
// at the path portion of the URI.
type fileStore struct {
	root string
}

func newFileStore(rest string) (*fileStore, error) {
	root := strings.TrimPrefix(rest, "/")
	if strings.HasPrefix(rest, "/") {
		// file:///abs/path -> rest == "/abs/path" after Cut, keep as absolute.
		root = rest
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ieerr.Transport(err, "resolve file store root %q", rest)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, ieerr.Transport(err, "create file store root %q", abs)
	}
	return &fileStore{root: abs}, nil
}

func (f *fileStore) abs(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(path))
}

func (f *fileStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.abs(path))
	if os.IsNotExist(err) {
		return nil, ieerr.NotFound("object not found: %s", path)
	}
	if err != nil {
		return nil, ieerr.Transport(err, "read %s", path)
	}
	return data, nil
}

func (f *fileStore) Write(_ context.Context, path string, data []byte) error {
	full := f.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ieerr.Transport(err, "mkdir for %s", path)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return ieerr.Transport(err, "write %s", path)
	}
	return nil
}

func (f *fileStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(f.abs(path)); err != nil && !os.IsNotExist(err) {
		return ieerr.Transport(err, "delete %s", path)
	}
	return nil
}

func (f *fileStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(f.abs(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, ieerr.Transport(err, "stat %s", path)
	}
	return true, nil
}

func (f *fileStore) CreateDir(_ context.Context, path string) error {
	if err := os.MkdirAll(f.abs(path), 0o755); err != nil {
		return ieerr.Transport(err, "mkdir %s", path)
	}
	return nil
}

func (f *fileStore) List(_ context.Context, prefix string) ([]ListEntry, error) {
	dir := f.abs(prefix)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ieerr.Transport(err, "list %s", prefix)
	}
	out := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		mode := ModeFile
		if e.IsDir() {
			mode = ModeDir
		}
		out = append(out, ListEntry{Name: e.Name(), Mode: mode})
	}
	return out, nil
}

func (f *fileStore) RemoveAll(_ context.Context, prefix string) error {
	if err := os.RemoveAll(f.abs(prefix)); err != nil {
		return ieerr.Transport(err, "remove all %s", prefix)
	}
	return nil
}
