// Package objectstore implements the pluggable byte-blob backend: an async, path-addressed KV store with directory
// listing, reachable through a handful of URI schemes.
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mode distinguishes a listing entry's kind.
type Mode int

const (
	ModeFile Mode = iota
	ModeDir
)

// ListEntry is one item returned by Store.List.
type ListEntry struct {
	Name string
	Mode Mode
}

// Store is the object-store contract every backend implements. All methods
// are safe for concurrent use; the core never retries a failed call.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	CreateDir(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]ListEntry, error)
	RemoveAll(ctx context.Context, prefix string) error
}

var (
	cacheMu sync.Mutex
	cache   = map[string]Store{}
)

// Open resolves a URI to a Store. memory:// instances are process-shared by
// URI, so repeated Open calls for the same URI return the same backing
// store; tests rely on this to open the same in-memory workspace from two
// code paths.
func Open(ctx context.Context, uri string) (Store, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("objectstore: invalid URI %q: missing scheme", uri)
	}

	switch scheme {
	case "memory":
		cacheMu.Lock()
		defer cacheMu.Unlock()
		if s, ok := cache[uri]; ok {
			return s, nil
		}
		s := newMemoryStore()
		cache[uri] = s
		return s, nil
	case "file", "fs":
		return newFileStore(rest)
	case "s3":
		s, err := newS3Store(ctx, rest)
		if err != nil {
			return nil, err
		}
		return withReadCache(s), nil
	case "azblob":
		s, err := newAzblobStore(ctx, rest)
		if err != nil {
			return nil, err
		}
		return withReadCache(s), nil
	case "gcs":
		s, err := newGCSStore(ctx, rest)
		if err != nil {
			return nil, err
		}
		return withReadCache(s), nil
	default:
		return nil, fmt.Errorf("objectstore: unsupported scheme %q", scheme)
	}
}

func joinPrefix(root, path string) string {
	root = strings.TrimSuffix(root, "/")
	path = strings.TrimPrefix(path, "/")
	if root == "" {
		return path
	}
	return root + "/" + path
}
