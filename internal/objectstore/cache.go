package objectstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// remoteReadCacheSize bounds how many blobs a cachingStore keeps resident
// per remote backend. Remote reads (s3/azblob/gcs) are network round trips;
// local memory/file backends already live in process memory and skip this
// wrapper entirely.
const remoteReadCacheSize = 512

// cachingStore wraps a remote Store with a bounded, read-through LRU cache
// keyed by path. Writes and deletes invalidate the cached entry rather than
// updating it in place, so a failed Write never leaves a stale hit behind.
type cachingStore struct {
	inner Store
	cache *lru.Cache[string, []byte]
}

func withReadCache(inner Store) Store {
	c, err := lru.New[string, []byte](remoteReadCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which never happens
		// with the constant above.
		return inner
	}
	return &cachingStore{inner: inner, cache: c}
}

func (c *cachingStore) Read(ctx context.Context, path string) ([]byte, error) {
	if data, ok := c.cache.Get(path); ok {
		return data, nil
	}
	data, err := c.inner.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, data)
	return data, nil
}

func (c *cachingStore) Write(ctx context.Context, path string, data []byte) error {
	c.cache.Remove(path)
	return c.inner.Write(ctx, path, data)
}

func (c *cachingStore) Delete(ctx context.Context, path string) error {
	c.cache.Remove(path)
	return c.inner.Delete(ctx, path)
}

func (c *cachingStore) Exists(ctx context.Context, path string) (bool, error) {
	return c.inner.Exists(ctx, path)
}

func (c *cachingStore) CreateDir(ctx context.Context, path string) error {
	return c.inner.CreateDir(ctx, path)
}

func (c *cachingStore) List(ctx context.Context, prefix string) ([]ListEntry, error) {
	return c.inner.List(ctx, prefix)
}

func (c *cachingStore) RemoveAll(ctx context.Context, prefix string) error {
	c.cache.Purge()
	return c.inner.RemoveAll(ctx, prefix)
}
