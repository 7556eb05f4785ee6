package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// gcsStore backs gcs://bucket/root URIs using Application Default
// Credentials, matching the s3Store/azblobStore environment-sourced pattern.
type gcsStore struct {
	client *storage.Client
	bucket string
	root   string
}

func newGCSStore(ctx context.Context, rest string) (*gcsStore, error) {
	bucket, root, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, ieerr.Transport(errors.New("missing bucket"), "gcs:// URI must include a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, ieerr.Transport(err, "create GCS client")
	}
	return &gcsStore{client: client, bucket: bucket, root: root}, nil
}

func (g *gcsStore) key(path string) string { return joinPrefix(g.root, path) }

func (g *gcsStore) obj(path string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.key(path))
}

func (g *gcsStore) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := g.obj(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ieerr.NotFound("object not found: %s", path)
	}
	if err != nil {
		return nil, ieerr.Transport(err, "open reader %s", path)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ieerr.Transport(err, "read %s", path)
	}
	return data, nil
}

func (g *gcsStore) Write(ctx context.Context, path string, data []byte) error {
	w := g.obj(path).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return ieerr.Transport(err, "write %s", path)
	}
	if err := w.Close(); err != nil {
		return ieerr.Transport(err, "close writer %s", path)
	}
	return nil
}

func (g *gcsStore) Delete(ctx context.Context, path string) error {
	if err := g.obj(path).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return ieerr.Transport(err, "delete %s", path)
	}
	return nil
}

func (g *gcsStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.obj(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ieerr.Transport(err, "stat %s", path)
	}
	return true, nil
}

// CreateDir is a no-op: GCS has no real directories.
func (g *gcsStore) CreateDir(_ context.Context, _ string) error { return nil }

func (g *gcsStore) List(ctx context.Context, prefix string) ([]ListEntry, error) {
	key := joinPrefix(g.root, prefix)
	if key != "" {
		key += "/"
	}
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: key, Delimiter: "/"})
	var out []ListEntry
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, ieerr.Transport(err, "list %s", prefix)
		}
		if attrs.Prefix != "" {
			name := strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, key), "/")
			out = append(out, ListEntry{Name: name, Mode: ModeDir})
			continue
		}
		name := strings.TrimPrefix(attrs.Name, key)
		if name == "" {
			continue
		}
		out = append(out, ListEntry{Name: name, Mode: ModeFile})
	}
	return out, nil
}

func (g *gcsStore) RemoveAll(ctx context.Context, prefix string) error {
	entries, err := g.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sub := prefix + "/" + e.Name
		if e.Mode == ModeDir {
			if err := g.RemoveAll(ctx, sub); err != nil {
				return err
			}
			continue
		}
		if err := g.Delete(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
