package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
)

func TestMemoryStoreIsProcessSharedByURI(t *testing.T) {
	ctx := context.Background()
	a, err := objectstore.Open(ctx, "memory://shared-test")
	require.NoError(t, err)
	require.NoError(t, a.Write(ctx, "x.txt", []byte("hello")))

	b, err := objectstore.Open(ctx, "memory://shared-test")
	require.NoError(t, err)
	data, err := b.Read(ctx, "x.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestMemoryStoreReadMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://missing-test")
	require.NoError(t, err)

	_, err = store.Read(ctx, "nope.txt")
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindNotFound))
}

func TestMemoryStoreListDedupesByImmediateChildPreferringDir(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://list-test")
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "forms/note/definition.json", []byte(`{}`)))
	require.NoError(t, store.Write(ctx, "meta.json", []byte(`{}`)))

	entries, err := store.List(ctx, "")
	require.NoError(t, err)

	byName := map[string]objectstore.Mode{}
	for _, e := range entries {
		byName[e.Name] = e.Mode
	}
	require.Equal(t, objectstore.ModeDir, byName["forms"])
	require.Equal(t, objectstore.ModeFile, byName["meta.json"])
}

func TestMemoryStoreRemoveAllDropsPrefix(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://removeall-test")
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "forms/note/a.parquet", []byte("1")))
	require.NoError(t, store.Write(ctx, "forms/note/b.parquet", []byte("2")))
	require.NoError(t, store.RemoveAll(ctx, "forms/note"))

	entries, err := store.List(ctx, "forms")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := objectstore.Open(context.Background(), "ftp://nope")
	require.Error(t, err)
}
