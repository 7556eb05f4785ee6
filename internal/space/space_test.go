package space_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/space"
)

func TestCreateIsIdempotentFailing(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-test")
	require.NoError(t, err)

	meta, err := space.Create(ctx, store, "memory://space-test", "s1", "My Space")
	require.NoError(t, err)
	require.Equal(t, "s1", meta.ID)
	require.Equal(t, "My Space", meta.Name)

	_, err = space.Create(ctx, store, "memory://space-test", "s1", "Again")
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindConflict))
}

func TestOpenWiresHandleAndGetMeta(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-open-test")
	require.NoError(t, err)

	_, err = space.Create(ctx, store, "memory://space-open-test", "s2", "Opened")
	require.NoError(t, err)

	h, err := space.Open(ctx, store, "memory://space-open-test", "s2")
	require.NoError(t, err)
	require.Equal(t, "s2", h.SpaceID)
	require.NotNil(t, h.Entries)
	require.NotNil(t, h.Registry)
	require.NotNil(t, h.Catalog)

	// The reserved SQL form is registered as part of Create.
	names, err := h.Registry.ListForms(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "SQL")
}

func TestOpenUnknownSpaceIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-missing-test")
	require.NoError(t, err)

	_, err = space.Open(ctx, store, "memory://space-missing-test", "nope")
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindNotFound))
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-settings-test")
	require.NoError(t, err)
	_, err = space.Create(ctx, store, "memory://space-settings-test", "s3", "Settings")
	require.NoError(t, err)

	empty, err := space.GetSettings(ctx, store, "s3")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, space.PutSettings(ctx, store, "s3", space.Settings{"theme": "dark"}))
	got, err := space.GetSettings(ctx, store, "s3")
	require.NoError(t, err)
	require.Equal(t, "dark", got["theme"])
}

func TestListSpaces(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-list-test")
	require.NoError(t, err)
	_, err = space.Create(ctx, store, "memory://space-list-test", "a", "A")
	require.NoError(t, err)
	_, err = space.Create(ctx, store, "memory://space-list-test", "b", "B")
	require.NoError(t, err)

	ids, err := space.List(ctx, store)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestMigrateFormRewritesEntries(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://space-migrate-test")
	require.NoError(t, err)
	_, err = space.Create(ctx, store, "memory://space-migrate-test", "s4", "Migrate")
	require.NoError(t, err)

	h, err := space.Open(ctx, store, "memory://space-migrate-test", "s4")
	require.NoError(t, err)

	v1, err := forms.Normalize(forms.RawForm{
		Name:   "doc",
		Fields: []byte(`[{"name":"status","type":"string"},{"name":"legacy","type":"string"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, h.Registry.UpsertForm(ctx, v1))

	created, err := h.Entries.CreateEntry(ctx,
		"d1", "---\nform: doc\n---\n# D1\n\n## status\ndraft\n\n## legacy\nold\n", "alice")
	require.NoError(t, err)

	// Overwrite status, delete legacy, on every entry of the form.
	v2, err := forms.Normalize(forms.RawForm{
		Name:   "doc",
		Fields: []byte(`[{"name":"status","type":"string"},{"name":"legacy","type":"string"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, h.MigrateForm(ctx, v2, forms.Strategies{"status": "archived", "legacy": nil}))

	got, err := h.Entries.GetEntry(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "archived", got.Fields["status"])
	_, hasLegacy := got.Fields["legacy"]
	require.False(t, hasLegacy)
	require.Equal(t, entries.MigrationAuthor, got.Author)
	require.Equal(t, created.RevisionID, got.ParentRevisionID)
	require.Greater(t, got.UpdatedAt, created.UpdatedAt)

	history, err := h.Entries.GetEntryHistory(ctx, "d1", "doc")
	require.NoError(t, err)
	require.Len(t, history, 2)
}
