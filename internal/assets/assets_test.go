package assets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/assets"
	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/integrity"
	"github.com/ugoite/ieapp/internal/objectstore"
)

func newTestManager(t *testing.T) (*assets.Manager, *entries.Engine) {
	t.Helper()
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://assets-test")
	require.NoError(t, err)
	cat := columnar.Open(store, "memory://assets-test", "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	fields := `[{"name":"body","type":"markdown"}]`
	form, err := forms.Normalize(forms.RawForm{Name: "note", Fields: []byte(fields)}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, form))

	return assets.NewManager(store, eng, "spaces/s1"), eng
}

// TestAssetDeleteBlockedWhileReferenced: deleting an asset fails while a
// live entry carries it and succeeds once the reference is detached.
func TestAssetDeleteBlockedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	mgr, eng := newTestManager(t)

	_, err := eng.CreateEntry(ctx, "e1", "---\nform: note\n---\n# A\n\n## body\na\n", "alice")
	require.NoError(t, err)

	ref, err := mgr.Put(ctx, "e1", "diagram.png", []byte("png-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, ref.ID)

	data, err := mgr.Read(ctx, ref.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)

	err = mgr.Delete(ctx, ref.ID)
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindConflict))

	require.NoError(t, eng.RemoveAsset(ctx, "e1", ref.ID))
	require.NoError(t, mgr.Delete(ctx, ref.ID))

	_, err = mgr.Read(ctx, ref.ID)
	require.Error(t, err)
}

func TestAssetList(t *testing.T) {
	ctx := context.Background()
	mgr, eng := newTestManager(t)

	_, err := eng.CreateEntry(ctx, "e2", "---\nform: note\n---\n# B\n\n## body\nb\n", "alice")
	require.NoError(t, err)

	ref, err := mgr.Put(ctx, "e2", "notes.txt", []byte("text"))
	require.NoError(t, err)

	list, err := mgr.List(ctx)
	require.NoError(t, err)

	found := false
	for _, a := range list {
		if a.ID == ref.ID {
			found = true
			require.Equal(t, "notes.txt", a.Name)
		}
	}
	require.True(t, found)
}
