package queryindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/integrity"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/queryindex"
	"github.com/ugoite/ieapp/internal/sqlengine"
)

func setup(t *testing.T) (context.Context, *entries.Engine, *sqlengine.Provider) {
	t.Helper()
	ctx := context.Background()
	uri := "memory://queryindex-test-" + t.Name()
	store, err := objectstore.Open(ctx, uri)
	require.NoError(t, err)
	cat := columnar.Open(store, uri, "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	form, err := forms.Normalize(forms.RawForm{
		Name:   "note",
		Fields: []byte(`[{"name":"body","type":"markdown"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, form))

	_, err = eng.CreateEntry(ctx, "n1", "---\nform: note\ntags: [urgent]\n---\n# N1\n\n## body\nhi\n", "alice")
	require.NoError(t, err)
	_, err = eng.CreateEntry(ctx, "n2", "---\nform: note\ntags: [low]\n---\n# N2\n\n## body\nyo\n", "alice")
	require.NoError(t, err)

	return ctx, eng, sqlengine.NewProvider(eng, reg, "s1")
}

func TestRunEmptyPayloadReturnsAllEntries(t *testing.T) {
	ctx, eng, provider := setup(t)
	rows, err := queryindex.Run(ctx, eng, provider, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRunStructuredFilterMatchesTag(t *testing.T) {
	ctx, eng, provider := setup(t)
	rows, err := queryindex.Run(ctx, eng, provider, map[string]any{"tag": "urgent"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "n1", rows[0]["entry_id"])
}

func TestRunStructuredFilterRejectsOperators(t *testing.T) {
	ctx, eng, provider := setup(t)
	_, err := queryindex.Run(ctx, eng, provider, map[string]any{"title": map[string]any{"$gt": "a"}})
	require.Error(t, err)
}

func TestRunEmbeddedSQL(t *testing.T) {
	ctx, eng, provider := setup(t)
	rows, err := queryindex.Run(ctx, eng, provider, map[string]any{"$sql": "SELECT * FROM entries"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRunJSONStringSQL(t *testing.T) {
	ctx, eng, provider := setup(t)
	rows, err := queryindex.RunJSON(ctx, eng, provider, []byte(`"SELECT * FROM entries"`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

// TestExtrasSurfaceInPropertiesOnlyUnderAllowColumns: an unknown section is
// queryable through the properties view only when the form's policy is
// allow_columns; under allow_json it stays confined to extra_attributes.
// word_count counts property-value tokens, not the whole rendered document.
func TestExtrasSurfaceInPropertiesOnlyUnderAllowColumns(t *testing.T) {
	ctx := context.Background()
	uri := "memory://queryindex-test-" + t.Name()
	store, err := objectstore.Open(ctx, uri)
	require.NoError(t, err)
	cat := columnar.Open(store, uri, "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	fields := []byte(`[{"name":"body","type":"markdown"}]`)
	wide, err := forms.Normalize(forms.RawForm{Name: "wide", Fields: fields, AllowExtraAttributes: "allow_columns"}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, wide))
	narrow, err := forms.Normalize(forms.RawForm{Name: "narrow", Fields: fields, AllowExtraAttributes: "allow_json"}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, narrow))

	_, err = eng.CreateEntry(ctx, "w1", "---\nform: wide\n---\n# W\n\n## body\nhi there\n\n## Mood\nsunny\n", "alice")
	require.NoError(t, err)
	_, err = eng.CreateEntry(ctx, "n1", "---\nform: narrow\n---\n# N\n\n## body\nhi there\n\n## Mood\nsunny\n", "alice")
	require.NoError(t, err)

	provider := sqlengine.NewProvider(eng, reg, "s1")

	rows, err := queryindex.Run(ctx, eng, provider, map[string]any{"Mood": "sunny"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "w1", rows[0]["entry_id"])

	rows, err = queryindex.Run(ctx, eng, provider, "SELECT * FROM entries WHERE Mood = 'sunny'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "w1", rows[0]["id"])

	table, err := provider.GetTable(ctx, "entries")
	require.NoError(t, err)
	counts := map[string]any{}
	for _, row := range table {
		counts[row["id"].(string)] = row["word_count"]
	}
	require.Equal(t, 3, counts["w1"]) // "hi there" + "sunny"
	require.Equal(t, 2, counts["n1"]) // "hi there" only
}
