package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/integrity"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/stats"
)

func setupAggregator(t *testing.T) (*stats.Aggregator, *entries.Engine) {
	t.Helper()
	ctx := context.Background()
	uri := "memory://stats-test-" + t.Name()
	store, err := objectstore.Open(ctx, uri)
	require.NoError(t, err)
	cat := columnar.Open(store, uri, "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	form, err := forms.Normalize(forms.RawForm{
		Name:   "note",
		Fields: []byte(`[{"name":"body","type":"markdown","required":true}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, form))

	return stats.NewAggregator(eng, reg), eng
}

func TestEntryCountByForm(t *testing.T) {
	agg, eng := setupAggregator(t)
	ctx := context.Background()

	_, err := eng.CreateEntry(ctx, "n1", "---\nform: note\ntags: [x]\n---\n# N1\n\n## body\nhi\n", "alice")
	require.NoError(t, err)
	_, err = eng.CreateEntry(ctx, "n2", "---\nform: note\ntags: [x, y]\n---\n# N2\n\n## body\nyo\n", "alice")
	require.NoError(t, err)

	counts, err := agg.EntryCountByForm(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts["note"])
}

func TestFieldFillRate(t *testing.T) {
	agg, eng := setupAggregator(t)
	ctx := context.Background()

	_, err := eng.CreateEntry(ctx, "n1", "---\nform: note\n---\n# N1\n\n## body\nhi\n", "alice")
	require.NoError(t, err)

	rates, err := agg.FieldFillRate(ctx, "note")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.Equal(t, "body", rates[0].Field)
	require.Equal(t, 1.0, rates[0].Rate)
}

func TestFieldFillRateAllCoversEveryForm(t *testing.T) {
	agg, eng := setupAggregator(t)
	ctx := context.Background()

	_, err := eng.CreateEntry(ctx, "n1", "---\nform: note\n---\n# N1\n\n## body\nhi\n", "alice")
	require.NoError(t, err)

	all, err := agg.FieldFillRateAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "note")
	require.Equal(t, 1.0, all["note"][0].Rate)
}

func TestTagFrequencyOrdering(t *testing.T) {
	agg, eng := setupAggregator(t)
	ctx := context.Background()

	_, err := eng.CreateEntry(ctx, "n1", "---\nform: note\ntags: [x, y]\n---\n# N1\n\n## body\nhi\n", "alice")
	require.NoError(t, err)
	_, err = eng.CreateEntry(ctx, "n2", "---\nform: note\ntags: [x]\n---\n# N2\n\n## body\nyo\n", "alice")
	require.NoError(t, err)

	freq, err := agg.TagFrequency(ctx)
	require.NoError(t, err)
	require.Len(t, freq, 2)
	require.Equal(t, "x", freq[0].Tag)
	require.Equal(t, 2, freq[0].Count)
	require.Equal(t, "y", freq[1].Tag)
	require.Equal(t, 1, freq[1].Count)
}
