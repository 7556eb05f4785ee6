package columnar_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// TestEncodeDecodeUUIDRoundTrip guards against the raw-bytes-as-string bug:
// a row's uuid/binary columns travel through json.Marshal twice on the
// append path (the row map, then parquet-go's own JSON writer encoding),
// which mangles non-UTF8 bytes placed directly in a Go string. The physical
// column value must stay valid UTF8 text (base64) end to end.
func TestEncodeDecodeUUIDRoundTrip(t *testing.T) {
	const id = "5f8c2e2a-9b1a-4e2f-9c3d-1a2b3c4d5e6f"
	enc, err := columnar.EncodeField(model.FieldUUID, id)
	require.NoError(t, err)
	encStr, ok := enc.(string)
	require.True(t, ok)
	require.True(t, utf8.ValidString(encStr), "encoded uuid column must be valid UTF8 text, got %q", encStr)

	// Simulate the row's trip through JSON twice, as Table.Append does.
	roundTripped := jsonRoundTrip(t, encStr)

	dec, err := columnar.DecodeField(model.FieldUUID, roundTripped)
	require.NoError(t, err)
	require.Equal(t, id, dec)
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x10, 0x80, 0x7f, 0x01, 0xde, 0xad, 0xbe, 0xef}
	enc, err := columnar.EncodeField(model.FieldBinary, string(raw))
	require.NoError(t, err)
	encStr, ok := enc.(string)
	require.True(t, ok)
	require.True(t, utf8.ValidString(encStr), "encoded binary column must be valid UTF8 text, got %q", encStr)

	roundTripped := jsonRoundTrip(t, encStr)

	dec, err := columnar.DecodeField(model.FieldBinary, roundTripped)
	require.NoError(t, err)
	require.Equal(t, "base64:"+base64.StdEncoding.EncodeToString(raw), dec)
}

// TestSchemaRebuildPreservesRows: changing a form's field set must preserve every current row
// and every revision row by entry_id, dropping removed fields and reading
// new fields back as null.
func TestSchemaRebuildPreservesRows(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://columnar-rebuild-test")
	require.NoError(t, err)
	cat := columnar.Open(store, "memory://columnar-rebuild-test", "spaces/s1")

	oldForm := &model.Form{
		Name: "F",
		Fields: []model.FieldDef{
			{Name: "a", Type: model.FieldString},
			{Name: "b", Type: model.FieldInteger},
		},
	}
	tables, err := cat.EnsureForm(ctx, oldForm)
	require.NoError(t, err)

	entry := &model.Entry{
		EntryID:    "entry-1",
		Form:       "F",
		UpdatedAt:  1.0,
		RevisionID: "r1",
		Fields:     map[string]any{"a": "x", "b": int64(1)},
	}
	row, err := columnar.RowFromEntry(entry, oldForm)
	require.NoError(t, err)
	require.NoError(t, tables.Current.Append(ctx, row))

	rev := &model.Revision{RevisionID: "r1", EntryID: "entry-1", Timestamp: 1.0, Fields: entry.Fields}
	revRow, err := columnar.RowFromRevision(rev, oldForm)
	require.NoError(t, err)
	require.NoError(t, tables.Revisions.Append(ctx, revRow))

	newForm := &model.Form{
		Name: "F",
		Fields: []model.FieldDef{
			{Name: "a", Type: model.FieldString},
			{Name: "c", Type: model.FieldBoolean},
		},
	}
	rebuilt, err := cat.EnsureForm(ctx, newForm)
	require.NoError(t, err)

	currentRows, err := rebuilt.Current.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, currentRows, 1)
	reconciled := columnar.ReconcileCurrent(currentRows)
	require.Len(t, reconciled, 1)

	restored, err := columnar.EntryFromRow(reconciled[0], newForm)
	require.NoError(t, err)
	require.Equal(t, "entry-1", restored.EntryID)
	require.Equal(t, "x", restored.Fields["a"])
	_, hasB := restored.Fields["b"]
	require.False(t, hasB, "dropped field b must not survive the rebuild")
	_, hasC := restored.Fields["c"]
	require.False(t, hasC, "newly added field c must read back as null/absent, not a zero value")

	revisionRows, err := rebuilt.Revisions.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, revisionRows, 1)
	restoredRev, err := columnar.RevisionFromRow(revisionRows[0], newForm)
	require.NoError(t, err)
	require.Equal(t, "entry-1", restoredRev.EntryID)
}

func TestReconcileCurrentKeepsMaxUpdatedAt(t *testing.T) {
	rows := []map[string]any{
		{"entry_id": "e1", "updated_at": "1.000000"},
		{"entry_id": "e1", "updated_at": "2.000000"},
		{"entry_id": "e2", "updated_at": "5.000000"},
	}
	out := columnar.ReconcileCurrent(rows)
	require.Len(t, out, 2)
	byID := map[string]map[string]any{}
	for _, r := range out {
		byID[r["entry_id"].(string)] = r
	}
	require.Equal(t, "2.000000", byID["e1"]["updated_at"])
	require.Equal(t, "5.000000", byID["e2"]["updated_at"])
}

func jsonRoundTrip(t *testing.T, s string) string {
	t.Helper()
	row := map[string]any{"v": s}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out["v"].(string)
}

func TestLatestRevisionPicksMaxTimestamp(t *testing.T) {
	rows := []map[string]any{
		{"entry_id": "e1", "revision_id": "r1", "timestamp": "1.000000"},
		{"entry_id": "e1", "revision_id": "r2", "timestamp": "3.000000"},
		{"entry_id": "e2", "revision_id": "r9", "timestamp": "9.000000"},
	}
	got := columnar.LatestRevision(rows, "e1")
	require.NotNil(t, got)
	require.Equal(t, "r2", got["revision_id"])

	require.Nil(t, columnar.LatestRevision(rows, "missing"))
}
