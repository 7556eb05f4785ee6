package forms_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
)

func TestNormalizeRejectsReservedFormName(t *testing.T) {
	_, err := forms.Normalize(forms.RawForm{Name: "SQL"}, false)
	require.Error(t, err)

	form, err := forms.Normalize(forms.RawForm{Name: "SQL"}, true)
	require.NoError(t, err)
	require.Equal(t, "SQL", form.Name)
}

func TestNormalizeFieldsArrayAndObjectForms(t *testing.T) {
	arr, err := forms.Normalize(forms.RawForm{
		Name:   "t1",
		Fields: []byte(`[{"name":"a","type":"string"}]`),
	}, false)
	require.NoError(t, err)
	require.Len(t, arr.Fields, 1)
	require.Equal(t, "a", arr.Fields[0].Name)

	obj, err := forms.Normalize(forms.RawForm{
		Name:   "t2",
		Fields: []byte(`{"b":{"type":"integer","required":true}}`),
	}, false)
	require.NoError(t, err)
	require.Len(t, obj.Fields, 1)
	require.Equal(t, "b", obj.Fields[0].Name)
	require.True(t, obj.Fields[0].Required)
}

func TestNormalizeRowReferenceRequiresTargetForm(t *testing.T) {
	_, err := forms.Normalize(forms.RawForm{
		Name:   "t3",
		Fields: []byte(`[{"name":"ref","type":"row_reference"}]`),
	}, false)
	require.Error(t, err)
}

func TestCastValueTable(t *testing.T) {
	form := &model.Form{
		Name: "cast",
		Fields: []model.FieldDef{
			{Name: "n", Type: model.FieldInteger, Required: true},
			{Name: "f", Type: model.FieldDouble},
			{Name: "b", Type: model.FieldBoolean},
			{Name: "tags", Type: model.FieldList},
		},
	}

	cast, warnings, err := forms.ValidateAndCast(form, map[string]any{
		"n":    "42",
		"f":    "3.5",
		"b":    "true",
		"tags": "- one\n- two\n",
	})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, int64(42), cast["n"])
	require.Equal(t, 3.5, cast["f"])
	require.Equal(t, true, cast["b"])
	require.Equal(t, []string{"one", "two"}, cast["tags"])

	_, warnings, err = forms.ValidateAndCast(form, map[string]any{"f": "3.5"})
	require.Error(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "missing_field", warnings[0].Reason)

	_, warnings, err = forms.ValidateAndCast(form, map[string]any{"n": "not-a-number"})
	require.Error(t, err)
	require.Equal(t, "invalid_type", warnings[0].Reason)
}

func TestRegistryUpsertRebuildsOnFieldChange(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://forms-rebuild-test")
	require.NoError(t, err)
	cat := columnar.Open(store, "memory://forms-rebuild-test", "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")

	v1, err := forms.Normalize(forms.RawForm{
		Name:   "widget",
		Fields: []byte(`[{"name":"size","type":"string"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, v1))

	tables, err := cat.EnsureForm(ctx, v1)
	require.NoError(t, err)
	require.NoError(t, tables.Current.Append(ctx, map[string]any{
		"entry_id": "e1", "title": "W", "form": "widget",
		"created_at": "1.0", "updated_at": "1.0",
		"revision_id": "r1", "parent_revision_id": "",
		"author": "alice", "deleted": "false", "deleted_at": "0",
	}))

	v2, err := forms.Normalize(forms.RawForm{
		Name:   "widget",
		Fields: []byte(`[{"name":"size","type":"string"},{"name":"weight","type":"double"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, v2))

	tables2, err := cat.EnsureForm(ctx, v2)
	require.NoError(t, err)
	rows, err := tables2.Current.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "e1", rows[0]["entry_id"])
}
