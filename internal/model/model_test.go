package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/model"
)

func TestFieldByName(t *testing.T) {
	form := &model.Form{Fields: []model.FieldDef{
		{Name: "title", Type: model.FieldString},
		{Name: "count", Type: model.FieldInteger},
	}}

	fd, ok := form.FieldByName("count")
	require.True(t, ok)
	require.Equal(t, model.FieldInteger, fd.Type)

	_, ok = form.FieldByName("nope")
	require.False(t, ok)
}

func TestFieldNamesPreservesOrder(t *testing.T) {
	form := &model.Form{Fields: []model.FieldDef{
		{Name: "b"}, {Name: "a"}, {Name: "c"},
	}}
	require.Equal(t, []string{"b", "a", "c"}, form.FieldNames())
}

func TestReservedMetadataForms(t *testing.T) {
	require.True(t, model.ReservedMetadataForms["SQL"])
	require.False(t, model.ReservedMetadataForms["note"])
}
