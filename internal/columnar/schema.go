package columnar

import (
	"fmt"
	"strings"

	"github.com/ugoite/ieapp/internal/model"
)

// fixedEntryColumns are the scalar/complex metadata columns every
// entries-table row carries alongside its form-specific fields.
// Complex sub-structures (tags, links, assets, canvas
// position, integrity) are stored as JSON-encoded UTF8 columns: parquet-go's
// JSON-schema nested-group support is fragile for deeply nested optional
// lists, and a JSON string column still round-trips losslessly while
// keeping every scalar field and every form field a genuine typed Parquet
// column, which is the part of section 4.2 that the SQL engine and the
// reconciliation rule actually depend on.
var fixedEntryColumns = []string{
	"entry_id", "title", "form", "created_at", "updated_at",
	"revision_id", "parent_revision_id", "author", "deleted", "deleted_at",
	"tags_json", "links_json", "assets_json", "canvas_position_json",
	"integrity_json", "extra_attributes_json",
}

var fixedRevisionColumns = []string{
	"revision_id", "entry_id", "parent_revision_id", "timestamp", "author",
	"markdown_checksum", "restored_from",
	"extra_attributes_json", "integrity_json",
}

// fieldColumnPrefix namespaces a form field's physical column so it can
// never collide with a fixed metadata column (reserved names are already
// rejected by the form registry, but the prefix keeps the schema builder
// robust even so).
const fieldColumnPrefix = "field__"

func fieldColumnName(field string) string { return fieldColumnPrefix + field }

// parquetType returns the physical Parquet tag fragment for a field type.
func parquetType(t model.FieldType) string {
	switch t {
	case model.FieldString, model.FieldMarkdown, model.FieldRowReference:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	case model.FieldNumber, model.FieldDouble:
		return "type=DOUBLE"
	case model.FieldFloat:
		return "type=FLOAT"
	case model.FieldInteger:
		return "type=INT32"
	case model.FieldLong:
		return "type=INT64"
	case model.FieldBoolean:
		return "type=BOOLEAN"
	case model.FieldDate:
		return "type=INT32, convertedtype=DATE"
	case model.FieldTime:
		return "type=INT64, convertedtype=TIME_MICROS"
	case model.FieldTimestamp, model.FieldTimestampTZ:
		return "type=INT64, convertedtype=TIMESTAMP_MICROS"
	case model.FieldTimestampNS, model.FieldTimestampTZNS:
		return "type=INT64"
	case model.FieldUUID, model.FieldBinary:
		// Stored as base64 text (see EncodeField/DecodeField in rowcodec.go):
		// rows pass through json.Marshal twice on the append path (the row
		// map, then the parquet-go JSON writer's own encoding), which would
		// mangle raw non-UTF8 bytes placed directly in a Go string. Base64
		// text is valid UTF8 and survives both encodings losslessly.
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	case model.FieldList, model.FieldObjectList:
		return "type=BYTE_ARRAY, convertedtype=UTF8" // JSON-encoded
	default:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

// buildSchema renders a parquet-go JSON schema string for a flat row with
// the given fixed columns plus one optional column per form field. Every
// column is OPTIONAL so that schema rebuilds never
// require backfilling old rows with a value for a newly added field.
func buildSchema(fixed []string, fields []model.FieldDef) string {
	var b strings.Builder
	b.WriteString(`{"Tag": "name=row, repetitiontype=REQUIRED", "Fields": [`)
	first := true
	writeCol := func(name, physType string) {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, `{"Tag": "name=%s, %s, repetitiontype=OPTIONAL"}`, name, physType)
	}
	for _, c := range fixed {
		writeCol(c, "type=BYTE_ARRAY, convertedtype=UTF8")
	}
	for _, fd := range fields {
		writeCol(fieldColumnName(fd.Name), parquetType(fd.Type))
	}
	b.WriteString(`]}`)
	return b.String()
}

// EntriesSchema returns the JSON schema for a form's current-rows table.
func EntriesSchema(form *model.Form) string { return buildSchema(fixedEntryColumns, form.Fields) }

// RevisionsSchema returns the JSON schema for a form's revisions table.
func RevisionsSchema(form *model.Form) string {
	return buildSchema(fixedRevisionColumns, form.Fields)
}
