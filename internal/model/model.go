// Package model holds the domain types shared by the form registry, the
// entry engine, the columnar store, and the SQL engine.
package model

// FieldType enumerates the physical/surface encodings a form field may use.
type FieldType string

const (
	FieldString        FieldType = "string"
	FieldMarkdown      FieldType = "markdown"
	FieldNumber        FieldType = "number"
	FieldDouble        FieldType = "double"
	FieldFloat         FieldType = "float"
	FieldInteger       FieldType = "integer"
	FieldLong          FieldType = "long"
	FieldBoolean       FieldType = "boolean"
	FieldDate          FieldType = "date"
	FieldTime          FieldType = "time"
	FieldTimestamp     FieldType = "timestamp"
	FieldTimestampTZ   FieldType = "timestamp_tz"
	FieldTimestampNS   FieldType = "timestamp_ns"
	FieldTimestampTZNS FieldType = "timestamp_tz_ns"
	FieldUUID          FieldType = "uuid"
	FieldBinary        FieldType = "binary"
	FieldList          FieldType = "list"
	FieldObjectList    FieldType = "object_list"
	FieldRowReference  FieldType = "row_reference"
)

// ValidFieldTypes is the closed set accepted by the form registry.
var ValidFieldTypes = map[FieldType]bool{
	FieldString: true, FieldMarkdown: true, FieldNumber: true, FieldDouble: true,
	FieldFloat: true, FieldInteger: true, FieldLong: true, FieldBoolean: true,
	FieldDate: true, FieldTime: true, FieldTimestamp: true, FieldTimestampTZ: true,
	FieldTimestampNS: true, FieldTimestampTZNS: true, FieldUUID: true, FieldBinary: true,
	FieldList: true, FieldObjectList: true, FieldRowReference: true,
}

// ExtraAttributesPolicy governs markdown sections that don't match a form field.
type ExtraAttributesPolicy string

const (
	ExtraDeny        ExtraAttributesPolicy = "deny"
	ExtraAllowJSON   ExtraAttributesPolicy = "allow_json"
	ExtraAllowColumn ExtraAttributesPolicy = "allow_columns"
)

// FieldDef describes one field of a Form.
type FieldDef struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required,omitempty"`
	TargetForm string    `json:"target_form,omitempty"`
}

// Form is a named, versioned schema of fields.
type Form struct {
	Name                 string                `json:"name"`
	Version              int                   `json:"version"`
	Fields               []FieldDef            `json:"-"`
	AllowExtraAttributes ExtraAttributesPolicy `json:"allow_extra_attributes"`
}

// FieldByName returns the field definition for name, case-sensitively, and
// whether it was found.
func (f *Form) FieldByName(name string) (FieldDef, bool) {
	for _, fd := range f.Fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return FieldDef{}, false
}

// FieldNames returns the fields in declaration order.
func (f *Form) FieldNames() []string {
	names := make([]string, len(f.Fields))
	for i, fd := range f.Fields {
		names[i] = fd.Name
	}
	return names
}

// ReservedMetadataColumns is the closed set of entry columns a form field may
// never collide with, case-insensitively.
var ReservedMetadataColumns = map[string]bool{
	"id": true, "entry_id": true, "title": true, "form": true, "tags": true,
	"links": true, "assets": true, "created_at": true, "updated_at": true,
	"revision_id": true, "parent_revision_id": true, "deleted": true,
	"deleted_at": true, "author": true, "canvas_position": true,
	"integrity": true, "space_id": true, "word_count": true,
}

// ReservedMetadataForms is the closed set of form names reserved for
// system-managed entries, extendable at process startup.
var ReservedMetadataForms = map[string]bool{
	"SQL": true,
}

// Link is a bidirectional edge between two entries, stored redundantly on
// both endpoints with the same ID.
type Link struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// AssetRef is an entry's reference to a stored asset.
type AssetRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// CanvasPosition is a free-form 2D position used by the canvas UI.
type CanvasPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Integrity is a checksum/signature pair computed over an entry's canonical
// markdown.
type Integrity struct {
	Checksum  string `json:"checksum"`
	Signature string `json:"signature"`
}

// Entry is the current-row representation of one entry.
type Entry struct {
	EntryID          string           `json:"entry_id"`
	Title            string           `json:"title"`
	Form             string           `json:"form"`
	Tags             []string         `json:"tags"`
	Links            []Link           `json:"links"`
	CanvasPosition   CanvasPosition   `json:"canvas_position"`
	CreatedAt        float64          `json:"created_at"`
	UpdatedAt        float64          `json:"updated_at"`
	Fields           map[string]any   `json:"fields"`
	ExtraAttributes  map[string]any   `json:"extra_attributes"`
	RevisionID       string           `json:"revision_id"`
	ParentRevisionID string           `json:"parent_revision_id"`
	Assets           []AssetRef       `json:"assets"`
	Integrity        Integrity        `json:"integrity"`
	Deleted          bool             `json:"deleted"`
	DeletedAt        float64          `json:"deleted_at,omitempty"`
	Author           string           `json:"author"`
}

// Revision is one immutable snapshot in an entry's append-only history.
type Revision struct {
	RevisionID       string         `json:"revision_id"`
	EntryID          string         `json:"entry_id"`
	ParentRevisionID string         `json:"parent_revision_id,omitempty"`
	Timestamp        float64        `json:"timestamp"`
	Author           string         `json:"author"`
	Fields           map[string]any `json:"fields"`
	ExtraAttributes  map[string]any `json:"extra_attributes"`
	MarkdownChecksum string         `json:"markdown_checksum"`
	Integrity        Integrity      `json:"integrity"`
	RestoredFrom     string         `json:"restored_from,omitempty"`
}

// ValidationWarning is a non-fatal field issue surfaced on read, or a fatal
// one aborting a write.
type ValidationWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"` // "missing_field" | "invalid_type"
}
