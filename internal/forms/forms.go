// Package forms implements the form registry: parsing, normalizing,
// validating, persisting, and migrating form definitions, plus field
// validation and casting.
package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// Registry persists form definitions under a space and drives the columnar
// catalog's schema-rebuild procedure when a form's fields change.
type Registry struct {
	store    objectstore.Store
	catalog  *columnar.Catalog
	basePath string // spaces/<id>
	log      *slog.Logger
}

func NewRegistry(store objectstore.Store, catalog *columnar.Catalog, spacePath string) *Registry {
	return &Registry{store: store, catalog: catalog, basePath: spacePath, log: slog.Default()}
}

// WithLogger returns a copy of r that logs through log instead of the
// default logger.
func (r *Registry) WithLogger(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	cp := *r
	cp.log = log
	return &cp
}

func (r *Registry) formDefPath(name string) string {
	return fmt.Sprintf("%s/forms/%s/definition.json", r.basePath, name)
}

// RawFieldDef mirrors one field of a submitted form definition document.
type RawFieldDef struct {
	Name       string `json:"name,omitempty"`
	Type       string `json:"type"`
	Required   bool   `json:"required,omitempty"`
	TargetForm string `json:"target_form,omitempty"`
}

// RawForm mirrors the JSON a caller submits, before normalization.
type RawForm struct {
	Name                 string          `json:"name"`
	Version              int             `json:"version"`
	Fields               json.RawMessage `json:"fields"`
	AllowExtraAttributes string          `json:"allow_extra_attributes"`
}

// Normalize applies the form normalization rules. bypassNameGuard
// corresponds to upsert_metadata_form.
func Normalize(raw RawForm, bypassNameGuard bool) (*model.Form, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, ieerr.Validation("form name is required")
	}
	if !bypassNameGuard && model.ReservedMetadataForms[raw.Name] {
		return nil, ieerr.Validation("reserved form name: %s", raw.Name)
	}

	version := raw.Version
	if version <= 0 {
		version = 1
	}

	policy := model.ExtraAttributesPolicy(raw.AllowExtraAttributes)
	if policy == "" {
		policy = model.ExtraDeny
	}
	switch policy {
	case model.ExtraDeny, model.ExtraAllowJSON, model.ExtraAllowColumn:
	default:
		return nil, ieerr.Validation("invalid allow_extra_attributes: %s", raw.AllowExtraAttributes)
	}

	fields, err := normalizeFields(raw.Fields)
	if err != nil {
		return nil, err
	}
	for _, fd := range fields {
		if model.ReservedMetadataColumns[strings.ToLower(fd.Name)] {
			return nil, ieerr.Validation("reserved metadata column: %s", fd.Name)
		}
		if !model.ValidFieldTypes[fd.Type] {
			return nil, ieerr.Validation("unknown field type %q for field %q", fd.Type, fd.Name)
		}
		if fd.Type == model.FieldRowReference && strings.TrimSpace(fd.TargetForm) == "" {
			return nil, ieerr.Validation("row_reference field %q requires target_form", fd.Name)
		}
	}

	return &model.Form{
		Name:                 raw.Name,
		Version:              version,
		Fields:               fields,
		AllowExtraAttributes: policy,
	}, nil
}

// normalizeFields accepts either the object form (name -> def) or the array
// form ([{name, type, ...}]).
func normalizeFields(raw json.RawMessage) ([]model.FieldDef, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []RawFieldDef
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "invalid fields array")
		}
		out := make([]model.FieldDef, 0, len(arr))
		for _, f := range arr {
			if f.Name == "" {
				return nil, ieerr.Validation("field in array form missing name")
			}
			out = append(out, model.FieldDef{Name: f.Name, Type: model.FieldType(f.Type), Required: f.Required, TargetForm: f.TargetForm})
		}
		return out, nil
	}

	var obj map[string]RawFieldDef
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, ieerr.Wrap(ieerr.KindValidation, err, "invalid fields object")
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.FieldDef, 0, len(names))
	for _, name := range names {
		f := obj[name]
		out = append(out, model.FieldDef{Name: name, Type: model.FieldType(f.Type), Required: f.Required, TargetForm: f.TargetForm})
	}
	return out, nil
}

// GetForm loads a form's persisted definition.
func (r *Registry) GetForm(ctx context.Context, name string) (*model.Form, error) {
	raw, err := r.store.Read(ctx, r.formDefPath(name))
	if ieerr.Is(err, ieerr.KindNotFound) {
		return nil, ieerr.NotFound("form not found: %s", name)
	}
	if err != nil {
		return nil, err
	}
	var form model.Form
	var persisted persistedForm
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return nil, ieerr.Integrity("corrupt form definition: %s", name)
	}
	form.Name = persisted.Name
	form.Version = persisted.Version
	form.Fields = persisted.Fields
	form.AllowExtraAttributes = persisted.AllowExtraAttributes
	return &form, nil
}

// ListForms returns every persisted form name under the space.
func (r *Registry) ListForms(ctx context.Context) ([]string, error) {
	entries, err := r.store.List(ctx, r.basePath+"/forms")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode == objectstore.ModeDir {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type persistedForm struct {
	Name                 string                      `json:"name"`
	Version              int                         `json:"version"`
	Fields               []model.FieldDef            `json:"fields"`
	AllowExtraAttributes model.ExtraAttributesPolicy `json:"allow_extra_attributes"`
}

func (r *Registry) persist(ctx context.Context, form *model.Form) error {
	out, err := json.MarshalIndent(persistedForm{
		Name: form.Name, Version: form.Version, Fields: form.Fields,
		AllowExtraAttributes: form.AllowExtraAttributes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return r.store.Write(ctx, r.formDefPath(form.Name), out)
}

// UpsertForm persists form, rebuilding the columnar tables if the field set
// changed from the previously persisted definition.
func (r *Registry) UpsertForm(ctx context.Context, form *model.Form) error {
	// Seed the catalog with the persisted definition so the comparison below
	// sees it even when this process has not loaded the form yet.
	if prev, err := r.GetForm(ctx, form.Name); err == nil {
		if _, err := r.catalog.EnsureForm(ctx, prev); err != nil {
			r.log.Error("form upsert failed", "form", form.Name, "version", form.Version, "error", err)
			return err
		}
	}
	if _, err := r.catalog.EnsureForm(ctx, form); err != nil {
		r.log.Error("form upsert failed", "form", form.Name, "version", form.Version, "error", err)
		return err
	}
	if err := r.persist(ctx, form); err != nil {
		return err
	}
	r.log.Info("form upserted", "form", form.Name, "version", form.Version, "field_count", len(form.Fields))
	return nil
}

// UpsertMetadataForm bypasses the reserved-name guard (callers must already
// have run Normalize with bypassNameGuard=true).
func (r *Registry) UpsertMetadataForm(ctx context.Context, form *model.Form) error {
	return r.UpsertForm(ctx, form)
}

// Strategies maps a field name to a replacement value, or nil to delete it,
// for MigrateForm.
type Strategies map[string]any

// MigrateApplyFunc is called by MigrateForm once per affected entry so the
// caller (the entries engine, which owns revision chaining) can apply the
// strategies and persist a new revision authored "system-migration".
type MigrateApplyFunc func(ctx context.Context, entryID string, strategies Strategies) error

// MigrateForm upserts def (rebuilding tables on a field-set change), then
// invoke apply once per entry of the form with the field-name-filtered
// strategy set.
func (r *Registry) MigrateForm(ctx context.Context, def *model.Form, entryIDs []string, strategies Strategies, apply MigrateApplyFunc) error {
	if err := r.UpsertForm(ctx, def); err != nil {
		return err
	}
	filtered := Strategies{}
	known := map[string]bool{}
	for _, fd := range def.Fields {
		known[fd.Name] = true
	}
	for k, v := range strategies {
		if known[k] {
			filtered[k] = v
		}
	}
	for _, id := range entryIDs {
		if err := apply(ctx, id, filtered); err != nil {
			r.log.Error("migration failed", "form", def.Name, "entry_id", id, "error", err)
			return err
		}
	}
	r.log.Info("form migrated", "form", def.Name, "entry_count", len(entryIDs), "strategy_count", len(filtered))
	return nil
}

// EnrichedView adds the non-persisted `template` surface field: a
// ready-to-fill markdown skeleton for the form.
func EnrichedView(form *model.Form) map[string]any {
	names := append([]string(nil), form.FieldNames()...)
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", form.Name)
	for _, n := range names {
		fmt.Fprintf(&b, "## %s\n\n", n)
	}
	return map[string]any{
		"name":                   form.Name,
		"version":                form.Version,
		"fields":                 form.Fields,
		"allow_extra_attributes": form.AllowExtraAttributes,
		"template":               b.String(),
	}
}

// ValidateAndCast, for each form field, checks
// required-ness and attempts a type cast of the raw (markdown-section or
// JSON) value. Any warning aborts the write with a Validation error
// carrying the full warning list; callers that only want warnings (e.g. for
// `validation_warnings` on read) should call CastLoose instead.
func ValidateAndCast(form *model.Form, raw map[string]any) (map[string]any, []model.ValidationWarning, error) {
	cast, warnings := CastLoose(form, raw)
	if len(warnings) > 0 {
		msgs := make([]string, len(warnings))
		for i, w := range warnings {
			msgs[i] = fmt.Sprintf("%s: %s", w.Field, w.Reason)
		}
		return nil, warnings, ieerr.Validation("field validation failed: %s", strings.Join(msgs, "; "))
	}
	return cast, nil, nil
}

// CastLoose performs the same casting as ValidateAndCast but returns
// warnings instead of failing, for read-time `validation_warnings` surfacing.
func CastLoose(form *model.Form, raw map[string]any) (map[string]any, []model.ValidationWarning) {
	out := map[string]any{}
	var warnings []model.ValidationWarning

	for _, fd := range form.Fields {
		val, present := raw[fd.Name]
		empty := !present || val == nil || val == ""
		if fd.Required && empty {
			warnings = append(warnings, model.ValidationWarning{Field: fd.Name, Reason: "missing_field"})
			continue
		}
		if empty {
			continue
		}
		casted, err := castValue(fd.Type, val)
		if err == nil {
			// Confirm the value actually encodes for its physical column, so
			// e.g. a malformed uuid or timestamp string is caught here as a
			// warning rather than surfacing later from the columnar writer.
			_, err = columnar.EncodeField(fd.Type, casted)
		}
		if err != nil {
			warnings = append(warnings, model.ValidationWarning{Field: fd.Name, Reason: "invalid_type"})
			continue
		}
		out[fd.Name] = casted
	}
	return out, warnings
}

func castValue(t model.FieldType, raw any) (any, error) {
	s, isString := raw.(string)
	switch t {
	case model.FieldString, model.FieldMarkdown, model.FieldRowReference:
		return fmt.Sprintf("%v", raw), nil
	case model.FieldNumber, model.FieldDouble, model.FieldFloat:
		if f, ok := raw.(float64); ok {
			return f, nil
		}
		if !isString {
			return nil, ieerr.Validation("not numeric")
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case model.FieldInteger, model.FieldLong:
		if f, ok := raw.(float64); ok {
			return int64(f), nil
		}
		if !isString {
			return nil, ieerr.Validation("not an integer")
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case model.FieldBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		if !isString {
			return nil, ieerr.Validation("not a boolean")
		}
		return strconv.ParseBool(strings.TrimSpace(s))
	case model.FieldUUID:
		if !isString {
			return nil, ieerr.Validation("uuid must be a string")
		}
		return s, nil
	case model.FieldDate, model.FieldTime, model.FieldTimestamp, model.FieldTimestampTZ,
		model.FieldTimestampNS, model.FieldTimestampTZNS, model.FieldBinary:
		if !isString {
			return nil, ieerr.Validation("must be a string")
		}
		return s, nil
	case model.FieldList:
		if list, ok := raw.([]string); ok {
			return list, nil
		}
		if !isString {
			return nil, ieerr.Validation("list must be markdown bullets or a string array")
		}
		return parseBulletList(s), nil
	case model.FieldObjectList:
		if list, ok := raw.([]map[string]any); ok {
			return list, nil
		}
		if !isString {
			return nil, ieerr.Validation("object_list must be a JSON array")
		}
		var items []map[string]any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "invalid object_list JSON")
		}
		return items, nil
	default:
		return nil, ieerr.Validation("unknown field type %q", t)
	}
}

// parseBulletList splits a markdown section body of "- item" lines into a
// string list.
func parseBulletList(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "-")
		out = append(out, strings.TrimSpace(line))
	}
	return out
}
