// Package columnar implements the per-form columnar table pair (current
// rows + append-only revisions): Parquet
// files under a per-form directory, append-only writes, and scan-time
// "latest wins" reconciliation by updated_at / timestamp.
package columnar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// FormTables is the live current+revisions table pair for one form.
type FormTables struct {
	Form      *model.Form
	Current   *Table
	Revisions *Table
}

// Catalog owns every form's table pair within one space.
type Catalog struct {
	store     objectstore.Store
	spacePath string

	mu    sync.Mutex
	forms map[string]*FormTables
}

var (
	catalogCacheMu sync.Mutex
	catalogCache   = map[string]*Catalog{}
)

// Open returns the process-wide Catalog for warehouseURI/spacePath, creating
// it on first use. The catalog cache is never evicted.
func Open(store objectstore.Store, warehouseURI, spacePath string) *Catalog {
	key := warehouseURI + "|" + spacePath
	catalogCacheMu.Lock()
	defer catalogCacheMu.Unlock()
	if c, ok := catalogCache[key]; ok {
		return c
	}
	c := &Catalog{store: store, spacePath: spacePath, forms: map[string]*FormTables{}}
	catalogCache[key] = c
	return c
}

func (c *Catalog) formDir(formName string) string {
	return fmt.Sprintf("%s/forms/%s", c.spacePath, formName)
}

// EnsureForm makes sure the table pair for form exists with the form's
// current schema, creating or (if the field set changed) rebuilding it.
func (c *Catalog) EnsureForm(ctx context.Context, form *model.Form) (*FormTables, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.forms[form.Name]
	if !ok {
		ft := c.newTables(form)
		c.forms[form.Name] = ft
		return ft, nil
	}
	if fieldsEqual(existing.Form.Fields, form.Fields) {
		existing.Form = form
		return existing, nil
	}
	if err := c.rebuildLocked(ctx, existing, form); err != nil {
		return nil, err
	}
	return c.forms[form.Name], nil
}

func (c *Catalog) newTables(form *model.Form) *FormTables {
	dir := c.formDir(form.Name)
	return &FormTables{
		Form:      form,
		Current:   newTable(c.store, dir+"/current", EntriesSchema(form)),
		Revisions: newTable(c.store, dir+"/revisions", RevisionsSchema(form)),
	}
}

func fieldsEqual(a, b []model.FieldDef) bool {
	if len(a) != len(b) {
		return false
	}
	am := map[string]model.FieldDef{}
	for _, f := range a {
		am[f.Name] = f
	}
	for _, f := range b {
		prev, ok := am[f.Name]
		if !ok || prev.Type != f.Type || prev.Required != f.Required || prev.TargetForm != f.TargetForm {
			return false
		}
	}
	return true
}

// rebuildLocked implements the schema-rebuild procedure:
// read everything under the old schema, drop both tables, recreate with the
// new schema, replay every row. c.mu must already be held.
func (c *Catalog) rebuildLocked(ctx context.Context, existing *FormTables, newForm *model.Form) error {
	oldCurrentRows, err := existing.Current.ScanAll(ctx)
	if err != nil {
		return err
	}
	oldRevisionRows, err := existing.Revisions.ScanAll(ctx)
	if err != nil {
		return err
	}

	if err := existing.Current.Drop(ctx); err != nil {
		return err
	}
	if err := existing.Revisions.Drop(ctx); err != nil {
		return err
	}

	fresh := c.newTables(newForm)
	c.forms[newForm.Name] = fresh

	for _, row := range oldCurrentRows {
		projected := projectRow(row, newForm)
		if err := fresh.Current.Append(ctx, projected); err != nil {
			return err
		}
	}
	for _, row := range oldRevisionRows {
		projected := projectRow(row, newForm)
		if err := fresh.Revisions.Append(ctx, projected); err != nil {
			return err
		}
	}
	return nil
}

// projectRow keeps every fixed column from an old row verbatim and keeps
// only the field__ columns that still exist in newForm, so dropped fields
// disappear and newly added fields read back as null.
func projectRow(row map[string]any, newForm *model.Form) map[string]any {
	out := map[string]any{}
	allowedFields := map[string]bool{}
	for _, fd := range newForm.Fields {
		allowedFields[fieldColumnName(fd.Name)] = true
	}
	for k, v := range row {
		if len(k) > len(fieldColumnPrefix) && k[:len(fieldColumnPrefix)] == fieldColumnPrefix {
			if allowedFields[k] {
				out[k] = v
			}
			continue
		}
		out[k] = v
	}
	return out
}

// RowFromEntry flattens a current-row Entry into the physical map Append
// expects.
func RowFromEntry(e *model.Entry, form *model.Form) (map[string]any, error) {
	row := map[string]any{
		"entry_id":           e.EntryID,
		"title":              e.Title,
		"form":               e.Form,
		"created_at":         fmt.Sprintf("%.6f", e.CreatedAt),
		"updated_at":         fmt.Sprintf("%.6f", e.UpdatedAt),
		"revision_id":        e.RevisionID,
		"parent_revision_id": e.ParentRevisionID,
		"author":             e.Author,
		"deleted":            fmt.Sprintf("%v", e.Deleted),
		"deleted_at":         fmt.Sprintf("%.6f", e.DeletedAt),
	}
	if err := marshalJSONColumn(row, "tags_json", e.Tags); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "links_json", e.Links); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "assets_json", e.Assets); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "canvas_position_json", e.CanvasPosition); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "integrity_json", e.Integrity); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "extra_attributes_json", e.ExtraAttributes); err != nil {
		return nil, err
	}
	for _, fd := range form.Fields {
		val, ok := e.Fields[fd.Name]
		if !ok {
			continue
		}
		enc, err := EncodeField(fd.Type, val)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "encode field %q", fd.Name)
		}
		row[fieldColumnName(fd.Name)] = enc
	}
	return row, nil
}

func marshalJSONColumn(row map[string]any, key string, v any) error {
	js, err := json.Marshal(v)
	if err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "encode %s", key)
	}
	row[key] = string(js)
	return nil
}

// EntryFromRow reconstructs an Entry from a physical row, decoding form
// fields per the form's current definition.
func EntryFromRow(row map[string]any, form *model.Form) (*model.Entry, error) {
	e := &model.Entry{
		EntryID:          str(row["entry_id"]),
		Title:            str(row["title"]),
		Form:             str(row["form"]),
		RevisionID:       str(row["revision_id"]),
		ParentRevisionID: str(row["parent_revision_id"]),
		Author:           str(row["author"]),
		Fields:           map[string]any{},
	}
	e.CreatedAt = parseFloat(str(row["created_at"]))
	e.UpdatedAt = parseFloat(str(row["updated_at"]))
	e.DeletedAt = parseFloat(str(row["deleted_at"]))
	e.Deleted = str(row["deleted"]) == "true"

	if err := unmarshalJSONColumn(row, "tags_json", &e.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "links_json", &e.Links); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "assets_json", &e.Assets); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "canvas_position_json", &e.CanvasPosition); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "integrity_json", &e.Integrity); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "extra_attributes_json", &e.ExtraAttributes); err != nil {
		return nil, err
	}

	for _, fd := range form.Fields {
		col, ok := row[fieldColumnName(fd.Name)]
		if !ok || col == nil {
			continue
		}
		dec, err := DecodeField(fd.Type, col)
		if err != nil {
			return nil, err
		}
		e.Fields[fd.Name] = dec
	}
	return e, nil
}

// RowFromRevision / RevisionFromRow mirror RowFromEntry / EntryFromRow for
// the revisions table.
func RowFromRevision(r *model.Revision, form *model.Form) (map[string]any, error) {
	row := map[string]any{
		"revision_id":        r.RevisionID,
		"entry_id":           r.EntryID,
		"parent_revision_id": r.ParentRevisionID,
		"timestamp":          fmt.Sprintf("%.6f", r.Timestamp),
		"author":             r.Author,
		"markdown_checksum":  r.MarkdownChecksum,
		"restored_from":      r.RestoredFrom,
	}
	if err := marshalJSONColumn(row, "extra_attributes_json", r.ExtraAttributes); err != nil {
		return nil, err
	}
	if err := marshalJSONColumn(row, "integrity_json", r.Integrity); err != nil {
		return nil, err
	}
	for _, fd := range form.Fields {
		val, ok := r.Fields[fd.Name]
		if !ok {
			continue
		}
		enc, err := EncodeField(fd.Type, val)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "encode field %q", fd.Name)
		}
		row[fieldColumnName(fd.Name)] = enc
	}
	return row, nil
}

func RevisionFromRow(row map[string]any, form *model.Form) (*model.Revision, error) {
	r := &model.Revision{
		RevisionID:       str(row["revision_id"]),
		EntryID:          str(row["entry_id"]),
		ParentRevisionID: str(row["parent_revision_id"]),
		Author:           str(row["author"]),
		MarkdownChecksum: str(row["markdown_checksum"]),
		RestoredFrom:     str(row["restored_from"]),
		Fields:           map[string]any{},
	}
	r.Timestamp = parseFloat(str(row["timestamp"]))
	if err := unmarshalJSONColumn(row, "extra_attributes_json", &r.ExtraAttributes); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(row, "integrity_json", &r.Integrity); err != nil {
		return nil, err
	}
	for _, fd := range form.Fields {
		col, ok := row[fieldColumnName(fd.Name)]
		if !ok || col == nil {
			continue
		}
		dec, err := DecodeField(fd.Type, col)
		if err != nil {
			return nil, err
		}
		r.Fields[fd.Name] = dec
	}
	return r, nil
}

func unmarshalJSONColumn(row map[string]any, key string, out any) error {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "decode %s", key)
	}
	return nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func parseFloat(s string) float64 {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	if err != nil {
		return 0
	}
	return f
}

// ReconcileCurrent groups current-table rows by entry_id and keeps the one
// with the maximum updated_at, the "latest wins" rule.
func ReconcileCurrent(rows []map[string]any) []map[string]any {
	best := map[string]map[string]any{}
	bestAt := map[string]float64{}
	for _, row := range rows {
		id := str(row["entry_id"])
		at := parseFloat(str(row["updated_at"]))
		if prev, ok := bestAt[id]; !ok || at >= prev {
			best[id] = row
			bestAt[id] = at
		}
	}
	out := make([]map[string]any, 0, len(best))
	for _, row := range best {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return str(out[i]["entry_id"]) < str(out[j]["entry_id"]) })
	return out
}

// LatestRevision returns the revision row with the maximum timestamp for
// entryID, or nil if none exist.
func LatestRevision(rows []map[string]any, entryID string) map[string]any {
	var best map[string]any
	var bestAt float64
	for _, row := range rows {
		if str(row["entry_id"]) != entryID {
			continue
		}
		at := parseFloat(str(row["timestamp"]))
		if best == nil || at >= bestAt {
			best = row
			bestAt = at
		}
	}
	return best
}
