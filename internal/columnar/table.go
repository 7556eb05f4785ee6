package columnar

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	pqreader "github.com/xitongsys/parquet-go/reader"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/xitongsys/parquet-go-source/buffer"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// Table is one append-only Parquet-backed table: either the current-rows
// table or the revisions table for a single form. Every Append call writes
// a brand new data file and commits it with a single object-store Write,
// the "fast append, no in-place update" contract.
type Table struct {
	store  objectstore.Store
	dir    string
	schema string
}

func newTable(store objectstore.Store, dir, schema string) *Table {
	return &Table{store: store, dir: dir, schema: schema}
}

// Append encodes row as JSON against the table's schema and writes it as a
// new Parquet data file.
func (t *Table) Append(ctx context.Context, row map[string]any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "encode row")
	}

	buf := buffer.NewBufferFile()
	pw, err := pqwriter.NewJSONWriter(t.schema, buf, 1)
	if err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "open parquet writer for %s", t.dir)
	}
	if err := pw.Write(string(payload)); err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "write parquet row for %s", t.dir)
	}
	if err := pw.WriteStop(); err != nil {
		return ieerr.Wrap(ieerr.KindTransport, err, "finalize parquet file for %s", t.dir)
	}

	path := fmt.Sprintf("%s/%s.parquet", t.dir, uuid.NewString())
	if err := t.store.Write(ctx, path, buf.Bytes()); err != nil {
		return err
	}
	return nil
}

// ScanAll reads every data file in the table and returns every row,
// unreconciled. Callers apply the "latest wins" rule themselves, since
// current-rows and revisions reconcile differently.
func (t *Table) ScanAll(ctx context.Context) ([]map[string]any, error) {
	entries, err := t.store.List(ctx, t.dir)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, e := range entries {
		if e.Mode != objectstore.ModeFile {
			continue
		}
		path := t.dir + "/" + e.Name
		data, err := t.store.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		fileRows, err := readParquetRows(data)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindTransport, err, "read parquet file %s", path)
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func readParquetRows(data []byte) ([]map[string]any, error) {
	pf := buffer.NewBufferFileFromBytes(data)
	pr, err := pqreader.NewParquetReader(pf, nil, 1)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	if num == 0 {
		return nil, nil
	}
	res, err := pr.ReadByNumber(num)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for i, row := range rows {
		rows[i] = normalizeRowKeys(row)
	}
	return rows, nil
}

// normalizeRowKeys undoes parquet-go's exported-struct-field name mangling:
// ReadByNumber surfaces each column through a generated Go struct whose
// field name upper-cases the column's first letter, so "entry_id" comes
// back as "Entry_id". Every column this package writes starts lowercase.
func normalizeRowKeys(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if k != "" && k[0] >= 'A' && k[0] <= 'Z' {
			k = string(k[0]+'a'-'A') + k[1:]
		}
		out[k] = v
	}
	return out
}

// Drop removes every data file under the table's directory.
func (t *Table) Drop(ctx context.Context) error {
	return t.store.RemoveAll(ctx, t.dir)
}
