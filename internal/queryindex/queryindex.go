// Package queryindex implements the query_index payload dispatch: a
// single entrypoint that routes an empty string, a
// structured exact-match filter, or raw/embedded SQL to the right backend.
package queryindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/sqlengine"
)

// structuredOperatorPrefix matches Mongo-style operators this dialect
// explicitly rejects.
const structuredOperatorPrefix = "$"

// Run dispatches a raw query_index payload (already JSON-decoded into any)
// against engine/provider and returns the resulting rows.
func Run(ctx context.Context, engine *entries.Engine, provider sqlengine.TableProvider, payload any) ([]map[string]any, error) {
	switch v := payload.(type) {
	case nil:
		return allEntries(ctx, engine)
	case string:
		if strings.TrimSpace(v) == "" {
			return allEntries(ctx, engine)
		}
		return runSQL(ctx, provider, v)
	case map[string]any:
		if sqlText, ok := sqlFromObject(v); ok {
			return runSQL(ctx, provider, sqlText)
		}
		return filterEntries(ctx, engine, v)
	default:
		return nil, ieerr.Validation("query_index: unsupported payload type %T", payload)
	}
}

// RunJSON is a convenience wrapper over Run for callers holding a raw JSON
// document (object, string, or empty) rather than an already-decoded value.
func RunJSON(ctx context.Context, engine *entries.Engine, provider sqlengine.TableProvider, raw []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return allEntries(ctx, engine)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, ieerr.Validation("query_index: invalid JSON payload: %v", err)
	}
	return Run(ctx, engine, provider, v)
}

func sqlFromObject(v map[string]any) (string, bool) {
	if s, ok := v["$sql"].(string); ok {
		return s, true
	}
	if s, ok := v["sql"].(string); ok {
		return s, true
	}
	return "", false
}

func runSQL(ctx context.Context, provider sqlengine.TableProvider, sqlText string) ([]map[string]any, error) {
	stmt, err := sqlengine.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	return sqlengine.Execute(ctx, stmt, provider)
}

func allEntries(ctx context.Context, engine *entries.Engine) ([]map[string]any, error) {
	all, err := engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	return toRows(ctx, engine, all), nil
}

// filterEntries implements the exact-match object filter: every key
// matches either a top-level entry field or properties.<key>, with "tag"
// matching any element of the entry's tag list. Structured operators
// ($gt, $in, ...) are rejected outright.
func filterEntries(ctx context.Context, engine *entries.Engine, filter map[string]any) ([]map[string]any, error) {
	for key, val := range filter {
		if nested, ok := val.(map[string]any); ok {
			for innerKey := range nested {
				if strings.HasPrefix(innerKey, structuredOperatorPrefix) {
					return nil, ieerr.Validation("query_index: structured operators are not supported: %s.%s", key, innerKey)
				}
			}
		}
	}

	all, err := engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	rows := toRows(ctx, engine, all)

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if matchesFilter(row, filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matchesFilter(row map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		if key == "tag" {
			tags, _ := row["tags"].([]any)
			found := false
			wantStr := fmt.Sprintf("%v", want)
			for _, t := range tags {
				if fmt.Sprintf("%v", t) == wantStr {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		got, ok := row[key]
		if !ok {
			props, _ := row["properties"].(map[string]any)
			got, ok = props[key]
		}
		if !ok || !equalLoose(got, want) {
			return false
		}
	}
	return true
}

func equalLoose(a, b any) bool {
	return jsonEqual(a, b)
}

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func toRows(ctx context.Context, engine *entries.Engine, all []*model.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(all))
	for _, e := range all {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(b, &row); err != nil {
			continue
		}
		// Extras join the properties view only when the form's policy is
		// allow_columns; deny/allow_json extras stay in extra_attributes.
		row["properties"] = engine.PropertiesView(ctx, e)
		out = append(out, row)
	}
	return out
}
