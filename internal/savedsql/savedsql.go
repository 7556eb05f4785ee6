// Package savedsql implements the reserved "SQL" form:
// parameterized SELECT statements persisted as first-class entries, with
// placeholder/variable-set validation.
package savedsql

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/sqlengine"
)

// FormName is the reserved metadata form saved queries are stored under.
const FormName = "SQL"

// Variable describes one declared template parameter.
type Variable struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Form returns the reserved SQL form definition.
func Form() *model.Form {
	return &model.Form{
		Name:    FormName,
		Version: 1,
		Fields: []model.FieldDef{
			{Name: "sql", Type: model.FieldMarkdown, Required: true},
			{Name: "variables", Type: model.FieldObjectList},
		},
		AllowExtraAttributes: model.ExtraDeny,
	}
}

// Ensure idempotently registers the reserved SQL form, bypassing the
// reserved-name guard.
func Ensure(ctx context.Context, registry *forms.Registry) error {
	return registry.UpsertMetadataForm(ctx, Form())
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ExtractPlaceholders returns the deduplicated, sorted set of `{{name}}`
// placeholders in sql.
func ExtractPlaceholders(sql string) []string {
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate runs the saved-SQL checks: placeholders must
// equal declared variables, and the SQL must parse once placeholders are
// substituted with the literal 1. Every failure is prefixed
// UGOITE_SQL_VALIDATION so callers can detect it by substring.
func Validate(sqlText string, variables []Variable) error {
	placeholders := ExtractPlaceholders(sqlText)
	declared := make([]string, 0, len(variables))
	for _, v := range variables {
		declared = append(declared, v.Name)
	}
	sort.Strings(declared)

	if !equalStringSets(placeholders, declared) {
		return fmt.Errorf("UGOITE_SQL_VALIDATION: declared variables %v do not match placeholders %v", declared, placeholders)
	}

	substituted := placeholderRe.ReplaceAllString(sqlText, "1")
	if _, err := sqlengine.Parse(substituted); err != nil {
		return fmt.Errorf("UGOITE_SQL_VALIDATION: %v", err)
	}
	return nil
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Create validates and persists a new saved-SQL entry through the shared
// entry engine.
func Create(ctx context.Context, engine *entries.Engine, entryID, sqlText string, variables []Variable, author string) (*model.Entry, error) {
	if err := Validate(sqlText, variables); err != nil {
		return nil, ieerr.Wrap(ieerr.KindValidation, err, "saved SQL validation")
	}
	raw, err := render(entryID, sqlText, variables)
	if err != nil {
		return nil, err
	}
	return engine.CreateEntry(ctx, entryID, raw, author)
}

// Update validates and applies a change to an existing saved-SQL entry.
func Update(ctx context.Context, engine *entries.Engine, entryID, sqlText string, variables []Variable, parentRevisionID, author string) (*model.Entry, error) {
	if err := Validate(sqlText, variables); err != nil {
		return nil, ieerr.Wrap(ieerr.KindValidation, err, "saved SQL validation")
	}
	raw, err := render(entryID, sqlText, variables)
	if err != nil {
		return nil, err
	}
	return engine.UpdateEntry(ctx, entryID, raw, parentRevisionID, author)
}

func render(entryID, sqlText string, variables []Variable) (string, error) {
	varsJSON, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("---\nform: %s\n---\n# %s\n\n## sql\n%s\n\n## variables\n%s\n", FormName, entryID, sqlText, string(varsJSON)), nil
}

// Substitute replaces every `{{name}}` placeholder in sql with its bound
// value from vars, rendered as a SQL literal.
func Substitute(sqlText string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(sqlText, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		if v, ok := vars[sub[1]]; ok {
			return "'" + v + "'"
		}
		return m
	})
}
