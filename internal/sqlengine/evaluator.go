package sqlengine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ugoite/ieapp/internal/ieerr"
)

// TableProvider resolves a pseudo-table name (case-insensitive) to its row
// set.
type TableProvider interface {
	GetTable(ctx context.Context, name string) ([]map[string]any, error)
}

// RowResolver looks up a column value, optionally qualified by table/alias.
type RowResolver interface {
	Resolve(table, name string) (any, bool)
}

type namedRow struct {
	alias string
	row   map[string]any
}

type joinedResolver struct{ sides []namedRow }

func (j *joinedResolver) Resolve(table, name string) (any, bool) {
	if table != "" {
		for _, s := range j.sides {
			if strings.EqualFold(s.alias, table) {
				return resolveInRow(s.row, name)
			}
		}
		return nil, false
	}
	for _, s := range j.sides {
		if v, ok := resolveInRow(s.row, name); ok {
			return v, true
		}
	}
	return nil, false
}

func resolveInRow(row map[string]any, name string) (any, bool) {
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	if props, ok := row["properties"].(map[string]any); ok {
		for k, v := range props {
			if strings.EqualFold(k, name) {
				return v, true
			}
		}
	}
	return nil, false
}

// candidate pairs a resolver with the flattened output row it produces.
type candidate struct {
	resolver RowResolver
	output   map[string]any
}

// Execute runs stmt against tp and returns the result rows.
func Execute(ctx context.Context, stmt *SelectStmt, tp TableProvider) ([]map[string]any, error) {
	leftRows, err := tp.GetTable(ctx, stmt.Table)
	if err != nil {
		return nil, err
	}
	leftAlias := stmt.Alias
	if leftAlias == "" {
		leftAlias = stmt.Table
	}

	var candidates []candidate
	if stmt.Join == nil {
		for _, row := range leftRows {
			candidates = append(candidates, candidate{
				resolver: &joinedResolver{sides: []namedRow{{alias: leftAlias, row: row}}},
				output:   copyRow(row),
			})
		}
	} else {
		rightRows, err := tp.GetTable(ctx, stmt.Join.Table)
		if err != nil {
			return nil, err
		}
		rightAlias := stmt.Join.Alias
		if rightAlias == "" {
			rightAlias = stmt.Join.Table
		}
		candidates, err = joinRows(stmt.Join, leftAlias, leftRows, rightAlias, rightRows)
		if err != nil {
			return nil, err
		}
	}

	var filtered []candidate
	for _, c := range candidates {
		if stmt.Where == nil {
			filtered = append(filtered, c)
			continue
		}
		ok, err := matches(stmt.Where, c.resolver)
		if err != nil {
			return nil, ieerr.Wrap(ieerr.KindValidation, err, "evaluate WHERE")
		}
		if ok {
			filtered = append(filtered, c)
		}
	}

	if len(stmt.OrderBy) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, term := range stmt.OrderBy {
				table, name := splitQualified(term.Column)
				vi, _ := filtered[i].resolver.Resolve(table, name)
				vj, _ := filtered[j].resolver.Resolve(table, name)
				c := compareValues(vi, vj)
				if c == 0 {
					continue
				}
				if term.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if stmt.Limit >= 0 && stmt.Limit < len(filtered) {
		filtered = filtered[:stmt.Limit]
	}

	out := make([]map[string]any, len(filtered))
	for i, c := range filtered {
		out[i] = c.output
	}
	return out, nil
}

func splitQualified(col string) (table, name string) {
	if idx := strings.IndexByte(col, '.'); idx >= 0 {
		return col[:idx], col[idx+1:]
	}
	return "", col
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func flattenQualified(alias string, row map[string]any, out map[string]any) {
	for k, v := range row {
		out[alias+"."+k] = v
	}
}

func joinRows(j *JoinClause, leftAlias string, leftRows []map[string]any, rightAlias string, rightRows []map[string]any) ([]candidate, error) {
	matchedLeft := make([]bool, len(leftRows))
	matchedRight := make([]bool, len(rightRows))
	var out []candidate

	matchFn := func(l, r map[string]any) (bool, error) {
		if j.Using != "" {
			lv, _ := resolveInRow(l, j.Using)
			rv, _ := resolveInRow(r, j.Using)
			return valuesEqual(lv, rv), nil
		}
		resolver := &joinedResolver{sides: []namedRow{{alias: leftAlias, row: l}, {alias: rightAlias, row: r}}}
		return matches(j.On, resolver)
	}

	for li, l := range leftRows {
		for ri, r := range rightRows {
			ok, err := matchFn(l, r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			matchedLeft[li] = true
			matchedRight[ri] = true
			output := map[string]any{}
			flattenQualified(leftAlias, l, output)
			flattenQualified(rightAlias, r, output)
			out = append(out, candidate{
				resolver: &joinedResolver{sides: []namedRow{{alias: leftAlias, row: l}, {alias: rightAlias, row: r}}},
				output:   output,
			})
		}
	}

	if j.Kind == "LEFT" || j.Kind == "FULL" {
		for li, l := range leftRows {
			if matchedLeft[li] {
				continue
			}
			output := map[string]any{}
			flattenQualified(leftAlias, l, output)
			out = append(out, candidate{
				resolver: &joinedResolver{sides: []namedRow{{alias: leftAlias, row: l}, {alias: rightAlias, row: map[string]any{}}}},
				output:   output,
			})
		}
	}
	if j.Kind == "RIGHT" || j.Kind == "FULL" {
		for ri, r := range rightRows {
			if matchedRight[ri] {
				continue
			}
			output := map[string]any{}
			flattenQualified(rightAlias, r, output)
			out = append(out, candidate{
				resolver: &joinedResolver{sides: []namedRow{{alias: leftAlias, row: map[string]any{}}, {alias: rightAlias, row: r}}},
				output:   output,
			})
		}
	}
	return out, nil
}

func evalValue(expr Expr, r RowResolver) (any, error) {
	switch e := expr.(type) {
	case *Literal:
		return e.Value, nil
	case *ColumnRef:
		if e.Star {
			return nil, fmt.Errorf("'*' is not a value")
		}
		v, _ := r.Resolve(e.Table, e.Name)
		return v, nil
	case *UnaryExpr:
		if e.Op != "-" {
			return nil, fmt.Errorf("unexpected operator %q in value position", e.Op)
		}
		v, err := evalValue(e.Operand, r)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate non-numeric value")
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("expression cannot be evaluated as a scalar")
	}
}

func matches(expr Expr, r RowResolver) (bool, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		switch e.Op {
		case "AND":
			l, err := matches(e.Left, r)
			if err != nil || !l {
				return false, err
			}
			return matches(e.Right, r)
		case "OR":
			l, err := matches(e.Left, r)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return matches(e.Right, r)
		default:
			lv, err := evalValue(e.Left, r)
			if err != nil {
				return false, err
			}
			rv, err := evalValue(e.Right, r)
			if err != nil {
				return false, err
			}
			return compareOp(e.Op, lv, rv), nil
		}
	case *UnaryExpr:
		if e.Op == "NOT" {
			b, err := matches(e.Operand, r)
			return !b, err
		}
		v, err := evalValue(e, r)
		return truthy(v), err
	case *IsNullExpr:
		v, err := evalValue(e.Operand, r)
		if err != nil {
			return false, err
		}
		isNull := v == nil
		if e.Not {
			return !isNull, nil
		}
		return isNull, nil
	case *InExpr:
		v, err := evalValue(e.Operand, r)
		if err != nil {
			return false, err
		}
		for _, item := range e.List {
			iv, err := evalValue(item, r)
			if err != nil {
				return false, err
			}
			if valuesEqual(v, iv) {
				return true, nil
			}
		}
		return false, nil
	case *BetweenExpr:
		v, err := evalValue(e.Operand, r)
		if err != nil {
			return false, err
		}
		low, err := evalValue(e.Low, r)
		if err != nil {
			return false, err
		}
		high, err := evalValue(e.High, r)
		if err != nil {
			return false, err
		}
		return compareValues(v, low) >= 0 && compareValues(v, high) <= 0, nil
	case *LikeExpr:
		v, err := evalValue(e.Operand, r)
		if err != nil {
			return false, err
		}
		pattern, err := evalValue(e.Pattern, r)
		if err != nil {
			return false, err
		}
		return likeMatch(fmt.Sprintf("%v", v), fmt.Sprintf("%v", pattern), e.CaseInsensitive), nil
	default:
		v, err := evalValue(expr, r)
		return truthy(v), err
	}
}

func compareOp(op string, l, r any) bool {
	switch op {
	case "=":
		return valuesEqual(l, r)
	case "!=":
		return !valuesEqual(l, r)
	case "<":
		return compareValues(l, r) < 0
	case "<=":
		return compareValues(l, r) <= 0
	case ">":
		return compareValues(l, r) > 0
	case ">=":
		return compareValues(l, r) >= 0
	default:
		return false
	}
}

// valuesEqual implements list-containment equality: a
// scalar equals a list if the list contains an equal element.
func valuesEqual(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if list, ok := asList(l); ok {
		if rl, ok := asList(r); ok {
			return compareValues(list, rl) == 0
		}
		return listContains(list, r)
	}
	if list, ok := asList(r); ok {
		return listContains(list, l)
	}
	return compareValues(l, r) == 0
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func listContains(list []any, v any) bool {
	for _, item := range list {
		if compareValues(item, v) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders two values: numeric comparison when both parse as
// floats, otherwise lexicographic on their string forms.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

func likeMatch(value, pattern string, caseInsensitive bool) bool {
	if caseInsensitive {
		value = strings.ToLower(value)
		pattern = strings.ToLower(pattern)
	}
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, "%", ".*")
	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
