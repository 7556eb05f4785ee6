// Package stats computes read-only per-space rollups on demand from the
// entry engine.
package stats

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
)

// FieldFill is the fraction of non-deleted entries of a form that have a
// non-empty value for one field.
type FieldFill struct {
	Field string  `json:"field"`
	Rate  float64 `json:"rate"`
}

// TagCount is how many non-deleted entries carry one tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Aggregator computes rollups over one space's entries.
type Aggregator struct {
	engine   *entries.Engine
	registry *forms.Registry
}

func NewAggregator(engine *entries.Engine, registry *forms.Registry) *Aggregator {
	return &Aggregator{engine: engine, registry: registry}
}

// EntryCountByForm returns the number of non-deleted entries per form name,
// including forms with zero entries.
func (a *Aggregator) EntryCountByForm(ctx context.Context) (map[string]int, error) {
	names, err := a.registry.ListForms(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name] = 0
	}
	all, err := a.engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		counts[e.Form]++
	}
	return counts, nil
}

// FieldFillRate returns, for every field of formName, the fraction of that
// form's non-deleted entries carrying a non-empty value.
func (a *Aggregator) FieldFillRate(ctx context.Context, formName string) ([]FieldFill, error) {
	form, err := a.registry.GetForm(ctx, formName)
	if err != nil {
		return nil, err
	}
	rows, err := a.engine.ListEntries(ctx, formName)
	if err != nil {
		return nil, err
	}
	out := make([]FieldFill, 0, len(form.Fields))
	for _, fd := range form.Fields {
		filled := 0
		for _, e := range rows {
			if nonEmpty(e.Fields[fd.Name]) {
				filled++
			}
		}
		rate := 0.0
		if len(rows) > 0 {
			rate = float64(filled) / float64(len(rows))
		}
		out = append(out, FieldFill{Field: fd.Name, Rate: rate})
	}
	return out, nil
}

// FieldFillRateAll computes FieldFillRate for every registered form,
// scanning each form's table concurrently via errgroup since the scans are
// independent reads.
func (a *Aggregator) FieldFillRateAll(ctx context.Context) (map[string][]FieldFill, error) {
	names, err := a.registry.ListForms(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string][]FieldFill, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			rates, err := a.FieldFillRate(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = rates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TagFrequency returns every tag used by non-deleted entries across the
// whole space, ordered by descending count then lexicographically.
func (a *Aggregator) TagFrequency(ctx context.Context) ([]TagCount, error) {
	all, err := a.engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, e := range all {
		for _, tag := range e.Tags {
			counts[tag]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []string:
		return len(t) > 0
	case []map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
