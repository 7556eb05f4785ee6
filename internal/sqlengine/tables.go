package sqlengine

import (
	"context"
	"strings"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
)

// Provider builds the `entries`, `<form>`, `links`, and `assets`
// pseudo-tables on demand from the entry
// engine and form registry.
type Provider struct {
	engine   *entries.Engine
	registry *forms.Registry
	spaceID  string
}

func NewProvider(engine *entries.Engine, registry *forms.Registry, spaceID string) *Provider {
	return &Provider{engine: engine, registry: registry, spaceID: spaceID}
}

func (p *Provider) GetTable(ctx context.Context, name string) ([]map[string]any, error) {
	switch strings.ToLower(name) {
	case "entries":
		all, err := p.engine.ListAllEntries(ctx)
		if err != nil {
			return nil, err
		}
		return p.entriesToRows(ctx, all)
	case "links":
		return p.linksTable(ctx)
	case "assets":
		return p.assetsTable(ctx)
	default:
		names, err := p.registry.ListForms(ctx)
		if err != nil {
			return nil, err
		}
		for _, formName := range names {
			if strings.EqualFold(formName, name) {
				all, err := p.engine.ListEntries(ctx, formName)
				if err != nil {
					return nil, err
				}
				return p.entriesToRows(ctx, all)
			}
		}
		return nil, ieerr.NotFound("unknown table: %s", name)
	}
}

func (p *Provider) entriesToRows(ctx context.Context, all []*model.Entry) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(all))
	for _, e := range all {
		row, err := p.entryToRow(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (p *Provider) entryToRow(ctx context.Context, e *model.Entry) (map[string]any, error) {
	props := p.engine.PropertiesView(ctx, e)

	// word_count is the token count over the property values, not over the
	// rendered markdown document (which would also count frontmatter and
	// section headers).
	wordCount := 0
	for _, v := range props {
		if s, ok := v.(string); ok {
			wordCount += len(strings.Fields(s))
		}
	}

	var warnings []model.ValidationWarning
	if form, err := p.registry.GetForm(ctx, e.Form); err == nil {
		_, warnings = forms.CastLoose(form, e.Fields)
	}

	tags := make([]any, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = t
	}
	links := make([]any, len(e.Links))
	for i, l := range e.Links {
		links[i] = map[string]any{"id": l.ID, "source": l.Source, "target": l.Target, "kind": l.Kind}
	}
	assets := make([]any, len(e.Assets))
	for i, a := range e.Assets {
		assets[i] = map[string]any{"id": a.ID, "name": a.Name, "path": a.Path}
	}

	return map[string]any{
		"id":                  e.EntryID,
		"title":               e.Title,
		"form":                e.Form,
		"updated_at":          e.UpdatedAt,
		"space_id":            p.spaceID,
		"properties":          props,
		"word_count":          wordCount,
		"tags":                tags,
		"links":               links,
		"assets":              assets,
		"checksum":            e.Integrity.Checksum,
		"validation_warnings": warnings,
	}, nil
}

func (p *Provider) linksTable(ctx context.Context) ([]map[string]any, error) {
	all, err := p.engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	formByID := map[string]string{}
	for _, e := range all {
		formByID[e.EntryID] = e.Form
	}

	seen := map[string]bool{}
	var out []map[string]any
	for _, e := range all {
		for _, l := range e.Links {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			out = append(out, map[string]any{
				"id":          l.ID,
				"source":      l.Source,
				"target":      l.Target,
				"kind":        l.Kind,
				"source_form": formByID[l.Source],
				"target_form": formByID[l.Target],
			})
		}
	}
	return out, nil
}

func (p *Provider) assetsTable(ctx context.Context) ([]map[string]any, error) {
	all, err := p.engine.ListAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, e := range all {
		for _, a := range e.Assets {
			out = append(out, map[string]any{
				"id":       a.ID,
				"entry_id": e.EntryID,
				"name":     a.Name,
				"path":     a.Path,
			})
		}
	}
	return out, nil
}
