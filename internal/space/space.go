// Package space implements the space lifecycle: an
// isolation scope that owns a warehouse URI, a metadata file, settings, and
// the per-form columnar catalog reachable beneath it. It is the top-level
// entrypoint that wires the object store, the columnar catalog, the form
// registry, the integrity provider, and the entry engine together for one
// tenant.
package space

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/integrity"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/savedsql"
)

// Meta is the persisted spaces/<id>/meta.json document. HMACKey/HMACKeyID/
// LastRotation are populated lazily by the integrity provider on first use.
type Meta struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedAt    string `json:"created_at"`
	Storage      string `json:"storage"`
	HMACKeyID    string `json:"hmac_key_id,omitempty"`
	HMACKey      string `json:"hmac_key,omitempty"`
	LastRotation string `json:"last_rotation,omitempty"`
}

// Settings is the persisted spaces/<id>/settings.json document. It is
// intentionally open-ended: the core only round-trips it.
type Settings map[string]any

// Handle bundles the live components of one opened space: the object
// store, the columnar catalog, the form registry, the integrity provider,
// and the entry engine.
type Handle struct {
	SpaceID   string
	Store     objectstore.Store
	Catalog   *columnar.Catalog
	Registry  *forms.Registry
	Integrity integrity.Provider
	Entries   *entries.Engine
}

func metaPath(id string) string     { return fmt.Sprintf("spaces/%s/meta.json", id) }
func settingsPath(id string) string { return fmt.Sprintf("spaces/%s/settings.json", id) }
func spacePath(id string) string    { return fmt.Sprintf("spaces/%s", id) }

// Create provisions a new space under store at warehouseURI. It is
// idempotent-failing: recreating an existing space id is a Conflict.
func Create(ctx context.Context, store objectstore.Store, warehouseURI, id, name string) (*Meta, error) {
	if id == "" {
		id = uuid.NewString()
	}
	exists, err := store.Exists(ctx, metaPath(id))
	if err != nil {
		return nil, err
	}
	if exists {
		slog.Default().Error("space create failed: already exists", "space_id", id)
		return nil, ieerr.Conflict("space already exists: %s", id)
	}

	meta := &Meta{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Storage:   warehouseURI,
	}
	if err := store.CreateDir(ctx, spacePath(id)); err != nil {
		return nil, err
	}
	if err := writeJSON(ctx, store, metaPath(id), meta); err != nil {
		return nil, err
	}
	if err := writeJSON(ctx, store, settingsPath(id), Settings{}); err != nil {
		return nil, err
	}

	reg := forms.NewRegistry(store, columnar.Open(store, warehouseURI, spacePath(id)), spacePath(id))
	if err := savedsql.Ensure(ctx, reg); err != nil {
		return nil, err
	}
	slog.Default().Info("space created", "space_id", id, "name", name, "storage", warehouseURI)
	return meta, nil
}

// GetMeta reads a space's meta.json, failing NotFound if it was never
// created.
func GetMeta(ctx context.Context, store objectstore.Store, id string) (*Meta, error) {
	ok, err := store.Exists(ctx, metaPath(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ieerr.NotFound("space not found: %s", id)
	}
	raw, err := store.Read(ctx, metaPath(id))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ieerr.Integrity("corrupt meta.json for space %s", id)
	}
	return &meta, nil
}

// GetSettings reads a space's settings.json, defaulting to an empty object
// if it has never been written (keeps Create's settings.json optional for
// spaces provisioned by older tooling).
func GetSettings(ctx context.Context, store objectstore.Store, id string) (Settings, error) {
	ok, err := store.Exists(ctx, settingsPath(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return Settings{}, nil
	}
	raw, err := store.Read(ctx, settingsPath(id))
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ieerr.Integrity("corrupt settings.json for space %s", id)
	}
	return s, nil
}

// PutSettings overwrites a space's settings.json wholesale.
func PutSettings(ctx context.Context, store objectstore.Store, id string, s Settings) error {
	return writeJSON(ctx, store, settingsPath(id), s)
}

// List enumerates every provisioned space id under store.
func List(ctx context.Context, store objectstore.Store) ([]string, error) {
	entries, err := store.List(ctx, "spaces")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode == objectstore.ModeDir {
			ids = append(ids, e.Name)
		}
	}
	return ids, nil
}

// Open wires up a Handle for an already-created space, loading (or
// lazily provisioning) its HMAC key and binding the columnar catalog, form
// registry, and entry engine in dependency order:
// object-store -> integrity -> columnar -> form registry -> entry engine.
func Open(ctx context.Context, store objectstore.Store, warehouseURI, id string) (*Handle, error) {
	if _, err := GetMeta(ctx, store, id); err != nil {
		return nil, err
	}
	prov, err := integrity.FromSpace(ctx, store, id)
	if err != nil {
		return nil, err
	}
	catalog := columnar.Open(store, warehouseURI, spacePath(id))
	registry := forms.NewRegistry(store, catalog, spacePath(id))
	engine := entries.NewEngine(store, catalog, registry, prov, id)
	slog.Default().Info("space opened", "space_id", id, "storage", warehouseURI)
	return &Handle{
		SpaceID:   id,
		Store:     store,
		Catalog:   catalog,
		Registry:  registry,
		Integrity: prov,
		Entries:   engine,
	}, nil
}

// MigrateForm upserts def (rebuilding the columnar tables if the field set
// changed) and replays the strategy map over every existing entry of the
// form, producing one system-migration revision per affected entry.
func (h *Handle) MigrateForm(ctx context.Context, def *model.Form, strategies forms.Strategies) error {
	var ids []string
	existing, err := h.Entries.ListEntries(ctx, def.Name)
	switch {
	case err == nil:
		for _, e := range existing {
			ids = append(ids, e.EntryID)
		}
	case ieerr.Is(err, ieerr.KindNotFound):
		// First upsert of this form: nothing to migrate.
	default:
		return err
	}
	return h.Registry.MigrateForm(ctx, def, ids, strategies, func(ctx context.Context, entryID string, s forms.Strategies) error {
		return h.Entries.ApplyMigration(ctx, entryID, s)
	})
}

func writeJSON(ctx context.Context, store objectstore.Store, path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return store.Write(ctx, path, out)
}
