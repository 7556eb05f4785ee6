// Package assets manages the binary attachments referenced by entries:
// blobs under spaces/<id>/assets/<asset-id>_<name>, with the referential
// integrity rule that an asset cannot be deleted while any live entry still
// carries it.
package assets

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/model"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// Manager stores asset blobs for one space and keeps the owning entries'
// asset references in sync through the entry engine.
type Manager struct {
	store     objectstore.Store
	engine    *entries.Engine
	spacePath string // spaces/<id>
}

func NewManager(store objectstore.Store, engine *entries.Engine, spacePath string) *Manager {
	return &Manager{store: store, engine: engine, spacePath: spacePath}
}

func (m *Manager) dir() string { return m.spacePath + "/assets" }

func (m *Manager) blobPath(id, name string) string {
	return fmt.Sprintf("%s/%s_%s", m.dir(), id, name)
}

// Put stores data as a new asset and attaches a reference to entryID.
func (m *Manager) Put(ctx context.Context, entryID, name string, data []byte) (*model.AssetRef, error) {
	ref := model.AssetRef{ID: uuid.NewString(), Name: name}
	ref.Path = m.blobPath(ref.ID, name)
	if err := m.store.Write(ctx, ref.Path, data); err != nil {
		return nil, err
	}
	if err := m.engine.AddAsset(ctx, entryID, ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Read returns an asset's bytes by id.
func (m *Manager) Read(ctx context.Context, assetID string) ([]byte, error) {
	path, err := m.find(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return m.store.Read(ctx, path)
}

// List enumerates every stored asset blob in the space.
func (m *Manager) List(ctx context.Context) ([]model.AssetRef, error) {
	items, err := m.store.List(ctx, m.dir())
	if err != nil {
		return nil, err
	}
	out := make([]model.AssetRef, 0, len(items))
	for _, item := range items {
		if item.Mode != objectstore.ModeFile {
			continue
		}
		id, name, ok := strings.Cut(item.Name, "_")
		if !ok {
			continue
		}
		out = append(out, model.AssetRef{ID: id, Name: name, Path: m.dir() + "/" + item.Name})
	}
	return out, nil
}

// Delete removes an asset blob. It fails with Conflict while any
// non-deleted entry still references the asset.
func (m *Manager) Delete(ctx context.Context, assetID string) error {
	referenced, err := m.engine.AssetReferenced(ctx, assetID)
	if err != nil {
		return err
	}
	if referenced {
		return ieerr.Conflict("asset %s is still referenced by a live entry", assetID)
	}
	path, err := m.find(ctx, assetID)
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, path)
}

func (m *Manager) find(ctx context.Context, assetID string) (string, error) {
	items, err := m.store.List(ctx, m.dir())
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if item.Mode == objectstore.ModeFile && strings.HasPrefix(item.Name, assetID+"_") {
			return m.dir() + "/" + item.Name, nil
		}
	}
	return "", ieerr.NotFound("asset not found: %s", assetID)
}
