// Package matview implements materialized-view metadata: a per-saved-SQL
// record of when it was created, when it was last re-snapshotted, and a
// monotonic snapshot id, persisted the same way sqlsession persists its
// own meta.json.
package matview

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
)

// Meta is the persisted materialized_views/<sql_id>/meta.json document.
type Meta struct {
	SQLID      string    `json:"sql_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SnapshotID int64     `json:"snapshot_id"`
	SQL        string    `json:"sql"`
}

// Store manages materialized-view metadata for one space.
type Store struct {
	store     objectstore.Store
	spacePath string
}

func NewStore(store objectstore.Store, spacePath string) *Store {
	return &Store{store: store, spacePath: spacePath}
}

func (s *Store) path(sqlID string) string {
	return fmt.Sprintf("%s/materialized_views/%s/meta.json", s.spacePath, sqlID)
}

// Refresh records a new snapshot of sqlID's saved SQL text, bumping
// snapshot_id to the current millisecond timestamp and updating updated_at. It creates the record on first use.
func (s *Store) Refresh(ctx context.Context, sqlID, sqlText string, now time.Time) (*Meta, error) {
	meta, err := s.Get(ctx, sqlID)
	if err != nil && !ieerr.Is(err, ieerr.KindNotFound) {
		return nil, err
	}
	if meta == nil {
		meta = &Meta{SQLID: sqlID, CreatedAt: now}
	}
	meta.SQL = sqlText
	meta.UpdatedAt = now
	meta.SnapshotID = now.UnixMilli()
	if err := s.put(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Get reads a materialized view's metadata, NotFound if it has never been
// refreshed.
func (s *Store) Get(ctx context.Context, sqlID string) (*Meta, error) {
	ok, err := s.store.Exists(ctx, s.path(sqlID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ieerr.NotFound("materialized view not found: %s", sqlID)
	}
	raw, err := s.store.Read(ctx, s.path(sqlID))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ieerr.Integrity("corrupt materialized view metadata for %s", sqlID)
	}
	return &meta, nil
}

func (s *Store) put(ctx context.Context, meta *Meta) error {
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return s.store.Write(ctx, s.path(meta.SQLID), out)
}
