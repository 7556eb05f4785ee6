// Package sqlsession implements SQL sessions: a session executes a
// query synchronously at creation time and caches the full result set for
// paginated, polled access.
package sqlsession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/sqlengine"
)

// Status is a SQL session's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// DefaultTTL is used when callers don't specify one.
const DefaultTTL = 15 * time.Minute

// Meta is the persisted meta.json for one session.
type Meta struct {
	SessionID string    `json:"session_id"`
	SQL       string    `json:"sql"`
	Status    Status    `json:"status"`
	RowCount  int       `json:"row_count"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager creates and serves SQL sessions under one space.
type Manager struct {
	store     objectstore.Store
	spacePath string
	provider  sqlengine.TableProvider
}

func NewManager(store objectstore.Store, spacePath string, provider sqlengine.TableProvider) *Manager {
	return &Manager{store: store, spacePath: spacePath, provider: provider}
}

func (m *Manager) dir(sid string) string {
	return fmt.Sprintf("%s/sql_sessions/%s", m.spacePath, sid)
}
func (m *Manager) metaPath(sid string) string { return m.dir(sid) + "/meta.json" }
func (m *Manager) rowsPath(sid string) string { return m.dir(sid) + "/rows.json" }

// CreateSession synchronously executes sql and persists the result. A parse or evaluation failure produces a `failed`
// session rather than an error return; callers inspect Meta.Status.
func (m *Manager) CreateSession(ctx context.Context, sql string, ttl time.Duration) (*Meta, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	meta := &Meta{
		SessionID: uuid.NewString(),
		SQL:       sql,
		Status:    StatusRunning,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.persist(ctx, meta); err != nil {
		return nil, err
	}

	stmt, err := sqlengine.Parse(sql)
	if err != nil {
		meta.Status = StatusFailed
		meta.Error = err.Error()
		return meta, m.persist(ctx, meta)
	}
	rows, err := sqlengine.Execute(ctx, stmt, m.provider)
	if err != nil {
		meta.Status = StatusFailed
		meta.Error = err.Error()
		return meta, m.persist(ctx, meta)
	}

	rowsBytes, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	if err := m.store.Write(ctx, m.rowsPath(meta.SessionID), rowsBytes); err != nil {
		return nil, err
	}
	meta.Status = StatusCompleted
	meta.RowCount = len(rows)
	if err := m.persist(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) persist(ctx context.Context, meta *Meta) error {
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return m.store.Write(ctx, m.metaPath(meta.SessionID), out)
}

// GetStatus loads a session's meta.json, applying background expiry: a
// completed session past ExpiresAt reports (and persists) `expired`.
func (m *Manager) GetStatus(ctx context.Context, sid string) (*Meta, error) {
	meta, err := m.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	if meta.Status == StatusCompleted && time.Now().UTC().After(meta.ExpiresAt) {
		meta.Status = StatusExpired
		if err := m.persist(ctx, meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func (m *Manager) load(ctx context.Context, sid string) (*Meta, error) {
	ok, err := m.store.Exists(ctx, m.metaPath(sid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ieerr.NotFound("sql session not found: %s", sid)
	}
	raw, err := m.store.Read(ctx, m.metaPath(sid))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetRows returns a page of the cached result set. Only a completed
// session (not expired) can be paged.
func (m *Manager) GetRows(ctx context.Context, sid string, offset, limit int) ([]map[string]any, error) {
	meta, err := m.GetStatus(ctx, sid)
	if err != nil {
		return nil, err
	}
	if meta.Status != StatusCompleted {
		return nil, ieerr.Conflict("sql session %s is %s, not completed", sid, meta.Status)
	}
	raw, err := m.store.Read(ctx, m.rowsPath(sid))
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []map[string]any{}, nil
	}
	end := len(rows)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end], nil
}
