package sqlsession_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/sqlsession"
)

type stubProvider struct {
	rows []map[string]any
}

func (s stubProvider) GetTable(_ context.Context, _ string) ([]map[string]any, error) {
	return s.rows, nil
}

func TestCreateSessionAndPageRows(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://sqlsession-test")
	require.NoError(t, err)

	provider := stubProvider{rows: []map[string]any{
		{"entry_id": "e1"}, {"entry_id": "e2"}, {"entry_id": "e3"},
	}}
	mgr := sqlsession.NewManager(store, "spaces/s1", provider)

	meta, err := mgr.CreateSession(ctx, "SELECT * FROM entries", time.Minute)
	require.NoError(t, err)
	require.Equal(t, sqlsession.StatusCompleted, meta.Status)
	require.Equal(t, 3, meta.RowCount)

	page, err := mgr.GetRows(ctx, meta.SessionID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page2, err := mgr.GetRows(ctx, meta.SessionID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
}

func TestCreateSessionWithInvalidSQLFails(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://sqlsession-test-bad")
	require.NoError(t, err)
	mgr := sqlsession.NewManager(store, "spaces/s1", stubProvider{})

	meta, err := mgr.CreateSession(ctx, "NOT VALID SQL", time.Minute)
	require.NoError(t, err)
	require.Equal(t, sqlsession.StatusFailed, meta.Status)
	require.NotEmpty(t, meta.Error)

	_, err = mgr.GetRows(ctx, meta.SessionID, 0, 10)
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindConflict))
}

func TestGetStatusExpiresPastTTL(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://sqlsession-test-expire")
	require.NoError(t, err)
	mgr := sqlsession.NewManager(store, "spaces/s1", stubProvider{rows: []map[string]any{{"a": 1}}})

	meta, err := mgr.CreateSession(ctx, "SELECT * FROM entries", time.Nanosecond)
	require.NoError(t, err)
	require.Equal(t, sqlsession.StatusCompleted, meta.Status)

	time.Sleep(time.Millisecond)
	got, err := mgr.GetStatus(ctx, meta.SessionID)
	require.NoError(t, err)
	require.Equal(t, sqlsession.StatusExpired, got.Status)
}
