package matview_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/matview"
	"github.com/ugoite/ieapp/internal/objectstore"
)

func TestRefreshCreatesThenBumpsSnapshot(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://matview-test")
	require.NoError(t, err)
	mv := matview.NewStore(store, "spaces/s1")

	t0 := time.UnixMilli(1000)
	meta, err := mv.Refresh(ctx, "sql-1", "SELECT * FROM entries", t0)
	require.NoError(t, err)
	require.Equal(t, "sql-1", meta.SQLID)
	require.Equal(t, t0.UnixMilli(), meta.SnapshotID)
	require.Equal(t, t0, meta.CreatedAt)

	t1 := time.UnixMilli(5000)
	meta2, err := mv.Refresh(ctx, "sql-1", "SELECT * FROM entries WHERE 1=1", t1)
	require.NoError(t, err)
	require.True(t, meta2.CreatedAt.Equal(t0)) // created_at preserved across refreshes
	require.Equal(t, t1.UnixMilli(), meta2.SnapshotID)
	require.Equal(t, "SELECT * FROM entries WHERE 1=1", meta2.SQL)
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://matview-test-missing")
	require.NoError(t, err)
	mv := matview.NewStore(store, "spaces/s1")

	_, err = mv.Get(ctx, "nope")
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindNotFound))
}
