package sampledata_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugoite/ieapp/internal/columnar"
	"github.com/ugoite/ieapp/internal/entries"
	"github.com/ugoite/ieapp/internal/forms"
	"github.com/ugoite/ieapp/internal/ieerr"
	"github.com/ugoite/ieapp/internal/integrity"
	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/sampledata"
)

func awaitTerminal(t *testing.T, r *sampledata.Runner, jobID string) *sampledata.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Get(jobID)
		require.NoError(t, err)
		if job.Status == sampledata.StatusCompleted || job.Status == sampledata.StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sample-data job did not terminate in time")
	return nil
}

func TestSubmitCreatesRequestedEntries(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://sampledata-test")
	require.NoError(t, err)
	cat := columnar.Open(store, "memory://sampledata-test", "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	form, err := forms.Normalize(forms.RawForm{
		Name:   "widget",
		Fields: []byte(`[{"name":"size","type":"integer"}]`),
	}, false)
	require.NoError(t, err)
	require.NoError(t, reg.UpsertForm(ctx, form))

	runner := sampledata.NewRunner(eng, reg, "sample-bot")
	job := runner.Submit(ctx, "widget", 3)
	require.Equal(t, sampledata.StatusQueued, job.Status)

	final := awaitTerminal(t, runner, job.ID)
	require.Equal(t, sampledata.StatusCompleted, final.Status)
	require.Equal(t, 3, final.Created)

	all, err := eng.ListEntries(ctx, "widget")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestSubmitUnknownFormFails(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.Open(ctx, "memory://sampledata-test-missing-form")
	require.NoError(t, err)
	cat := columnar.Open(store, "memory://sampledata-test-missing-form", "spaces/s1")
	reg := forms.NewRegistry(store, cat, "spaces/s1")
	eng := entries.NewEngine(store, cat, reg, integrity.FakeProvider{}, "s1")

	runner := sampledata.NewRunner(eng, reg, "sample-bot")
	job := runner.Submit(ctx, "no-such-form", 1)

	final := awaitTerminal(t, runner, job.ID)
	require.Equal(t, sampledata.StatusFailed, final.Status)
	require.NotEmpty(t, final.Error)
}

func TestGetUnknownJobIsNotFound(t *testing.T) {
	runner := sampledata.NewRunner(nil, nil, "bot")
	_, err := runner.Get("nope")
	require.Error(t, err)
	require.True(t, ieerr.Is(err, ieerr.KindNotFound))
}
