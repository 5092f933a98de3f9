package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage/memory"
)

func TestTracker_SuccessfulRun(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()
	tracker := NewTracker(TrackerOptions{PipelineRunStore: runs})

	run, err := tracker.Begin(ctx, "ingest", map[string]string{"data_root": "/data"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID())

	stored, err := runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	require.Equal(t, domain.RunRunning, stored.Status)
	require.Equal(t, "/data", stored.Filters["data_root"])

	run.AddProcessed(10)
	run.AddCreated(8)
	run.AddSkipped(2)
	require.NoError(t, run.Finish(ctx, domain.RunSuccess, nil))

	stored, err = runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	require.Equal(t, domain.RunSuccess, stored.Status)
	require.Equal(t, int64(10), stored.Processed)
	require.Equal(t, int64(8), stored.Created)
	require.Equal(t, int64(2), stored.Skipped)
	require.NotNil(t, stored.CompletedAt)
	require.Nil(t, stored.ErrorMessage)
}

func TestTracker_FailedRunRecordsError(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()
	tracker := NewTracker(TrackerOptions{PipelineRunStore: runs})

	run, err := tracker.Begin(ctx, "ledger", nil)
	require.NoError(t, err)
	require.NoError(t, run.Finish(ctx, domain.RunFailed, errors.New("insert facts: connection reset")))

	stored, err := runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	require.Equal(t, domain.RunFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	require.Contains(t, *stored.ErrorMessage, "connection reset")
}

func TestTracker_PartialRun(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()
	tracker := NewTracker(TrackerOptions{PipelineRunStore: runs})

	run, err := tracker.Begin(ctx, "mirror", nil)
	require.NoError(t, err)
	require.NoError(t, run.Finish(ctx, domain.RunPartial, context.Canceled))

	stored, err := runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	require.Equal(t, domain.RunPartial, stored.Status)
}

func TestTracker_ConcurrentRunsAreIndependent(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()
	tracker := NewTracker(TrackerOptions{PipelineRunStore: runs})

	a, err := tracker.Begin(ctx, "standardize", nil)
	require.NoError(t, err)
	b, err := tracker.Begin(ctx, "standardize", nil)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())

	a.AddProcessed(5)
	require.NoError(t, a.Finish(ctx, domain.RunSuccess, nil))

	stored, err := runs.GetByID(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, domain.RunRunning, stored.Status)
}
