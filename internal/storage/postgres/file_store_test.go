package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

func testFile(name, fingerprint string) *domain.SourceFile {
	return &domain.SourceFile{
		Name:         name,
		Path:         "/data/kenya/import/2024/06/" + name,
		Fingerprint:  fingerprint,
		Country:      "KENYA",
		Direction:    domain.DirectionImport,
		SourceFormat: domain.FormatFull,
		Year:         2024,
		Month:        6,
		Status:       domain.FileStatusPending,
	}
}

func TestFileStore_FingerprintUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFileStore(pool)

	id, err := store.Insert(ctx, testFile("a.csv", "fp-1"))
	require.NoError(t, err)
	require.Positive(t, id)

	// Same content under a different name is rejected.
	_, err = store.Insert(ctx, testFile("b.csv", "fp-1"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	file, err := store.GetByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, "a.csv", file.Name)
}

func TestFileStore_StageLease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFileStore(pool)

	id, err := store.Insert(ctx, testFile("a.csv", "fp-1"))
	require.NoError(t, err)
	require.NoError(t, store.MarkIngested(ctx, id, 100, time.Now().UTC()))

	ready, err := store.ListReadyForStage(ctx, domain.StageStandardization, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	// First claim wins; the second worker is turned away.
	ok, err := store.ClaimStage(ctx, id, domain.StageStandardization, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.ClaimStage(ctx, id, domain.StageStandardization, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, ok)

	// Releasing reopens the lease.
	require.NoError(t, store.ReleaseStage(ctx, id, domain.StageStandardization))
	ok, err = store.ClaimStage(ctx, id, domain.StageStandardization, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	// Completion closes the stage for good.
	require.NoError(t, store.CompleteStage(ctx, id, domain.StageStandardization, time.Now().UTC()))
	require.NoError(t, store.ReleaseStage(ctx, id, domain.StageStandardization))
	ok, err = store.ClaimStage(ctx, id, domain.StageStandardization, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, ok)

	ready, err = store.ListReadyForStage(ctx, domain.StageStandardization, 10)
	require.NoError(t, err)
	require.Empty(t, ready)

	// The file now sits in the identity queue.
	ready, err = store.ListReadyForStage(ctx, domain.StageIdentity, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
}
