package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

func testOrg(normalized, country string, orgType domain.OrgType) *domain.Organization {
	now := time.Now().UTC()
	return &domain.Organization{
		UUID:             uuid.NewString(),
		NormalizedName:   normalized,
		Country:          country,
		Type:             orgType,
		RawNameVariants:  []string{normalized},
		FirstSeen:        &now,
		LastSeen:         &now,
		TransactionCount: 1,
	}
}

func TestOrganizationStore_NaturalKeyConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrganizationStore(pool)

	first, created, err := store.InsertOrGet(ctx, testOrg("ACME TRADING", "KENYA", domain.OrgTypeBuyer))
	require.NoError(t, err)
	require.True(t, created)

	// Same natural key loses the race; the winner's row comes back.
	second, created, err := store.InsertOrGet(ctx, testOrg("ACME TRADING", "KENYA", domain.OrgTypeSupplier))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.UUID, second.UUID)

	// Same name in another country is a distinct organization.
	_, created, err = store.InsertOrGet(ctx, testOrg("ACME TRADING", "TANZANIA", domain.OrgTypeBuyer))
	require.NoError(t, err)
	require.True(t, created)
}

func TestOrganizationStore_FindSimilar(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrganizationStore(pool)

	seed, _, err := store.InsertOrGet(ctx, testOrg("GLOBEX TRADING", "KENYA", domain.OrgTypeBuyer))
	require.NoError(t, err)

	org, sim, err := store.FindSimilar(ctx, "KENYA", "GLOBEX TRADNG", 0.5)
	require.NoError(t, err)
	require.Equal(t, seed.UUID, org.UUID)
	require.Greater(t, sim, 0.5)

	// Below threshold or wrong country: no match.
	_, _, err = store.FindSimilar(ctx, "KENYA", "INITECH SYSTEMS", 0.5)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, _, err = store.FindSimilar(ctx, "TANZANIA", "GLOBEX TRADNG", 0.5)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrganizationStore_RecordObservation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewOrganizationStore(pool)

	org, _, err := store.InsertOrGet(ctx, testOrg("ACME", "KENYA", domain.OrgTypeBuyer))
	require.NoError(t, err)

	seen := time.Now().UTC()
	require.NoError(t, store.RecordObservation(ctx, org.UUID, domain.OrgTypeSupplier, "ACME LIMITED", seen))

	updated, err := store.GetByUUID(ctx, org.UUID)
	require.NoError(t, err)
	require.Equal(t, domain.OrgTypeMixed, updated.Type)
	require.True(t, updated.HasVariant("ACME LIMITED"))
	require.Equal(t, int64(2), updated.TransactionCount)

	// Re-observing the same spelling bumps counters without duplicating it.
	require.NoError(t, store.RecordObservation(ctx, org.UUID, domain.OrgTypeSupplier, "ACME LIMITED", seen))
	updated, err = store.GetByUUID(ctx, org.UUID)
	require.NoError(t, err)
	require.Len(t, updated.RawNameVariants, 2)
	require.Equal(t, int64(3), updated.TransactionCount)
}
