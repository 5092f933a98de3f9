package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

func testFact(txn string, stdID int64, shipped time.Time) *domain.LedgerFact {
	return &domain.LedgerFact{
		TransactionID:      txn,
		Year:               shipped.Year(),
		StdID:              stdID,
		ReportingCountry:   "KENYA",
		Direction:          domain.DirectionImport,
		HSCode6:            "690721",
		OriginCountry:      "CHINA",
		DestinationCountry: "KENYA",
		ShipmentDate:       shipped,
		Month:              int(shipped.Month()),
		QtyKG:              ptr(18000.0),
		CustomsValueUSD:    ptr(22000.0),
		PriceUSDPerKG:      ptr(1.22),
	}
}

func TestLedgerStore_PartitionRouting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	created, err := store.InsertBulk(ctx, []*domain.LedgerFact{
		testFact("t-2026", 1, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)),
		testFact("t-2025", 2, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.Equal(t, 2, created)

	// Each fact lands in its year partition.
	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM trade_facts_y2026").Scan(&n))
	require.Equal(t, 1, n)
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM trade_facts_y2025").Scan(&n))
	require.Equal(t, 1, n)

	fact, err := store.GetByID(ctx, "t-2026", 2026)
	require.NoError(t, err)
	require.Equal(t, 2026, fact.Year)
	require.Equal(t, "690721", fact.HSCode6)
	require.NotNil(t, fact.PriceUSDPerKG)
	require.Equal(t, 1.22, *fact.PriceUSDPerKG)
}

func TestLedgerStore_StdIDConflictAbsorbsRepromotion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	shipped := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	created, err := store.InsertBulk(ctx, []*domain.LedgerFact{testFact("t1", 7, shipped)})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	// Re-promotion mints a fresh transaction id but carries the same std_id;
	// the (std_id, year) conflict swallows it.
	created, err = store.InsertBulk(ctx, []*domain.LedgerFact{testFact("t1-retry", 7, shipped)})
	require.NoError(t, err)
	require.Equal(t, 0, created)

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM trade_facts").Scan(&n))
	require.Equal(t, 1, n)
}

func TestLedgerStore_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	export := testFact("e1", 1, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	export.ReportingCountry = "INDONESIA"
	export.Direction = domain.DirectionExport
	export.OriginCountry = "INDONESIA"
	export.DestinationCountry = "VIETNAM"
	export.HiddenBuyer = true
	export.QtyKG = ptr(1000.0)

	imp := testFact("i1", 2, time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC))
	imp.ReportingCountry = "VIETNAM"
	imp.OriginCountry = "INDONESIA"
	imp.DestinationCountry = "VIETNAM"
	imp.BuyerUUID = ptr("U1")
	imp.QtyKG = ptr(1020.0)

	_, err := store.InsertBulk(ctx, []*domain.LedgerFact{export, imp})
	require.NoError(t, err)

	hidden, err := store.ListHiddenExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	require.Equal(t, "e1", hidden[0].TransactionID)

	params := storage.MirrorParams{MinLagDays: 15, MaxLagDays: 45, QtyTolerance: 0.05, MinScore: 70}
	cands, err := store.FindMirrorCandidates(ctx, hidden[0], params)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "i1", cands[0].TransactionID)

	require.NoError(t, store.SetMirrorBuyer(ctx, "e1", 2025, "U1", time.Now().UTC()))

	// Matched exports drop out of the hidden predicate.
	hidden, err = store.ListHiddenExports(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, hidden)
}
