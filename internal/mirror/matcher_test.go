package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
	"tradeledger/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hiddenExport(txn string, stdID int64) *domain.LedgerFact {
	return &domain.LedgerFact{
		TransactionID:      txn,
		Year:               2025,
		StdID:              stdID,
		ReportingCountry:   "INDONESIA",
		Direction:          domain.DirectionExport,
		HSCode6:            "690721",
		OriginCountry:      "INDONESIA",
		DestinationCountry: "VIETNAM",
		ShipmentDate:       date(2025, 3, 1),
		Month:              3,
		HiddenBuyer:        true,
		QtyKG:              ptr(1000.0),
	}
}

func importFact(txn string, stdID int64, buyer string, qtyKG float64, shipped time.Time) *domain.LedgerFact {
	return &domain.LedgerFact{
		TransactionID:      txn,
		Year:               shipped.Year(),
		StdID:              stdID,
		ReportingCountry:   "VIETNAM",
		Direction:          domain.DirectionImport,
		HSCode6:            "690721",
		OriginCountry:      "INDONESIA",
		DestinationCountry: "VIETNAM",
		ShipmentDate:       shipped,
		Month:              int(shipped.Month()),
		BuyerUUID:          ptr(buyer),
		QtyKG:              ptr(qtyKG),
	}
}

func newTestMatcher(facts *memory.LedgerStore, matches *memory.MirrorMatchStore) *Matcher {
	return NewMatcher(MatcherOptions{
		LedgerStore:      facts,
		MirrorMatchStore: matches,
	})
}

func TestMatcher_HiddenBuyerMatch(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewLedgerStore()
	matches := memory.NewMirrorMatchStore()

	_, err := facts.InsertBulk(ctx, []*domain.LedgerFact{
		hiddenExport("e1", 1),
		importFact("i1", 2, "U1", 1020, date(2025, 3, 25)),
	})
	require.NoError(t, err)

	result, err := newTestMatcher(facts, matches).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Exports)
	require.Equal(t, 1, result.Matched)

	match, err := matches.GetByExportID(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, "i1", match.ImportID)
	require.GreaterOrEqual(t, match.Score, 85)
	require.Equal(t, domain.MirrorWeightHS6, match.Criteria.HS6)
	require.Equal(t, domain.MirrorWeightQty, match.Criteria.Qty)
	require.Equal(t, domain.MirrorWeightDate, match.Criteria.Date)

	export, err := facts.GetByID(ctx, "e1", 2025)
	require.NoError(t, err)
	require.NotNil(t, export.BuyerUUID)
	require.Equal(t, "U1", *export.BuyerUUID)
	require.NotNil(t, export.MirrorMatchedAt)
}

func TestMatcher_AmbiguousRejection(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewLedgerStore()
	matches := memory.NewMirrorMatchStore()

	_, err := facts.InsertBulk(ctx, []*domain.LedgerFact{
		hiddenExport("e1", 1),
		importFact("i1", 2, "U1", 1020, date(2025, 3, 25)),
		importFact("i2", 3, "U2", 1019, date(2025, 3, 26)),
	})
	require.NoError(t, err)

	result, err := newTestMatcher(facts, matches).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Exports)
	require.Equal(t, 0, result.Matched)
	require.Equal(t, 1, result.Ambiguous)

	_, err = matches.GetByExportID(ctx, "e1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	export, err := facts.GetByID(ctx, "e1", 2025)
	require.NoError(t, err)
	require.Nil(t, export.BuyerUUID)
	require.Nil(t, export.MirrorMatchedAt)
}

func TestMatcher_NoCandidates(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewLedgerStore()
	matches := memory.NewMirrorMatchStore()

	// Import outside the 15-45 day lag window.
	_, err := facts.InsertBulk(ctx, []*domain.LedgerFact{
		hiddenExport("e1", 1),
		importFact("i1", 2, "U1", 1020, date(2025, 3, 5)),
	})
	require.NoError(t, err)

	result, err := newTestMatcher(facts, matches).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.NoCandidates)
	require.Equal(t, 0, result.Matched)
}

func TestMatcher_QtyBandExcludes(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewLedgerStore()
	matches := memory.NewMirrorMatchStore()

	// 1100 kg is outside the ±5% band around 1000 kg.
	_, err := facts.InsertBulk(ctx, []*domain.LedgerFact{
		hiddenExport("e1", 1),
		importFact("i1", 2, "U1", 1100, date(2025, 3, 25)),
	})
	require.NoError(t, err)

	result, err := newTestMatcher(facts, matches).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.NoCandidates)
}

func TestMatcher_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	facts := memory.NewLedgerStore()
	matches := memory.NewMirrorMatchStore()

	_, err := facts.InsertBulk(ctx, []*domain.LedgerFact{
		hiddenExport("e1", 1),
		importFact("i1", 2, "U1", 1020, date(2025, 3, 25)),
	})
	require.NoError(t, err)

	m := newTestMatcher(facts, matches)
	_, err = m.Run(ctx)
	require.NoError(t, err)

	// The matched export no longer satisfies the hidden predicate.
	result, err := m.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Exports)
}

func TestScore_Breakdown(t *testing.T) {
	params := storage.MirrorParams{MinLagDays: 15, MaxLagDays: 45, QtyTolerance: 0.05, MinScore: 70}

	export := hiddenExport("e1", 1)
	export.ContainerID = ptr("MSKU1234567")
	export.Vessel = ptr("EVER GIVEN")

	cand := importFact("i1", 2, "U1", 1020, date(2025, 3, 25))
	cand.ContainerID = ptr("MSKU1234567")
	cand.Vessel = ptr("EVER GIVEN")

	criteria := Score(export, cand, params)
	require.Equal(t, 100, criteria.Total())

	// Without logistics attributes only the base criteria score.
	cand.ContainerID = nil
	cand.Vessel = nil
	criteria = Score(export, cand, params)
	require.Equal(t, 85, criteria.Total())

	// An export without weight cannot earn the quantity points.
	export.QtyKG = nil
	criteria = Score(export, cand, params)
	require.Equal(t, 60, criteria.Total())
}
