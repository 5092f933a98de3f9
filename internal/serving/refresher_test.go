package serving

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

func summaryFact(txn string, stdID int64, hs6 string, value float64) *domain.LedgerFact {
	shipped := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return &domain.LedgerFact{
		TransactionID:      txn,
		Year:               2024,
		StdID:              stdID,
		ReportingCountry:   "KENYA",
		Direction:          domain.DirectionImport,
		HSCode6:            hs6,
		OriginCountry:      "CHINA",
		DestinationCountry: "KENYA",
		ShipmentDate:       shipped,
		Month:              6,
		QtyKG:              ptr(1000.0),
		CustomsValueUSD:    ptr(value),
	}
}

func TestRefresher_ExportsSummary(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedgerStore()
	serving := memory.NewServingStore(ledger)
	sink := memory.NewServingExportStore()

	_, err := ledger.InsertBulk(ctx, []*domain.LedgerFact{
		summaryFact("t1", 1, "690721", 10_000),
		summaryFact("t2", 2, "690721", 12_000),
		summaryFact("t3", 3, "080212", 40_000),
	})
	require.NoError(t, err)

	r := NewRefresher(RefresherOptions{ServingStore: serving, ExportStore: sink, BatchSize: 1})
	result, err := r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Exported)

	rows := sink.Rows()
	require.Len(t, rows, 2)
	// Stable bucket order: hs6 ascending within the same country/direction.
	require.Equal(t, "080212", rows[0].HSCode6)
	require.Equal(t, int64(1), rows[0].Shipments)
	require.Equal(t, "690721", rows[1].HSCode6)
	require.Equal(t, int64(2), rows[1].Shipments)
	require.Equal(t, 22_000.0, rows[1].ValueUSD)
}

func TestRefresher_NoSinkStillRefreshes(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedgerStore()
	serving := memory.NewServingStore(ledger)

	_, err := ledger.InsertBulk(ctx, []*domain.LedgerFact{summaryFact("t1", 1, "690721", 10_000)})
	require.NoError(t, err)

	r := NewRefresher(RefresherOptions{ServingStore: serving})
	result, err := r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Exported)

	rows, err := serving.ListSummary(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Shipments)
}
