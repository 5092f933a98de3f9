package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

func summaryRow(hs6 string, shipments int64, valueUSD float64) *storage.ServingSummaryRow {
	return &storage.ServingSummaryRow{
		ReportingCountry:   "KENYA",
		Direction:          domain.DirectionImport,
		HSCode6:            hs6,
		DestinationCountry: "KENYA",
		Year:               2024,
		Month:              6,
		Shipments:          shipments,
		ValueUSD:           valueUSD,
		QtyKG:              1000,
	}
}

func TestSummaryStore_InsertSummary(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSummaryStore(conn)

	err := store.InsertSummary(ctx, []*storage.ServingSummaryRow{
		summaryRow("690721", 2, 22_000),
		summaryRow("080212", 1, 40_000),
	})
	require.NoError(t, err)

	var count uint64
	require.NoError(t, conn.QueryRow(ctx,
		"SELECT count() FROM serving_trade_summary").Scan(&count))
	require.Equal(t, uint64(2), count)

	var shipments uint64
	var valueUSD float64
	require.NoError(t, conn.QueryRow(ctx, `
		SELECT shipments, value_usd FROM serving_trade_summary
		WHERE hs_code_6 = '690721'
	`).Scan(&shipments, &valueUSD))
	require.Equal(t, uint64(2), shipments)
	require.Equal(t, 22_000.0, valueUSD)
}

func TestSummaryStore_ReExportConverges(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSummaryStore(conn)

	require.NoError(t, store.InsertSummary(ctx, []*storage.ServingSummaryRow{
		summaryRow("690721", 2, 22_000),
	}))
	require.NoError(t, store.InsertSummary(ctx, []*storage.ServingSummaryRow{
		summaryRow("690721", 3, 35_000),
	}))

	// ReplacingMergeTree keeps the latest export per bucket; FINAL collapses
	// the versions without waiting for a background merge.
	var shipments uint64
	require.NoError(t, conn.QueryRow(ctx, `
		SELECT shipments FROM serving_trade_summary FINAL
		WHERE hs_code_6 = '690721'
	`).Scan(&shipments))
	require.Equal(t, uint64(3), shipments)
}

func TestSummaryStore_EmptyBatchIsNoOp(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSummaryStore(conn)
	require.NoError(t, store.InsertSummary(context.Background(), nil))
}
