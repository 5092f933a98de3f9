package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tradeledger/internal/storage"
)

// SummaryStore implements storage.ServingExportStore using ClickHouse.
// The sink table is a ReplacingMergeTree keyed by the summary bucket, so
// re-exporting the same refresh converges instead of duplicating.
type SummaryStore struct {
	conn *Conn
}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore(conn *Conn) *SummaryStore {
	return &SummaryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ServingExportStore = (*SummaryStore)(nil)

// InsertSummary appends a batch of summary rows to the sink.
func (s *SummaryStore) InsertSummary(ctx context.Context, rows []*storage.ServingSummaryRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO serving_trade_summary (
			reporting_country, direction, hs_code_6, destination_country,
			year, month, shipments, value_usd, qty_kg, exported_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	exportedAt := time.Now().UTC()
	for _, r := range rows {
		err = batch.Append(
			r.ReportingCountry, string(r.Direction), r.HSCode6, r.DestinationCountry,
			uint16(r.Year), uint8(r.Month), uint64(r.Shipments), r.ValueUSD, r.QtyKG,
			exportedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
