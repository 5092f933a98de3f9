package postgres

import (
	"context"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// ServingStore implements storage.ServingStore using PostgreSQL.
type ServingStore struct {
	pool *Pool
}

// NewServingStore creates a new ServingStore.
func NewServingStore(pool *Pool) *ServingStore {
	return &ServingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ServingStore = (*ServingStore)(nil)

// RefreshSummary rebuilds serving_trade_summary without blocking readers.
// The view's unique index makes the CONCURRENTLY form legal.
func (s *ServingStore) RefreshSummary(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY serving_trade_summary`); err != nil {
		return fmt.Errorf("refresh serving summary: %w", err)
	}
	return nil
}

// ListSummary pages the summary in stable bucket order.
func (s *ServingStore) ListSummary(ctx context.Context, offset, limit int) ([]*storage.ServingSummaryRow, error) {
	query := `
		SELECT reporting_country, direction, hs_code_6, destination_country,
			year, month, shipments, value_usd, qty_kg
		FROM serving_trade_summary
		ORDER BY reporting_country, direction, hs_code_6, destination_country, year, month
		OFFSET $1 LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list serving summary: %w", err)
	}
	defer rows.Close()

	var out []*storage.ServingSummaryRow
	for rows.Next() {
		var r storage.ServingSummaryRow
		var dir string
		err := rows.Scan(
			&r.ReportingCountry, &dir, &r.HSCode6, &r.DestinationCountry,
			&r.Year, &r.Month, &r.Shipments, &r.ValueUSD, &r.QtyKG)
		if err != nil {
			return nil, fmt.Errorf("scan serving summary row: %w", err)
		}
		r.Direction = domain.Direction(dir)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate serving summary rows: %w", err)
	}
	return out, nil
}
