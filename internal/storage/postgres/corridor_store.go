package postgres

import (
	"context"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// PriceCorridorStore implements storage.PriceCorridorStore using PostgreSQL.
type PriceCorridorStore struct {
	pool *Pool
}

// NewPriceCorridorStore creates a new PriceCorridorStore.
func NewPriceCorridorStore(pool *Pool) *PriceCorridorStore {
	return &PriceCorridorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceCorridorStore = (*PriceCorridorStore)(nil)

// Upsert replaces the corridor for its bucket key.
func (s *PriceCorridorStore) Upsert(ctx context.Context, c *domain.PriceCorridor) error {
	query := `
		INSERT INTO price_corridors (
			hs_code_6, destination_country, year, month, direction, reporting_country,
			min_price, p25, median, p75, max_price, mean, std_dev, sample_size, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (hs_code_6, destination_country, year, month, direction, reporting_country)
		DO UPDATE SET
			min_price = EXCLUDED.min_price,
			p25 = EXCLUDED.p25,
			median = EXCLUDED.median,
			p75 = EXCLUDED.p75,
			max_price = EXCLUDED.max_price,
			mean = EXCLUDED.mean,
			std_dev = EXCLUDED.std_dev,
			sample_size = EXCLUDED.sample_size,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query,
		c.HSCode6, c.DestinationCountry, c.Year, c.Month, string(c.Direction), c.ReportingCountry,
		c.MinPrice, c.P25, c.Median, c.P75, c.MaxPrice, c.Mean, c.StdDev, c.SampleSize)
	if err != nil {
		return fmt.Errorf("upsert price corridor: %w", err)
	}
	return nil
}

// Get retrieves one corridor bucket. Returns ErrNotFound if absent.
func (s *PriceCorridorStore) Get(ctx context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) (*domain.PriceCorridor, error) {
	query := `
		SELECT hs_code_6, destination_country, year, month, direction, reporting_country,
			min_price, p25, median, p75, max_price, mean, std_dev, sample_size, updated_at
		FROM price_corridors
		WHERE hs_code_6 = $1 AND destination_country = $2 AND year = $3 AND month = $4
			AND direction = $5 AND reporting_country = $6
	`
	var c domain.PriceCorridor
	var dir string
	err := s.pool.QueryRow(ctx, query, hs6, destinationCountry, year, month, string(direction), reportingCountry).Scan(
		&c.HSCode6, &c.DestinationCountry, &c.Year, &c.Month, &dir, &c.ReportingCountry,
		&c.MinPrice, &c.P25, &c.Median, &c.P75, &c.MaxPrice, &c.Mean, &c.StdDev, &c.SampleSize, &c.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get price corridor: %w", err)
	}
	c.Direction = domain.Direction(dir)
	return &c, nil
}
