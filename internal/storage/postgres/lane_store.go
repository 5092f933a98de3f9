package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// LaneStatStore implements storage.LaneStatStore using PostgreSQL.
type LaneStatStore struct {
	pool *Pool
}

// NewLaneStatStore creates a new LaneStatStore.
func NewLaneStatStore(pool *Pool) *LaneStatStore {
	return &LaneStatStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LaneStatStore = (*LaneStatStore)(nil)

// Upsert replaces the stats for a lane.
func (s *LaneStatStore) Upsert(ctx context.Context, l *domain.LaneStat) error {
	carriers, err := marshalRanked(l.TopCarriers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO lane_stats (
			origin_country, destination_country, hs_code_6,
			shipments, value_usd, teu, top_carriers, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (origin_country, destination_country, hs_code_6)
		DO UPDATE SET
			shipments = EXCLUDED.shipments,
			value_usd = EXCLUDED.value_usd,
			teu = EXCLUDED.teu,
			top_carriers = EXCLUDED.top_carriers,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query,
		l.OriginCountry, l.DestinationCountry, l.HSCode6,
		l.Shipments, l.ValueUSD, l.TEU, carriers)
	if err != nil {
		return fmt.Errorf("upsert lane stat: %w", err)
	}
	return nil
}

// Get retrieves stats for one lane. Returns ErrNotFound if absent.
func (s *LaneStatStore) Get(ctx context.Context, origin, destination, hs6 string) (*domain.LaneStat, error) {
	query := `
		SELECT origin_country, destination_country, hs_code_6,
			shipments, value_usd, teu, top_carriers, updated_at
		FROM lane_stats
		WHERE origin_country = $1 AND destination_country = $2 AND hs_code_6 = $3
	`
	var l domain.LaneStat
	var carriers []byte
	err := s.pool.QueryRow(ctx, query, origin, destination, hs6).Scan(
		&l.OriginCountry, &l.DestinationCountry, &l.HSCode6,
		&l.Shipments, &l.ValueUSD, &l.TEU, &carriers, &l.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get lane stat: %w", err)
	}
	if err := json.Unmarshal(carriers, &l.TopCarriers); err != nil {
		return nil, fmt.Errorf("unmarshal top carriers: %w", err)
	}
	return &l, nil
}
