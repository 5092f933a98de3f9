package postgres

import (
	"context"
	"fmt"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// WatermarkStore implements storage.WatermarkStore using PostgreSQL.
type WatermarkStore struct {
	pool *Pool
}

// NewWatermarkStore creates a new WatermarkStore.
func NewWatermarkStore(pool *Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get returns the watermark for a job. ErrNotFound when never completed.
func (s *WatermarkStore) Get(ctx context.Context, jobName string) (*domain.Watermark, error) {
	query := `SELECT job_name, watermark, updated_at FROM analytics_watermarks WHERE job_name = $1`
	var w domain.Watermark
	err := s.pool.QueryRow(ctx, query, jobName).Scan(&w.JobName, &w.Watermark, &w.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return &w, nil
}

// Set advances (or initializes) the watermark for a job.
func (s *WatermarkStore) Set(ctx context.Context, jobName string, mark time.Time) error {
	query := `
		INSERT INTO analytics_watermarks (job_name, watermark, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (job_name) DO UPDATE SET watermark = EXCLUDED.watermark, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, jobName, mark); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}
