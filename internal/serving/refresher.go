// Package serving implements stage S8: refreshing the materialized summary
// the external API reads, with an optional push to an analytical sink.
package serving

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Refresher rebuilds the serving summary and optionally exports it.
type Refresher struct {
	serving   storage.ServingStore
	sink      storage.ServingExportStore // nil disables export
	batchSize int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// RefresherOptions contains configuration for creating a Refresher.
type RefresherOptions struct {
	ServingStore storage.ServingStore
	ExportStore  storage.ServingExportStore // optional
	BatchSize    int                        // export page size, default 10000
	Logger       *log.Logger
	Metrics      *observability.Metrics
}

// NewRefresher creates a new Refresher.
func NewRefresher(opts RefresherOptions) *Refresher {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{
		serving:   opts.ServingStore,
		sink:      opts.ExportStore,
		batchSize: batchSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Result aggregates one refresh.
type Result struct {
	Exported int
	Duration time.Duration
}

// Run refreshes the summary and, when a sink is configured, pages the whole
// refreshed summary into it.
func (r *Refresher) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if err := r.serving.RefreshSummary(ctx); err != nil {
		return result, fmt.Errorf("refresh summary: %w", err)
	}

	if r.sink != nil {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			rows, err := r.serving.ListSummary(ctx, offset, r.batchSize)
			if err != nil {
				return result, fmt.Errorf("list summary: %w", err)
			}
			if len(rows) == 0 {
				break
			}
			if err := r.sink.InsertSummary(ctx, rows); err != nil {
				return result, fmt.Errorf("export summary: %w", err)
			}
			result.Exported += len(rows)
			offset += len(rows)
		}
	}

	result.Duration = time.Since(start)
	r.logger.Printf("[serving] refreshed exported=%d in %s", result.Exported, result.Duration)
	return result, nil
}
