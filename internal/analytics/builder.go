// Package analytics implements stage S6: incremental aggregation of the
// ledger into buyer/exporter profiles, price corridors and lane stats.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Watermark job names, one per builder.
const (
	JobBuyerProfiles    = "buyer_profiles"
	JobExporterProfiles = "exporter_profiles"
	JobPriceCorridors   = "price_corridors"
	JobLaneStats        = "lane_stats"
)

// Builder recomputes derived aggregates for entities touched since each
// job's watermark, minus the late-arrival lookback.
type Builder struct {
	facts      storage.LedgerStore
	buyers     storage.BuyerProfileStore
	exporters  storage.ExporterProfileStore
	corridors  storage.PriceCorridorStore
	lanes      storage.LaneStatStore
	watermarks storage.WatermarkStore
	lookback   time.Duration
	pageSize   int
	logger     *log.Logger
	metrics    *observability.Metrics
}

// BuilderOptions contains configuration for creating a Builder.
type BuilderOptions struct {
	LedgerStore          storage.LedgerStore
	BuyerProfileStore    storage.BuyerProfileStore
	ExporterProfileStore storage.ExporterProfileStore
	PriceCorridorStore   storage.PriceCorridorStore
	LaneStatStore        storage.LaneStatStore
	WatermarkStore       storage.WatermarkStore
	Lookback             time.Duration // default domain.DefaultLookback
	PageSize             int           // touched-fact page size, default 5000
	Logger               *log.Logger
	Metrics              *observability.Metrics
}

// NewBuilder creates a new Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = domain.DefaultLookback
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 5000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		facts:      opts.LedgerStore,
		buyers:     opts.BuyerProfileStore,
		exporters:  opts.ExporterProfileStore,
		corridors:  opts.PriceCorridorStore,
		lanes:      opts.LaneStatStore,
		watermarks: opts.WatermarkStore,
		lookback:   lookback,
		pageSize:   pageSize,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Result aggregates one full builder run.
type Result struct {
	BuyerProfiles    int
	ExporterProfiles int
	Corridors        int
	Lanes            int
}

// Run executes all four builders. Each keeps its own watermark, advanced to
// the run's start only when that builder succeeds, so a failure replays the
// same window next time.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	start := time.Now().UTC()

	jobs := []struct {
		name string
		run  func(ctx context.Context, since time.Time) (int, error)
	}{
		{JobBuyerProfiles, b.buildBuyerProfiles},
		{JobExporterProfiles, b.buildExporterProfiles},
		{JobPriceCorridors, b.buildCorridors},
		{JobLaneStats, b.buildLanes},
	}

	for _, job := range jobs {
		since, err := b.since(ctx, job.name)
		if err != nil {
			return result, err
		}
		n, err := job.run(ctx, since)
		if err != nil {
			return result, fmt.Errorf("%s: %w", job.name, err)
		}
		if err := b.watermarks.Set(ctx, job.name, start); err != nil {
			return result, fmt.Errorf("advance watermark %s: %w", job.name, err)
		}
		switch job.name {
		case JobBuyerProfiles:
			result.BuyerProfiles = n
		case JobExporterProfiles:
			result.ExporterProfiles = n
		case JobPriceCorridors:
			result.Corridors = n
		case JobLaneStats:
			result.Lanes = n
		}
		b.logger.Printf("[analytics] %s rebuilt=%d since=%s", job.name, n, since.Format(time.RFC3339))
	}
	return result, nil
}

// since resolves a job's incremental lower bound. A job that has never run
// consumes the whole ledger.
func (b *Builder) since(ctx context.Context, jobName string) (time.Time, error) {
	wm, err := b.watermarks.Get(ctx, jobName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get watermark %s: %w", jobName, err)
	}
	return wm.Watermark.Add(-b.lookback), nil
}

// touched pages facts created since the bound and feeds each to collect.
func (b *Builder) touched(ctx context.Context, since time.Time, collect func(*domain.LedgerFact)) error {
	var afterID string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		facts, err := b.facts.ListCreatedSince(ctx, since, afterID, b.pageSize)
		if err != nil {
			return fmt.Errorf("list touched facts: %w", err)
		}
		if len(facts) == 0 {
			return nil
		}
		afterID = facts[len(facts)-1].TransactionID
		for _, f := range facts {
			collect(f)
		}
	}
}
