package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradeledger/internal/domain"
)

type corridorKey struct {
	hs6       string
	dest      string
	year      int
	month     int
	direction domain.Direction
	reporting string
}

// buildCorridors recomputes the price envelope of every corridor bucket
// touched since the bound.
func (b *Builder) buildCorridors(ctx context.Context, since time.Time) (int, error) {
	keys := make(map[corridorKey]struct{})
	err := b.touched(ctx, since, func(f *domain.LedgerFact) {
		keys[corridorKey{f.HSCode6, f.DestinationCountry, f.Year, f.Month, f.Direction, f.ReportingCountry}] = struct{}{}
	})
	if err != nil {
		return 0, err
	}

	built := 0
	for key := range keys {
		if err := ctx.Err(); err != nil {
			return built, err
		}
		facts, err := b.facts.ListByCorridor(ctx, key.hs6, key.dest, key.year, key.month, key.direction, key.reporting)
		if err != nil {
			return built, fmt.Errorf("list corridor facts: %w", err)
		}

		corridor, ok := BuildCorridor(key, facts)
		if !ok {
			// No qualifying prices; an existing corridor row keeps its
			// previous envelope rather than degrading to zeros.
			continue
		}
		if err := b.corridors.Upsert(ctx, corridor); err != nil {
			return built, fmt.Errorf("upsert corridor: %w", err)
		}
		built++
		if b.metrics != nil {
			b.metrics.CorridorsBuilt.Inc()
		}
	}
	return built, nil
}

// BuildCorridor computes the percentile envelope over qualifying rows
// (positive price and weight). ok is false when no row qualifies.
func BuildCorridor(key corridorKey, facts []*domain.LedgerFact) (*domain.PriceCorridor, bool) {
	var prices []float64
	for _, f := range facts {
		if f.PriceUSDPerKG != nil && *f.PriceUSDPerKG > 0 && f.QtyKG != nil && *f.QtyKG > 0 {
			prices = append(prices, *f.PriceUSDPerKG)
		}
	}
	if len(prices) == 0 {
		return nil, false
	}
	sort.Float64s(prices)

	mean := computeMean(prices)
	return &domain.PriceCorridor{
		HSCode6:            key.hs6,
		DestinationCountry: key.dest,
		Year:               key.year,
		Month:              key.month,
		Direction:          key.direction,
		ReportingCountry:   key.reporting,
		MinPrice:           prices[0],
		P25:                computePercentile(prices, 0.25),
		Median:             computePercentile(prices, 0.50),
		P75:                computePercentile(prices, 0.75),
		MaxPrice:           prices[len(prices)-1],
		Mean:               mean,
		StdDev:             computeStddev(prices, mean),
		SampleSize:         len(prices),
		UpdatedAt:          time.Now().UTC(),
	}, true
}
