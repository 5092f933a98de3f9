package analytics

import (
	"context"
	"fmt"
	"time"

	"tradeledger/internal/domain"
)

type laneKey struct {
	origin string
	dest   string
	hs6    string
}

// buildLanes recomputes shipment totals for every lane touched since the
// bound.
func (b *Builder) buildLanes(ctx context.Context, since time.Time) (int, error) {
	keys := make(map[laneKey]struct{})
	err := b.touched(ctx, since, func(f *domain.LedgerFact) {
		keys[laneKey{f.OriginCountry, f.DestinationCountry, f.HSCode6}] = struct{}{}
	})
	if err != nil {
		return 0, err
	}

	built := 0
	for key := range keys {
		if err := ctx.Err(); err != nil {
			return built, err
		}
		facts, err := b.facts.ListByLane(ctx, key.origin, key.dest, key.hs6)
		if err != nil {
			return built, fmt.Errorf("list lane facts: %w", err)
		}
		if len(facts) == 0 {
			continue
		}
		if err := b.lanes.Upsert(ctx, BuildLaneStat(key.origin, key.dest, key.hs6, facts)); err != nil {
			return built, fmt.Errorf("upsert lane stat: %w", err)
		}
		built++
		if b.metrics != nil {
			b.metrics.LanesBuilt.Inc()
		}
	}
	return built, nil
}

// BuildLaneStat sums one lane's shipments, value and TEU. Top carriers come
// from the vessel field, ranked by carried value.
func BuildLaneStat(origin, dest, hs6 string, facts []*domain.LedgerFact) *domain.LaneStat {
	l := &domain.LaneStat{
		OriginCountry:      origin,
		DestinationCountry: dest,
		HSCode6:            hs6,
		Shipments:          int64(len(facts)),
		UpdatedAt:          time.Now().UTC(),
	}

	carriers := newRanker()
	for _, f := range facts {
		value := factValueUSD(f)
		l.ValueUSD += value
		if f.TEU != nil {
			l.TEU += *f.TEU
		}
		if f.Vessel != nil && *f.Vessel != "" {
			carriers.add(*f.Vessel, value)
		}
	}
	l.TopCarriers = carriers.top(5)
	return l
}
