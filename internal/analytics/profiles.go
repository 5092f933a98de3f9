package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"tradeledger/internal/domain"
)

type buyerKey struct {
	uuid    string
	country string // destination
}

type supplierKey struct {
	uuid    string
	country string // origin
}

// buildBuyerProfiles recomputes the full profile of every buyer touched
// since the bound.
func (b *Builder) buildBuyerProfiles(ctx context.Context, since time.Time) (int, error) {
	keys := make(map[buyerKey]struct{})
	err := b.touched(ctx, since, func(f *domain.LedgerFact) {
		if f.BuyerUUID != nil {
			keys[buyerKey{*f.BuyerUUID, f.DestinationCountry}] = struct{}{}
		}
	})
	if err != nil {
		return 0, err
	}

	built := 0
	for key := range keys {
		if err := ctx.Err(); err != nil {
			return built, err
		}
		facts, err := b.facts.ListByBuyer(ctx, key.uuid, key.country)
		if err != nil {
			return built, fmt.Errorf("list buyer facts: %w", err)
		}
		if len(facts) == 0 {
			continue
		}
		profile := BuildBuyerProfile(key.uuid, key.country, facts)
		if err := b.buyers.Upsert(ctx, profile); err != nil {
			return built, fmt.Errorf("upsert buyer profile: %w", err)
		}
		built++
		if b.metrics != nil {
			b.metrics.ProfilesBuilt.WithLabelValues("buyer").Inc()
		}
	}
	return built, nil
}

// buildExporterProfiles is the supplier-side mirror of buildBuyerProfiles.
func (b *Builder) buildExporterProfiles(ctx context.Context, since time.Time) (int, error) {
	keys := make(map[supplierKey]struct{})
	err := b.touched(ctx, since, func(f *domain.LedgerFact) {
		if f.SupplierUUID != nil {
			keys[supplierKey{*f.SupplierUUID, f.OriginCountry}] = struct{}{}
		}
	})
	if err != nil {
		return 0, err
	}

	built := 0
	for key := range keys {
		if err := ctx.Err(); err != nil {
			return built, err
		}
		facts, err := b.facts.ListBySupplier(ctx, key.uuid, key.country)
		if err != nil {
			return built, fmt.Errorf("list supplier facts: %w", err)
		}
		if len(facts) == 0 {
			continue
		}
		profile := BuildExporterProfile(key.uuid, key.country, facts)
		if err := b.exporters.Upsert(ctx, profile); err != nil {
			return built, fmt.Errorf("upsert exporter profile: %w", err)
		}
		built++
		if b.metrics != nil {
			b.metrics.ProfilesBuilt.WithLabelValues("exporter").Inc()
		}
	}
	return built, nil
}

// BuildBuyerProfile aggregates one buyer's facts into its profile row.
func BuildBuyerProfile(buyerUUID, destinationCountry string, facts []*domain.LedgerFact) *domain.BuyerProfile {
	p := &domain.BuyerProfile{
		BuyerUUID:          buyerUUID,
		DestinationCountry: destinationCountry,
		Shipments:          int64(len(facts)),
		UpdatedAt:          time.Now().UTC(),
	}

	hs6 := newRanker()
	suppliers := newRanker()
	valueByYear := make(map[int]float64)
	for _, f := range facts {
		value := factValueUSD(f)
		p.TotalValueUSD += value
		if f.QtyKG != nil {
			p.TotalQtyKG += *f.QtyKG
		}
		hs6.add(f.HSCode6, value)
		if f.SupplierUUID != nil {
			suppliers.add(*f.SupplierUUID, value)
		}
		valueByYear[f.Year] += value
	}

	p.UniqueHS6 = hs6.size()
	p.TopHS6 = hs6.top(5)
	p.TopSuppliers = suppliers.top(5)
	p.YoYGrowth = yoyGrowth(valueByYear)
	p.Persona = domain.PersonaFor(p.TotalValueUSD, p.Shipments)
	return p
}

// BuildExporterProfile aggregates one supplier's facts into its profile row.
func BuildExporterProfile(supplierUUID, originCountry string, facts []*domain.LedgerFact) *domain.ExporterProfile {
	p := &domain.ExporterProfile{
		SupplierUUID:  supplierUUID,
		OriginCountry: originCountry,
		Shipments:     int64(len(facts)),
		UpdatedAt:     time.Now().UTC(),
	}

	hs6 := newRanker()
	buyers := newRanker()
	for _, f := range facts {
		value := factValueUSD(f)
		p.TotalValueUSD += value
		if f.QtyKG != nil {
			p.TotalQtyKG += *f.QtyKG
		}
		hs6.add(f.HSCode6, value)
		if f.BuyerUUID != nil {
			buyers.add(*f.BuyerUUID, value)
		}
	}

	p.UniqueHS6 = hs6.size()
	p.TopHS6 = hs6.top(5)
	p.TopBuyers = buyers.top(5)
	p.StabilityScore = StabilityScore(facts)
	return p
}

// StabilityScore rates a supplier 0-100 over the trailing 12 months ending
// at its latest shipment: up to 50 points for months with activity, up to 50
// for low variance of monthly shipment counts (scaled by the inverse of the
// coefficient of variation).
func StabilityScore(facts []*domain.LedgerFact) int {
	if len(facts) == 0 {
		return 0
	}

	latest := facts[0].ShipmentDate
	for _, f := range facts[1:] {
		if f.ShipmentDate.After(latest) {
			latest = f.ShipmentDate
		}
	}
	end := time.Date(latest.Year(), latest.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -11, 0)

	counts := make([]float64, 12)
	for _, f := range facts {
		m := time.Date(f.ShipmentDate.Year(), f.ShipmentDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		if m.Before(start) || m.After(end) {
			continue
		}
		idx := (m.Year()-start.Year())*12 + int(m.Month()) - int(start.Month())
		counts[idx]++
	}

	active := 0
	for _, c := range counts {
		if c > 0 {
			active++
		}
	}
	monthsHalf := float64(active) / 12 * 50

	mean := computeMean(counts)
	varianceHalf := 0.0
	if mean > 0 {
		cv := computeStddev(counts, mean) / mean
		varianceHalf = 50 / (1 + cv)
	}

	score := int(math.Round(monthsHalf + varianceHalf))
	if score > 100 {
		score = 100
	}
	return score
}

// yoyGrowth compares the latest year's value against the year before it.
// Returns nil without a positive prior-year base.
func yoyGrowth(valueByYear map[int]float64) *float64 {
	if len(valueByYear) == 0 {
		return nil
	}
	latest := 0
	for year := range valueByYear {
		if year > latest {
			latest = year
		}
	}
	prior, ok := valueByYear[latest-1]
	if !ok || prior <= 0 {
		return nil
	}
	growth := (valueByYear[latest] - prior) / prior
	return &growth
}

// factValueUSD is the profile value basis: customs value preferred, FOB then
// CIF otherwise, zero when no USD value survived conversion.
func factValueUSD(f *domain.LedgerFact) float64 {
	switch {
	case f.CustomsValueUSD != nil:
		return *f.CustomsValueUSD
	case f.ValueFOBUSD != nil:
		return *f.ValueFOBUSD
	case f.ValueCIFUSD != nil:
		return *f.ValueCIFUSD
	default:
		return 0
	}
}

// ranker accumulates per-key counts and values and produces top-N slices.
type ranker struct {
	counts map[string]int64
	values map[string]float64
}

func newRanker() *ranker {
	return &ranker{counts: make(map[string]int64), values: make(map[string]float64)}
}

func (r *ranker) add(key string, valueUSD float64) {
	r.counts[key]++
	r.values[key] += valueUSD
}

func (r *ranker) size() int { return len(r.counts) }

// top returns the n highest keys by value, count then key breaking ties.
func (r *ranker) top(n int) []domain.RankedItem {
	items := make([]domain.RankedItem, 0, len(r.counts))
	for key, count := range r.counts {
		items = append(items, domain.RankedItem{Key: key, Count: count, ValueUSD: r.values[key]})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ValueUSD != items[j].ValueUSD {
			return items[i].ValueUSD > items[j].ValueUSD
		}
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}
