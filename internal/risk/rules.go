package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// Rule thresholds.
const (
	invoiceZThreshold  = 2.0
	invoiceZHigh       = 3.0
	invoiceZCritical   = 5.0
	weirdLaneMaxCount  = 3
	weirdLaneGlobalMin = 50
	ghostValueFloorUSD = 500_000
	ghostValueCapUSD   = 5_000_000
	spikeZThreshold    = 2.0
	spikeMoMThreshold  = 2.0 // +200%
	freeEmailMinVolume = 10
)

// shipmentReasons evaluates the shipment-scope rules for one fact.
func (e *Engine) shipmentReasons(ctx context.Context, f *domain.LedgerFact) ([]fired, error) {
	var reasons []fired

	if r, ok, err := e.invoiceRule(ctx, f); err != nil {
		return nil, err
	} else if ok {
		reasons = append(reasons, r)
	}

	if r, ok, err := e.weirdLaneRule(ctx, f); err != nil {
		return nil, err
	} else if ok {
		reasons = append(reasons, r)
	}

	return reasons, nil
}

// invoiceRule compares the shipment price against its month-level corridor.
// z is measured from the corridor median in standard deviations; the rule
// fires both directions.
func (e *Engine) invoiceRule(ctx context.Context, f *domain.LedgerFact) (fired, bool, error) {
	if f.PriceUSDPerKG == nil || *f.PriceUSDPerKG <= 0 {
		return fired{}, false, nil
	}

	corridor, err := e.corridors.Get(ctx, f.HSCode6, f.DestinationCountry, f.Year, f.Month, f.Direction, f.ReportingCountry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fired{}, false, nil
		}
		return fired{}, false, fmt.Errorf("get corridor: %w", err)
	}
	if corridor.StdDev <= 0 {
		return fired{}, false, nil
	}

	z := (*f.PriceUSDPerKG - corridor.Median) / corridor.StdDev
	if math.Abs(z) < invoiceZThreshold {
		return fired{}, false, nil
	}

	code := domain.ReasonUnderInvoice
	if z > 0 {
		code = domain.ReasonOverInvoice
	}
	score := 50 + int(math.Min(40, 10*math.Abs(z)))
	severity := domain.SeverityMedium
	switch {
	case math.Abs(z) >= invoiceZCritical:
		severity = domain.SeverityCritical
	case math.Abs(z) >= invoiceZHigh:
		severity = domain.SeverityHigh
	}

	return fired{
		reason: domain.RiskReason{
			Code:     code,
			Score:    score,
			Severity: severity,
			Context: map[string]any{
				"z_score":         round2(z),
				"price_usd_kg":    round2(*f.PriceUSDPerKG),
				"corridor_median": round2(corridor.Median),
				"corridor_stddev": round2(corridor.StdDev),
				"sample_size":     corridor.SampleSize,
			},
		},
		confidence: math.Min(1, float64(corridor.SampleSize)/100),
	}, true, nil
}

// weirdLaneRule flags a near-empty lane for a product that moves in volume
// globally. Score runs 40-60, the emptier the lane the higher.
func (e *Engine) weirdLaneRule(ctx context.Context, f *domain.LedgerFact) (fired, bool, error) {
	laneFacts, err := e.facts.ListByLane(ctx, f.OriginCountry, f.DestinationCountry, f.HSCode6)
	if err != nil {
		return fired{}, false, fmt.Errorf("list lane: %w", err)
	}
	laneCount := len(laneFacts)
	if laneCount > weirdLaneMaxCount {
		return fired{}, false, nil
	}

	global, err := e.facts.CountByHS6(ctx, f.HSCode6)
	if err != nil {
		return fired{}, false, fmt.Errorf("count hs6: %w", err)
	}
	if global < weirdLaneGlobalMin {
		return fired{}, false, nil
	}

	score := 40 + (weirdLaneMaxCount-laneCount)*10
	if score > 60 {
		score = 60
	}

	return fired{
		reason: domain.RiskReason{
			Code:     domain.ReasonWeirdLane,
			Score:    score,
			Severity: domain.SeverityMedium,
			Context: map[string]any{
				"lane_shipments":   laneCount,
				"global_shipments": global,
				"lane":             f.OriginCountry + "->" + f.DestinationCountry,
			},
		},
		confidence: 0.7,
	}, true, nil
}
