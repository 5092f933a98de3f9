package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// freeEmailDomains is the closed webmail list for the FREE_EMAIL rule.
var freeEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"aol.com":        {},
	"icloud.com":     {},
	"protonmail.com": {},
	"mail.ru":        {},
	"yandex.ru":      {},
	"qq.com":         {},
	"163.com":        {},
	"126.com":        {},
}

// buyerReasons evaluates the buyer-scope rules over one buyer's facts into a
// destination market.
func (e *Engine) buyerReasons(ctx context.Context, buyerUUID, destinationCountry string) ([]fired, error) {
	facts, err := e.facts.ListByBuyer(ctx, buyerUUID, destinationCountry)
	if err != nil {
		return nil, fmt.Errorf("list buyer facts: %w", err)
	}
	if len(facts) == 0 {
		return nil, nil
	}

	org, err := e.orgs.GetByUUID(ctx, buyerUUID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get organization: %w", err)
	}

	totalValue := 0.0
	for _, f := range facts {
		totalValue += factValueUSD(f)
	}

	var reasons []fired
	if r, ok := ghostEntityRule(org, totalValue); ok {
		reasons = append(reasons, r)
	}
	if r, ok := volumeSpikeRule(facts); ok {
		reasons = append(reasons, r)
	}
	if r, ok := freeEmailRule(org, int64(len(facts))); ok {
		reasons = append(reasons, r)
	}
	return reasons, nil
}

// ghostEntityRule flags a high-value buyer with no web presence signal.
// Score scales 45-70 with trade value between the floor and the cap.
func ghostEntityRule(org *domain.Organization, totalValueUSD float64) (fired, bool) {
	if totalValueUSD < ghostValueFloorUSD {
		return fired{}, false
	}
	if org != nil && org.Website != nil && *org.Website != "" {
		return fired{}, false
	}

	frac := (totalValueUSD - ghostValueFloorUSD) / (ghostValueCapUSD - ghostValueFloorUSD)
	if frac > 1 {
		frac = 1
	}
	score := 45 + int(math.Round(25*frac))

	return fired{
		reason: domain.RiskReason{
			Code:     domain.ReasonGhostEntity,
			Score:    score,
			Severity: domain.SeverityHigh,
			Context: map[string]any{
				"total_value_usd": round2(totalValueUSD),
			},
		},
		confidence: 0.6,
	}, true
}

// volumeSpikeRule fires when the latest active month is a statistical
// outlier (z > 2 against prior months) or jumped at least +200% over the
// month before. Score runs 30-70 with spike intensity.
func volumeSpikeRule(facts []*domain.LedgerFact) (fired, bool) {
	counts := monthlyCounts(facts)
	if len(counts) < 2 {
		return fired{}, false
	}

	latest := counts[len(counts)-1]
	prior := counts[:len(counts)-1]

	var z float64
	if len(prior) >= 3 {
		mean := meanOf(prior)
		std := stddevOf(prior, mean)
		if std > 0 {
			z = (latest - mean) / std
		}
	}

	var mom float64
	if prev := counts[len(counts)-2]; prev > 0 {
		mom = (latest - prev) / prev
	}

	if z <= spikeZThreshold && mom < spikeMoMThreshold {
		return fired{}, false
	}

	intensity := math.Max(z-spikeZThreshold, mom-spikeMoMThreshold)
	if intensity < 0 {
		intensity = 0
	}
	score := 30 + int(math.Min(40, math.Round(10*intensity)))

	return fired{
		reason: domain.RiskReason{
			Code:     domain.ReasonVolumeSpike,
			Score:    score,
			Severity: domain.SeverityMedium,
			Context: map[string]any{
				"z_score":        round2(z),
				"mom_change_pct": round2(mom * 100),
				"latest_month":   latest,
			},
		},
		confidence: 0.7,
	}, true
}

// freeEmailRule flags a high-volume buyer whose every observed contact email
// domain sits on the free-webmail list.
func freeEmailRule(org *domain.Organization, shipments int64) (fired, bool) {
	if org == nil || len(org.ContactEmails) == 0 || shipments < freeEmailMinVolume {
		return fired{}, false
	}

	domains := make([]string, 0, len(org.ContactEmails))
	for _, email := range org.ContactEmails {
		at := strings.LastIndex(email, "@")
		if at < 0 {
			continue
		}
		d := strings.ToLower(email[at+1:])
		if _, free := freeEmailDomains[d]; !free {
			return fired{}, false
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return fired{}, false
	}

	score := 30 + int(math.Min(10, float64(shipments)/10))

	return fired{
		reason: domain.RiskReason{
			Code:     domain.ReasonFreeEmail,
			Score:    score,
			Severity: domain.SeverityMedium,
			Context: map[string]any{
				"domains":   domains,
				"shipments": shipments,
			},
		},
		confidence: 0.5,
	}, true
}

// monthlyCounts buckets a buyer's facts per calendar month, zero-filling the
// gaps, ordered chronologically.
func monthlyCounts(facts []*domain.LedgerFact) []float64 {
	byMonth := make(map[time.Time]float64)
	for _, f := range facts {
		m := time.Date(f.ShipmentDate.Year(), f.ShipmentDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		byMonth[m]++
	}
	if len(byMonth) == 0 {
		return nil
	}

	months := make([]time.Time, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	var counts []float64
	for m := months[0]; !m.After(months[len(months)-1]); m = m.AddDate(0, 1, 0) {
		counts = append(counts, byMonth[m])
	}
	return counts
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// factValueUSD prefers customs value, then FOB, then CIF.
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

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
