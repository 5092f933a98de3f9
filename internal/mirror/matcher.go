// Package mirror implements stage S5: recovering hidden buyers on export
// facts from the importing country's mirror declarations.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// Acceptance thresholds. A candidate wins only when it clears MinScore AND
// beats the runner-up by more than AmbiguityGap.
const (
	DefaultMinScore = 70
	AmbiguityGap    = 5
)

// Matcher implements the mirror matching pass.
type Matcher struct {
	facts     storage.LedgerStore
	matches   storage.MirrorMatchStore
	params    storage.MirrorParams
	batchSize int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// MatcherOptions contains configuration for creating a Matcher.
type MatcherOptions struct {
	LedgerStore      storage.LedgerStore
	MirrorMatchStore storage.MirrorMatchStore
	Params           storage.MirrorParams // zero fields get defaults
	BatchSize        int                  // exports per pass, default 1000
	Logger           *log.Logger
	Metrics          *observability.Metrics
}

// NewMatcher creates a new Matcher.
func NewMatcher(opts MatcherOptions) *Matcher {
	params := opts.Params
	if params.MinLagDays == 0 {
		params.MinLagDays = 15
	}
	if params.MaxLagDays == 0 {
		params.MaxLagDays = 45
	}
	if params.QtyTolerance == 0 {
		params.QtyTolerance = 0.05
	}
	if params.MinScore == 0 {
		params.MinScore = DefaultMinScore
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Matcher{
		facts:     opts.LedgerStore,
		matches:   opts.MirrorMatchStore,
		params:    params,
		batchSize: batchSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Result aggregates one matching pass.
type Result struct {
	Exports      int
	Matched      int
	NoCandidates int
	LowScore     int
	Ambiguous    int
}

// Run matches hidden exports until the backlog is drained or ctx is done.
// Matched exports leave the ListHiddenExports predicate via their
// mirror_matched_at stamp; unmatched ones stay, so the loop tracks what it
// has already judged and stops once a batch brings nothing new.
func (m *Matcher) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exports, err := m.facts.ListHiddenExports(ctx, m.batchSize)
		if err != nil {
			return result, fmt.Errorf("list hidden exports: %w", err)
		}

		fresh := 0
		for _, export := range exports {
			if _, done := seen[export.TransactionID]; done {
				continue
			}
			seen[export.TransactionID] = struct{}{}
			fresh++

			outcome, err := m.MatchExport(ctx, export)
			if err != nil {
				return result, err
			}
			result.Exports++
			switch outcome {
			case OutcomeMatched:
				result.Matched++
			case OutcomeNoCandidates:
				result.NoCandidates++
			case OutcomeLowScore:
				result.LowScore++
			case OutcomeAmbiguous:
				result.Ambiguous++
			}
		}
		if fresh == 0 || len(exports) < m.batchSize {
			break
		}
	}

	m.logger.Printf("[mirror] done exports=%d matched=%d no_candidates=%d low_score=%d ambiguous=%d",
		result.Exports, result.Matched, result.NoCandidates, result.LowScore, result.Ambiguous)
	return result, nil
}

// Outcome classifies one export's matching attempt.
type Outcome int

const (
	OutcomeMatched Outcome = iota
	OutcomeNoCandidates
	OutcomeLowScore
	OutcomeAmbiguous
	OutcomeAlreadyMatched
)

// MatchExport scores one export's candidates and, on acceptance, records the
// match and stamps the export.
func (m *Matcher) MatchExport(ctx context.Context, export *domain.LedgerFact) (Outcome, error) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.MirrorDuration.Observe(time.Since(start).Seconds())
		}
	}()

	candidates, err := m.facts.FindMirrorCandidates(ctx, export, m.params)
	if err != nil {
		return OutcomeNoCandidates, fmt.Errorf("find candidates for %s: %w", export.TransactionID, err)
	}
	if len(candidates) == 0 {
		m.skip("no_candidates")
		return OutcomeNoCandidates, nil
	}

	best, bestCriteria, second := rank(export, candidates, m.params)
	bestScore := bestCriteria.Total()
	if bestScore < m.params.MinScore {
		m.skip("low_score")
		return OutcomeLowScore, nil
	}
	if bestScore-second <= AmbiguityGap {
		m.skip("ambiguous")
		return OutcomeAmbiguous, nil
	}

	if best.BuyerUUID == nil {
		return OutcomeNoCandidates, fmt.Errorf("candidate %s has no buyer uuid", best.TransactionID)
	}

	match := &domain.MirrorMatch{
		ExportID: export.TransactionID,
		ImportID: best.TransactionID,
		Score:    bestScore,
		Criteria: bestCriteria,
	}
	if err := m.matches.Insert(ctx, match); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// A previous run already decided this export.
			return OutcomeAlreadyMatched, nil
		}
		return OutcomeNoCandidates, fmt.Errorf("insert match for %s: %w", export.TransactionID, err)
	}

	if err := m.facts.SetMirrorBuyer(ctx, export.TransactionID, export.Year, *best.BuyerUUID, time.Now().UTC()); err != nil {
		return OutcomeNoCandidates, fmt.Errorf("set mirror buyer on %s: %w", export.TransactionID, err)
	}

	if m.metrics != nil {
		m.metrics.MirrorMatched.Inc()
	}
	return OutcomeMatched, nil
}

func (m *Matcher) skip(reason string) {
	if m.metrics != nil {
		m.metrics.MirrorSkipped.WithLabelValues(reason).Inc()
	}
}

// rank scores every candidate and returns the winner, its breakdown, and the
// runner-up total (0 with a single candidate).
func rank(export *domain.LedgerFact, candidates []*domain.LedgerFact, p storage.MirrorParams) (*domain.LedgerFact, domain.MirrorCriteria, int) {
	var (
		best         *domain.LedgerFact
		bestCriteria domain.MirrorCriteria
		bestScore    = -1
		second       = 0
	)
	for _, cand := range candidates {
		criteria := Score(export, cand, p)
		total := criteria.Total()
		if total > bestScore {
			second = bestScore
			best, bestCriteria, bestScore = cand, criteria, total
		} else if total > second {
			second = total
		}
	}
	if second < 0 {
		second = 0
	}
	return best, bestCriteria, second
}

// Score computes the criterion breakdown for one candidate. The store's
// candidate predicate already guarantees the HS6 and date window criteria;
// quantity is awarded only when both sides carry a weight and the candidate
// sits inside the tolerance band.
func Score(export, cand *domain.LedgerFact, p storage.MirrorParams) domain.MirrorCriteria {
	criteria := domain.MirrorCriteria{
		HS6:  domain.MirrorWeightHS6,
		Date: domain.MirrorWeightDate,
	}
	if export.QtyKG != nil && cand.QtyKG != nil && qtyWithin(*export.QtyKG, *cand.QtyKG, p.QtyTolerance) {
		criteria.Qty = domain.MirrorWeightQty
	}
	if export.ContainerID != nil && cand.ContainerID != nil && *export.ContainerID == *cand.ContainerID {
		criteria.Container = domain.MirrorWeightContainer
	}
	if export.Vessel != nil && cand.Vessel != nil && *export.Vessel == *cand.Vessel {
		criteria.Vessel = domain.MirrorWeightVessel
	}
	return criteria
}

func qtyWithin(exportKG, candKG, tolerance float64) bool {
	if exportKG <= 0 {
		return false
	}
	return math.Abs(candKG-exportKG) <= tolerance*exportKG
}
