// Package risk implements stage S7: rule-based risk opinions for shipments
// and buyers, written to a sidecar table that never touches facts.
package risk

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

// EngineVersion tags every opinion row; bumping it makes the next run write
// fresh rows while the trigger archives the old ones.
const EngineVersion = "1.0.0"

// JobName is the engine's watermark key.
const JobName = "risk_engine"

// ScopeGlobal is the scope of shipment opinions and of buyer opinions that
// aggregate over one destination market.
const ScopeGlobal = "GLOBAL"

// Engine evaluates all rules over the facts touched since the watermark.
type Engine struct {
	facts      storage.LedgerStore
	corridors  storage.PriceCorridorStore
	orgs       storage.OrganizationStore
	opinions   storage.RiskOpinionStore
	watermarks storage.WatermarkStore
	version    string
	lookback   time.Duration
	pageSize   int
	logger     *log.Logger
	metrics    *observability.Metrics
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	LedgerStore        storage.LedgerStore
	PriceCorridorStore storage.PriceCorridorStore
	OrganizationStore  storage.OrganizationStore
	RiskOpinionStore   storage.RiskOpinionStore
	WatermarkStore     storage.WatermarkStore
	Version            string        // default EngineVersion
	Lookback           time.Duration // default domain.DefaultLookback
	PageSize           int           // default 5000
	Logger             *log.Logger
	Metrics            *observability.Metrics
}

// NewEngine creates a new Engine.
func NewEngine(opts EngineOptions) *Engine {
	version := opts.Version
	if version == "" {
		version = EngineVersion
	}
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
	return &Engine{
		facts:      opts.LedgerStore,
		corridors:  opts.PriceCorridorStore,
		orgs:       opts.OrganizationStore,
		opinions:   opts.RiskOpinionStore,
		watermarks: opts.WatermarkStore,
		version:    version,
		lookback:   lookback,
		pageSize:   pageSize,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Result aggregates one engine run.
type Result struct {
	FactsScanned    int
	ShipmentWritten int
	BuyerWritten    int
}

// Run evaluates shipment rules per touched fact and buyer rules per touched
// buyer, upserting opinions and advancing the watermark on success.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	start := time.Now().UTC()

	since, err := e.since(ctx)
	if err != nil {
		return result, err
	}

	type buyerKey struct {
		uuid string
		dest string
	}
	buyers := make(map[buyerKey]struct{})

	var afterID string
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		facts, err := e.facts.ListCreatedSince(ctx, since, afterID, e.pageSize)
		if err != nil {
			return result, fmt.Errorf("list touched facts: %w", err)
		}
		if len(facts) == 0 {
			break
		}
		afterID = facts[len(facts)-1].TransactionID

		for _, f := range facts {
			result.FactsScanned++
			reasons, err := e.shipmentReasons(ctx, f)
			if err != nil {
				return result, err
			}
			if len(reasons) > 0 {
				op := e.compose(domain.EntityShipment, f.TransactionID, ScopeGlobal, reasons)
				if err := e.write(ctx, op); err != nil {
					return result, err
				}
				result.ShipmentWritten++
			}
			if f.BuyerUUID != nil {
				buyers[buyerKey{*f.BuyerUUID, f.DestinationCountry}] = struct{}{}
			}
		}
	}

	for key := range buyers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		reasons, err := e.buyerReasons(ctx, key.uuid, key.dest)
		if err != nil {
			return result, err
		}
		if len(reasons) == 0 {
			continue
		}
		op := e.compose(domain.EntityBuyer, key.uuid, "DEST:"+key.dest, reasons)
		if err := e.write(ctx, op); err != nil {
			return result, err
		}
		result.BuyerWritten++
	}

	if err := e.watermarks.Set(ctx, JobName, start); err != nil {
		return result, fmt.Errorf("advance watermark: %w", err)
	}

	e.logger.Printf("[risk] done scanned=%d shipment_opinions=%d buyer_opinions=%d since=%s",
		result.FactsScanned, result.ShipmentWritten, result.BuyerWritten, since.Format(time.RFC3339))
	return result, nil
}

func (e *Engine) since(ctx context.Context) (time.Time, error) {
	wm, err := e.watermarks.Get(ctx, JobName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get watermark: %w", err)
	}
	return wm.Watermark.Add(-e.lookback), nil
}

// compose folds fired reasons into one opinion: score is the maximum across
// rules, the main reason is the rule that carried it.
func (e *Engine) compose(entityType domain.EntityType, entityID, scopeKey string, reasons []fired) *domain.RiskOpinion {
	op := &domain.RiskOpinion{
		EntityType:    entityType,
		EntityID:      entityID,
		ScopeKey:      scopeKey,
		EngineVersion: e.version,
		ComputedAt:    time.Now().UTC(),
	}
	for _, r := range reasons {
		op.Reasons = append(op.Reasons, r.reason)
		if r.reason.Score > op.Score {
			op.Score = r.reason.Score
			op.MainReason = r.reason.Code
		}
		if r.confidence > op.Confidence {
			op.Confidence = r.confidence
		}
	}
	op.Level = domain.RiskLevelFor(op.Score)
	return op
}

func (e *Engine) write(ctx context.Context, op *domain.RiskOpinion) error {
	if err := e.opinions.Upsert(ctx, op); err != nil {
		return fmt.Errorf("upsert opinion %s/%s: %w", op.EntityType, op.EntityID, err)
	}
	if e.metrics != nil {
		e.metrics.OpinionsWritten.WithLabelValues(string(op.Level)).Inc()
	}
	return nil
}

// fired couples a reason with the rule's confidence in its own evidence.
type fired struct {
	reason     domain.RiskReason
	confidence float64
}
