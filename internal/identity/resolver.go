package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/standardize"
	"tradeledger/internal/storage"
)

// DefaultFuzzyThreshold is the minimum trigram similarity for pass-2 matches.
const DefaultFuzzyThreshold = 0.8

// Resolver implements stage S3: resolve buyer/supplier names to stable
// organization UUIDs and write them back onto standardized rows.
type Resolver struct {
	stds      storage.StandardizedRowStore
	orgs      storage.OrganizationStore
	threshold float64
	batchSize int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// ResolverOptions contains configuration for creating a Resolver.
type ResolverOptions struct {
	StandardizedRowStore storage.StandardizedRowStore
	OrganizationStore    storage.OrganizationStore
	FuzzyThreshold       float64 // default 0.8
	BatchSize            int     // writeback page size, default 2000
	Logger               *log.Logger
	Metrics              *observability.Metrics
}

// NewResolver creates a new Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	threshold := opts.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 2000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		stds:      opts.StandardizedRowStore,
		orgs:      opts.OrganizationStore,
		threshold: threshold,
		batchSize: batchSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Result aggregates one resolution batch.
type Result struct {
	Candidates   int
	ExactMatches int
	FuzzyMatches int
	Created      int
	Dropped      int // empty after normalization
	RowsUpdated  int
}

// resKey identifies one resolved candidate tuple.
type resKey struct {
	role    domain.OrgType
	rawName string
	country string
}

// ResolveFiles resolves all unresolved names across the given files and
// writes UUIDs back. The resolution map is built once per batch; writeback
// pages through each file's unresolved rows.
func (r *Resolver) ResolveFiles(ctx context.Context, fileIDs []int64) (*Result, error) {
	result := &Result{}

	candidates, err := r.stds.DistinctUnresolved(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("extract candidates: %w", err)
	}
	result.Candidates = len(candidates)

	resolved, err := r.resolve(ctx, candidates, result)
	if err != nil {
		return nil, err
	}

	for _, fileID := range fileIDs {
		if err := r.writeBack(ctx, fileID, resolved, result); err != nil {
			return result, fmt.Errorf("write back file %d: %w", fileID, err)
		}
	}

	r.logger.Printf("[identity] resolved candidates=%d exact=%d fuzzy=%d created=%d dropped=%d rows=%d",
		result.Candidates, result.ExactMatches, result.FuzzyMatches, result.Created, result.Dropped, result.RowsUpdated)
	return result, nil
}

// resolve runs the two matching passes plus insertion and returns the tuple
// to UUID map.
func (r *Resolver) resolve(ctx context.Context, candidates []storage.NameCandidate, result *Result) (map[resKey]string, error) {
	resolved := make(map[resKey]string, len(candidates))

	// Normalize once; drop candidates whose name collapses to nothing.
	type pending struct {
		cand       storage.NameCandidate
		normalized string
	}
	var open []pending
	keys := make([]storage.NameKey, 0, len(candidates))
	for _, c := range candidates {
		normalized := NormalizeName(c.RawName)
		if normalized == "" {
			result.Dropped++
			if r.metrics != nil {
				r.metrics.UnresolvedDropped.Inc()
			}
			continue
		}
		open = append(open, pending{cand: c, normalized: normalized})
		keys = append(keys, storage.NameKey{NormalizedName: normalized, Country: c.Country})
	}

	// Pass 1: exact natural-key match in one round-trip.
	exact, err := r.orgs.GetExact(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("exact match pass: %w", err)
	}

	var fuzzyOpen []pending
	for _, p := range open {
		key := storage.NameKey{NormalizedName: p.normalized, Country: p.cand.Country}
		if org, ok := exact[key]; ok {
			resolved[candKey(p.cand)] = org.UUID
			result.ExactMatches++
			if r.metrics != nil {
				r.metrics.ExactMatches.Inc()
			}
			r.observe(ctx, org, p.cand)
			continue
		}
		fuzzyOpen = append(fuzzyOpen, p)
	}

	// Pass 2: per-country trigram similarity; a miss is not fatal, the
	// candidate just becomes a new organization.
	for _, p := range fuzzyOpen {
		org, _, err := r.orgs.FindSimilar(ctx, p.cand.Country, p.normalized, r.threshold)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("fuzzy match pass: %w", err)
			}
			org, created, err := r.insert(ctx, p.normalized, p.cand)
			if err != nil {
				return nil, err
			}
			if created {
				result.Created++
				if r.metrics != nil {
					r.metrics.OrgsCreated.Inc()
				}
			} else {
				// Lost the insert race; the winner's row is authoritative.
				r.observe(ctx, org, p.cand)
			}
			resolved[candKey(p.cand)] = org.UUID
			continue
		}
		resolved[candKey(p.cand)] = org.UUID
		result.FuzzyMatches++
		if r.metrics != nil {
			r.metrics.FuzzyMatches.Inc()
		}
		r.observe(ctx, org, p.cand)
	}

	return resolved, nil
}

// insert creates a new organization for an unmatched candidate, falling back
// to the concurrent winner on natural-key conflict.
func (r *Resolver) insert(ctx context.Context, normalized string, c storage.NameCandidate) (*domain.Organization, bool, error) {
	now := time.Now().UTC()
	org := &domain.Organization{
		UUID:            uuid.NewString(),
		NormalizedName:  normalized,
		Country:         c.Country,
		Type:            c.Role,
		RawNameVariants: []string{c.RawName},
		FirstSeen:       &now,
		LastSeen:        &now,
		TransactionCount: 1,
	}
	existing, created, err := r.orgs.InsertOrGet(ctx, org)
	if err != nil {
		return nil, false, fmt.Errorf("insert organization: %w", err)
	}
	return existing, created, nil
}

// observe records a sighting: variant history, first/last seen, and the
// BUYER/SUPPLIER to MIXED promotion.
func (r *Resolver) observe(ctx context.Context, org *domain.Organization, c storage.NameCandidate) {
	if r.metrics != nil && org.Type != domain.OrgTypeMixed && org.Type != c.Role {
		r.metrics.TypePromotions.Inc()
	}
	if err := r.orgs.RecordObservation(ctx, org.UUID, c.Role, c.RawName, time.Now().UTC()); err != nil {
		r.logger.Printf("[identity] record observation failed uuid=%s err=%v", org.UUID, err)
	}
}

// writeBack pages through a file's unresolved rows and applies the batch's
// resolution map, refreshing the hidden-buyer flag as it goes.
func (r *Resolver) writeBack(ctx context.Context, fileID int64, resolved map[resKey]string, result *Result) error {
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := r.stds.ListUnresolvedByFile(ctx, fileID, afterID, r.batchSize)
		if err != nil {
			return fmt.Errorf("list unresolved rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		afterID = rows[len(rows)-1].ID

		assignments := make([]storage.UUIDAssignment, 0, len(rows))
		for _, row := range rows {
			a := storage.UUIDAssignment{StdID: row.ID}
			changed := false

			if row.BuyerUUID == nil && row.BuyerRawName != nil && *row.BuyerRawName != "" {
				key := resKey{domain.OrgTypeBuyer, *row.BuyerRawName, roleCountry(row, domain.OrgTypeBuyer)}
				if id, ok := resolved[key]; ok {
					idCopy := id
					a.BuyerUUID = &idCopy
					changed = true
				}
				hidden := standardize.IsHiddenBuyer(*row.BuyerRawName)
				if hidden != row.HiddenBuyer {
					a.HiddenBuyer = &hidden
					changed = true
				}
			}
			if row.SupplierUUID == nil && row.SupplierRawName != nil && *row.SupplierRawName != "" {
				key := resKey{domain.OrgTypeSupplier, *row.SupplierRawName, roleCountry(row, domain.OrgTypeSupplier)}
				if id, ok := resolved[key]; ok {
					idCopy := id
					a.SupplierUUID = &idCopy
					changed = true
				}
			}
			if changed {
				assignments = append(assignments, a)
			}
		}

		if err := r.stds.AssignUUIDs(ctx, assignments); err != nil {
			return fmt.Errorf("assign uuids: %w", err)
		}
		result.RowsUpdated += len(assignments)
	}
}

// roleCountry is the candidate-extraction country rule: buyers belong to the
// destination country on imports and the reporting country otherwise;
// suppliers symmetric.
func roleCountry(row *domain.StandardizedRow, role domain.OrgType) string {
	switch role {
	case domain.OrgTypeBuyer:
		if row.Direction == domain.DirectionImport && row.DestinationCountry != nil {
			return *row.DestinationCountry
		}
	case domain.OrgTypeSupplier:
		if row.Direction == domain.DirectionExport && row.OriginCountry != nil {
			return *row.OriginCountry
		}
	}
	return row.ReportingCountry
}

func candKey(c storage.NameCandidate) resKey {
	return resKey{c.Role, c.RawName, c.Country}
}
