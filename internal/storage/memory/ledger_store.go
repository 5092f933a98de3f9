package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu    sync.RWMutex
	data  map[factKey]*domain.LedgerFact
	byStd map[stdKey]factKey
}

type factKey struct {
	transactionID string
	year          int
}

type stdKey struct {
	stdID int64
	year  int
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data:  make(map[factKey]*domain.LedgerFact),
		byStd: make(map[stdKey]factKey),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// InsertBulk promotes standardized rows to facts. At-most-once per
// (std_id, year); returns the number of facts actually created.
func (s *LedgerStore) InsertBulk(_ context.Context, facts []*domain.LedgerFact) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	created := 0
	for _, f := range facts {
		if f == nil || f.TransactionID == "" || f.StdID == 0 {
			return 0, storage.ErrInvalidInput
		}
		sk := stdKey{f.StdID, f.Year}
		if _, exists := s.byStd[sk]; exists {
			continue
		}
		fk := factKey{f.TransactionID, f.Year}
		if _, exists := s.data[fk]; exists {
			continue
		}
		factCopy := *f
		factCopy.CreatedAt = now
		s.data[fk] = &factCopy
		s.byStd[sk] = fk
		created++
	}
	return created, nil
}

// GetByID retrieves one fact. Returns ErrNotFound if absent.
func (s *LedgerStore) GetByID(_ context.Context, transactionID string, year int) (*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.data[factKey{transactionID, year}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	factCopy := *f
	return &factCopy, nil
}

func sortFactsByTxn(facts []*domain.LedgerFact) {
	sort.Slice(facts, func(i, j int) bool {
		return facts[i].TransactionID < facts[j].TransactionID
	})
}

// ListHiddenExports returns exports still awaiting a mirror verdict.
func (s *LedgerStore) ListHiddenExports(_ context.Context, limit int) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.Direction == domain.DirectionExport && f.HiddenBuyer &&
			f.BuyerUUID == nil && f.MirrorMatchedAt == nil {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}

	sortFactsByTxn(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// FindMirrorCandidates returns import facts satisfying the mirror candidate
// predicate for the given export.
func (s *LedgerStore) FindMirrorCandidates(_ context.Context, export *domain.LedgerFact, p storage.MirrorParams) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	windowStart := export.ShipmentDate.AddDate(0, 0, p.MinLagDays)
	windowEnd := export.ShipmentDate.AddDate(0, 0, p.MaxLagDays)

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.Direction != domain.DirectionImport {
			continue
		}
		if f.ReportingCountry != export.DestinationCountry ||
			f.OriginCountry != export.OriginCountry ||
			f.HSCode6 != export.HSCode6 {
			continue
		}
		if f.ShipmentDate.Before(windowStart) || f.ShipmentDate.After(windowEnd) {
			continue
		}
		if f.BuyerUUID == nil {
			continue
		}
		if export.QtyKG != nil {
			if f.QtyKG == nil {
				continue
			}
			lo := *export.QtyKG * (1 - p.QtyTolerance)
			hi := *export.QtyKG * (1 + p.QtyTolerance)
			if *f.QtyKG < lo || *f.QtyKG > hi {
				continue
			}
		}
		factCopy := *f
		result = append(result, &factCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ShipmentDate.Equal(result[j].ShipmentDate) {
			return result[i].ShipmentDate.Before(result[j].ShipmentDate)
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

// SetMirrorBuyer fills buyer_uuid and mirror_matched_at on an export fact.
func (s *LedgerStore) SetMirrorBuyer(_ context.Context, transactionID string, year int, buyerUUID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[factKey{transactionID, year}]
	if !exists {
		return storage.ErrNotFound
	}
	uuidCopy := buyerUUID
	atCopy := at
	f.BuyerUUID = &uuidCopy
	f.MirrorMatchedAt = &atCopy
	return nil
}

// ListCreatedSince pages facts for incremental analytics.
func (s *LedgerStore) ListCreatedSince(_ context.Context, since time.Time, afterID string, limit int) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if !f.CreatedAt.Before(since) && f.TransactionID > afterID {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}

	sortFactsByTxn(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByBuyer returns all facts for a buyer into a destination country.
func (s *LedgerStore) ListByBuyer(_ context.Context, buyerUUID, destinationCountry string) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.BuyerUUID != nil && *f.BuyerUUID == buyerUUID && f.DestinationCountry == destinationCountry {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}
	sortFactsByDate(result)
	return result, nil
}

// ListBySupplier returns all facts for a supplier out of an origin country.
func (s *LedgerStore) ListBySupplier(_ context.Context, supplierUUID, originCountry string) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.SupplierUUID != nil && *f.SupplierUUID == supplierUUID && f.OriginCountry == originCountry {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}
	sortFactsByDate(result)
	return result, nil
}

func sortFactsByDate(facts []*domain.LedgerFact) {
	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].ShipmentDate.Equal(facts[j].ShipmentDate) {
			return facts[i].ShipmentDate.Before(facts[j].ShipmentDate)
		}
		return facts[i].TransactionID < facts[j].TransactionID
	})
}

// ListByCorridor returns facts in one corridor bucket.
func (s *LedgerStore) ListByCorridor(_ context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.HSCode6 == hs6 && f.DestinationCountry == destinationCountry &&
			f.Year == year && f.Month == month &&
			f.Direction == direction && f.ReportingCountry == reportingCountry {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}
	sortFactsByTxn(result)
	return result, nil
}

// ListByLane returns facts on one (origin, destination, hs6) lane.
func (s *LedgerStore) ListByLane(_ context.Context, origin, destination, hs6 string) ([]*domain.LedgerFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerFact
	for _, f := range s.data {
		if f.OriginCountry == origin && f.DestinationCountry == destination && f.HSCode6 == hs6 {
			factCopy := *f
			result = append(result, &factCopy)
		}
	}
	sortFactsByTxn(result)
	return result, nil
}

// CountByHS6 returns the global fact count for an HS6 code.
func (s *LedgerStore) CountByHS6(_ context.Context, hs6 string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, f := range s.data {
		if f.HSCode6 == hs6 {
			count++
		}
	}
	return count, nil
}
