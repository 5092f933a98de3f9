package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// StandardizedRowStore is an in-memory implementation of
// storage.StandardizedRowStore.
type StandardizedRowStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.StandardizedRow
	byRaw  map[int64]int64 // raw_id -> id
}

// NewStandardizedRowStore creates a new in-memory standardized row store.
func NewStandardizedRowStore() *StandardizedRowStore {
	return &StandardizedRowStore{
		nextID: 1,
		data:   make(map[int64]*domain.StandardizedRow),
		byRaw:  make(map[int64]int64),
	}
}

// Compile-time interface check.
var _ storage.StandardizedRowStore = (*StandardizedRowStore)(nil)

// BulkInsert inserts a block, skipping rows whose raw_id is already
// standardized. Returns the number actually inserted.
func (s *StandardizedRowStore) BulkInsert(_ context.Context, rows []*domain.StandardizedRow) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	inserted := 0
	for _, r := range rows {
		if r == nil || r.RawID == 0 {
			return 0, storage.ErrInvalidInput
		}
		if _, exists := s.byRaw[r.RawID]; exists {
			continue
		}
		rowCopy := *r
		rowCopy.ID = s.nextID
		rowCopy.CreatedAt = now
		s.nextID++
		s.data[rowCopy.ID] = &rowCopy
		s.byRaw[rowCopy.RawID] = rowCopy.ID
		r.ID = rowCopy.ID
		inserted++
	}
	return inserted, nil
}

// CountByFile returns the number of standardized rows for a file.
func (s *StandardizedRowStore) CountByFile(_ context.Context, fileID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.data {
		if r.FileID == fileID {
			count++
		}
	}
	return count, nil
}

// ListByFile returns rows with id > afterID for a file, ordered by id.
func (s *StandardizedRowStore) ListByFile(_ context.Context, fileID, afterID int64, limit int) ([]*domain.StandardizedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StandardizedRow
	for _, r := range s.data {
		if r.FileID == fileID && r.ID > afterID {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// assignedCountry mirrors the role-country rule of the SQL implementation:
// buyers live in the destination country on imports and the reporting country
// on exports; suppliers symmetric.
func assignedCountry(r *domain.StandardizedRow, role domain.OrgType) string {
	switch role {
	case domain.OrgTypeBuyer:
		if r.Direction == domain.DirectionImport && r.DestinationCountry != nil {
			return *r.DestinationCountry
		}
	case domain.OrgTypeSupplier:
		if r.Direction == domain.DirectionExport && r.OriginCountry != nil {
			return *r.OriginCountry
		}
	}
	return r.ReportingCountry
}

// DistinctUnresolved returns distinct (role, raw_name, assigned country)
// tuples still lacking a UUID.
func (s *StandardizedRowStore) DistinctUnresolved(_ context.Context, fileIDs []int64) ([]storage.NameCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fileSet := make(map[int64]struct{}, len(fileIDs))
	for _, id := range fileIDs {
		fileSet[id] = struct{}{}
	}

	seen := make(map[storage.NameCandidate]struct{})
	for _, r := range s.data {
		if _, ok := fileSet[r.FileID]; !ok {
			continue
		}
		if r.BuyerUUID == nil && r.BuyerRawName != nil && *r.BuyerRawName != "" {
			seen[storage.NameCandidate{
				Role:    domain.OrgTypeBuyer,
				RawName: *r.BuyerRawName,
				Country: assignedCountry(r, domain.OrgTypeBuyer),
			}] = struct{}{}
		}
		if r.SupplierUUID == nil && r.SupplierRawName != nil && *r.SupplierRawName != "" {
			seen[storage.NameCandidate{
				Role:    domain.OrgTypeSupplier,
				RawName: *r.SupplierRawName,
				Country: assignedCountry(r, domain.OrgTypeSupplier),
			}] = struct{}{}
		}
	}

	result := make([]storage.NameCandidate, 0, len(seen))
	for c := range seen {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		if a.RawName != b.RawName {
			return a.RawName < b.RawName
		}
		return a.Country < b.Country
	})
	return result, nil
}

// ListUnresolvedByFile returns rows of a file with any NULL UUID where the
// corresponding raw name is present.
func (s *StandardizedRowStore) ListUnresolvedByFile(_ context.Context, fileID, afterID int64, limit int) ([]*domain.StandardizedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StandardizedRow
	for _, r := range s.data {
		if r.FileID != fileID || r.ID <= afterID {
			continue
		}
		buyerOpen := r.BuyerUUID == nil && r.BuyerRawName != nil && *r.BuyerRawName != ""
		supplierOpen := r.SupplierUUID == nil && r.SupplierRawName != nil && *r.SupplierRawName != ""
		if buyerOpen || supplierOpen {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AssignUUIDs applies resolved UUIDs in one batch.
func (s *StandardizedRowStore) AssignUUIDs(_ context.Context, assignments []storage.UUIDAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range assignments {
		r, exists := s.data[a.StdID]
		if !exists {
			continue
		}
		if a.BuyerUUID != nil {
			v := *a.BuyerUUID
			r.BuyerUUID = &v
		}
		if a.SupplierUUID != nil {
			v := *a.SupplierUUID
			r.SupplierUUID = &v
		}
		if a.HiddenBuyer != nil {
			r.HiddenBuyer = *a.HiddenBuyer
		}
	}
	return nil
}
