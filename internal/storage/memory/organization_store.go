package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
	"tradeledger/internal/trigram"
)

// OrganizationStore is an in-memory implementation of
// storage.OrganizationStore. Fuzzy matching uses the same trigram formula as
// pg_trgm, so resolver behavior matches the SQL implementation.
type OrganizationStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Organization // keyed by uuid
	byKey map[storage.NameKey]string      // natural key -> uuid
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		data:  make(map[string]*domain.Organization),
		byKey: make(map[storage.NameKey]string),
	}
}

// Compile-time interface check.
var _ storage.OrganizationStore = (*OrganizationStore)(nil)

func copyOrg(o *domain.Organization) *domain.Organization {
	orgCopy := *o
	orgCopy.RawNameVariants = append([]string(nil), o.RawNameVariants...)
	orgCopy.ContactEmails = append([]string(nil), o.ContactEmails...)
	return &orgCopy
}

// GetByUUID retrieves an organization. Returns ErrNotFound if absent.
func (s *OrganizationStore) GetByUUID(_ context.Context, id string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOrg(org), nil
}

// GetExact bulk-fetches organizations by natural key.
func (s *OrganizationStore) GetExact(_ context.Context, keys []storage.NameKey) (map[storage.NameKey]*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[storage.NameKey]*domain.Organization, len(keys))
	for _, k := range keys {
		if id, ok := s.byKey[k]; ok {
			result[k] = copyOrg(s.data[id])
		}
	}
	return result, nil
}

// FindSimilar returns the best trigram match within a country at or above
// threshold. Ties break by lexicographic UUID.
func (s *OrganizationStore) FindSimilar(_ context.Context, country, normalizedName string, threshold float64) (*domain.Organization, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Organization
	var bestSim float64
	for _, org := range s.data {
		if org.Country != country {
			continue
		}
		sim := trigram.Similarity(org.NormalizedName, normalizedName)
		if sim < threshold {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && org.UUID < best.UUID) {
			best = org
			bestSim = sim
		}
	}
	if best == nil {
		return nil, 0, storage.ErrNotFound
	}
	return copyOrg(best), bestSim, nil
}

// InsertOrGet inserts the organization, or returns the existing row on
// natural-key conflict.
func (s *OrganizationStore) InsertOrGet(_ context.Context, org *domain.Organization) (*domain.Organization, bool, error) {
	if org == nil || org.UUID == "" || org.NormalizedName == "" {
		return nil, false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.NameKey{NormalizedName: org.NormalizedName, Country: org.Country}
	if id, exists := s.byKey[key]; exists {
		return copyOrg(s.data[id]), false, nil
	}

	now := time.Now().UTC()
	stored := copyOrg(org)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.data[stored.UUID] = stored
	s.byKey[key] = stored.UUID
	return copyOrg(stored), true, nil
}

// RecordObservation merges a raw-name variant, bumps counters, extends
// first/last seen and applies the role type merge.
func (s *OrganizationStore) RecordObservation(_ context.Context, id string, role domain.OrgType, rawName string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	if !org.HasVariant(rawName) {
		org.RawNameVariants = append(org.RawNameVariants, rawName)
	}
	org.Type = org.Type.Merge(role)
	if org.FirstSeen == nil || seen.Before(*org.FirstSeen) {
		seenCopy := seen
		org.FirstSeen = &seenCopy
	}
	if org.LastSeen == nil || seen.After(*org.LastSeen) {
		seenCopy := seen
		org.LastSeen = &seenCopy
	}
	org.TransactionCount++
	org.UpdatedAt = time.Now().UTC()
	return nil
}
