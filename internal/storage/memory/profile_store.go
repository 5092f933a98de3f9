package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// BuyerProfileStore is an in-memory implementation of storage.BuyerProfileStore.
type BuyerProfileStore struct {
	mu   sync.RWMutex
	data map[profileKey]*domain.BuyerProfile
}

type profileKey struct {
	entityUUID string
	country    string
}

// NewBuyerProfileStore creates a new in-memory buyer profile store.
func NewBuyerProfileStore() *BuyerProfileStore {
	return &BuyerProfileStore{
		data: make(map[profileKey]*domain.BuyerProfile),
	}
}

// Compile-time interface check.
var _ storage.BuyerProfileStore = (*BuyerProfileStore)(nil)

// Upsert replaces the profile for (buyer_uuid, destination_country).
func (s *BuyerProfileStore) Upsert(_ context.Context, p *domain.BuyerProfile) error {
	if p == nil || p.BuyerUUID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profileCopy := *p
	profileCopy.TopHS6 = append([]domain.RankedItem(nil), p.TopHS6...)
	profileCopy.TopSuppliers = append([]domain.RankedItem(nil), p.TopSuppliers...)
	profileCopy.UpdatedAt = time.Now().UTC()
	s.data[profileKey{p.BuyerUUID, p.DestinationCountry}] = &profileCopy
	return nil
}

// Get retrieves a profile. Returns ErrNotFound if absent.
func (s *BuyerProfileStore) Get(_ context.Context, buyerUUID, destinationCountry string) (*domain.BuyerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[profileKey{buyerUUID, destinationCountry}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	profileCopy := *p
	return &profileCopy, nil
}

// ExporterProfileStore is an in-memory implementation of
// storage.ExporterProfileStore.
type ExporterProfileStore struct {
	mu   sync.RWMutex
	data map[profileKey]*domain.ExporterProfile
}

// NewExporterProfileStore creates a new in-memory exporter profile store.
func NewExporterProfileStore() *ExporterProfileStore {
	return &ExporterProfileStore{
		data: make(map[profileKey]*domain.ExporterProfile),
	}
}

// Compile-time interface check.
var _ storage.ExporterProfileStore = (*ExporterProfileStore)(nil)

// Upsert replaces the profile for (supplier_uuid, origin_country).
func (s *ExporterProfileStore) Upsert(_ context.Context, p *domain.ExporterProfile) error {
	if p == nil || p.SupplierUUID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profileCopy := *p
	profileCopy.TopHS6 = append([]domain.RankedItem(nil), p.TopHS6...)
	profileCopy.TopBuyers = append([]domain.RankedItem(nil), p.TopBuyers...)
	profileCopy.UpdatedAt = time.Now().UTC()
	s.data[profileKey{p.SupplierUUID, p.OriginCountry}] = &profileCopy
	return nil
}

// Get retrieves a profile. Returns ErrNotFound if absent.
func (s *ExporterProfileStore) Get(_ context.Context, supplierUUID, originCountry string) (*domain.ExporterProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[profileKey{supplierUUID, originCountry}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	profileCopy := *p
	return &profileCopy, nil
}
