package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// LaneStatStore is an in-memory implementation of storage.LaneStatStore.
type LaneStatStore struct {
	mu   sync.RWMutex
	data map[laneKey]*domain.LaneStat
}

type laneKey struct {
	origin      string
	destination string
	hs6         string
}

// NewLaneStatStore creates a new in-memory lane stat store.
func NewLaneStatStore() *LaneStatStore {
	return &LaneStatStore{
		data: make(map[laneKey]*domain.LaneStat),
	}
}

// Compile-time interface check.
var _ storage.LaneStatStore = (*LaneStatStore)(nil)

// Upsert replaces the stats for a lane.
func (s *LaneStatStore) Upsert(_ context.Context, l *domain.LaneStat) error {
	if l == nil || l.HSCode6 == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	laneCopy := *l
	laneCopy.TopCarriers = append([]domain.RankedItem(nil), l.TopCarriers...)
	laneCopy.UpdatedAt = time.Now().UTC()
	s.data[laneKey{l.OriginCountry, l.DestinationCountry, l.HSCode6}] = &laneCopy
	return nil
}

// Get retrieves stats for one lane. Returns ErrNotFound if absent.
func (s *LaneStatStore) Get(_ context.Context, origin, destination, hs6 string) (*domain.LaneStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[laneKey{origin, destination, hs6}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	laneCopy := *l
	return &laneCopy, nil
}
