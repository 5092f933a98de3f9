package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// PriceCorridorStore is an in-memory implementation of
// storage.PriceCorridorStore.
type PriceCorridorStore struct {
	mu   sync.RWMutex
	data map[corridorKey]*domain.PriceCorridor
}

type corridorKey struct {
	hs6              string
	destination      string
	year             int
	month            int
	direction        domain.Direction
	reportingCountry string
}

// NewPriceCorridorStore creates a new in-memory price corridor store.
func NewPriceCorridorStore() *PriceCorridorStore {
	return &PriceCorridorStore{
		data: make(map[corridorKey]*domain.PriceCorridor),
	}
}

// Compile-time interface check.
var _ storage.PriceCorridorStore = (*PriceCorridorStore)(nil)

// Upsert replaces the corridor for its bucket key.
func (s *PriceCorridorStore) Upsert(_ context.Context, c *domain.PriceCorridor) error {
	if c == nil || c.HSCode6 == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	corridorCopy := *c
	corridorCopy.UpdatedAt = time.Now().UTC()
	key := corridorKey{c.HSCode6, c.DestinationCountry, c.Year, c.Month, c.Direction, c.ReportingCountry}
	s.data[key] = &corridorCopy
	return nil
}

// Get retrieves one corridor bucket. Returns ErrNotFound if absent.
func (s *PriceCorridorStore) Get(_ context.Context, hs6, destinationCountry string, year, month int, direction domain.Direction, reportingCountry string) (*domain.PriceCorridor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[corridorKey{hs6, destinationCountry, year, month, direction, reportingCountry}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	corridorCopy := *c
	return &corridorCopy, nil
}
