package memory

import (
	"context"
	"sort"
	"sync"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// RiskOpinionStore is an in-memory implementation of storage.RiskOpinionStore.
// Superseded opinions are kept in an internal history slice, mirroring the
// archive trigger of the SQL implementation.
type RiskOpinionStore struct {
	mu      sync.RWMutex
	nextID  int64
	data    map[opinionKey]*domain.RiskOpinion
	history []*domain.RiskOpinion
}

type opinionKey struct {
	entityType    domain.EntityType
	entityID      string
	scopeKey      string
	engineVersion string
}

// NewRiskOpinionStore creates a new in-memory risk opinion store.
func NewRiskOpinionStore() *RiskOpinionStore {
	return &RiskOpinionStore{
		nextID: 1,
		data:   make(map[opinionKey]*domain.RiskOpinion),
	}
}

// Compile-time interface check.
var _ storage.RiskOpinionStore = (*RiskOpinionStore)(nil)

// Upsert inserts or replaces the opinion for its unique key. The replaced
// version is archived.
func (s *RiskOpinionStore) Upsert(_ context.Context, op *domain.RiskOpinion) error {
	if op == nil || op.EntityID == "" || op.EngineVersion == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := opinionKey{op.EntityType, op.EntityID, op.ScopeKey, op.EngineVersion}
	if prev, exists := s.data[key]; exists {
		prevCopy := *prev
		s.history = append(s.history, &prevCopy)
		op.ID = prev.ID
	} else {
		op.ID = s.nextID
		s.nextID++
	}

	opCopy := *op
	opCopy.Reasons = append([]domain.RiskReason(nil), op.Reasons...)
	s.data[key] = &opCopy
	return nil
}

// Get retrieves one opinion. Returns ErrNotFound if absent.
func (s *RiskOpinionStore) Get(_ context.Context, entityType domain.EntityType, entityID, scopeKey, engineVersion string) (*domain.RiskOpinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.data[opinionKey{entityType, entityID, scopeKey, engineVersion}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	opCopy := *op
	return &opCopy, nil
}

// ListByEntity returns all opinions for an entity, newest first.
func (s *RiskOpinionStore) ListByEntity(_ context.Context, entityType domain.EntityType, entityID string) ([]*domain.RiskOpinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RiskOpinion
	for key, op := range s.data {
		if key.entityType == entityType && key.entityID == entityID {
			opCopy := *op
			result = append(result, &opCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ComputedAt.Equal(result[j].ComputedAt) {
			return result[i].ComputedAt.After(result[j].ComputedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// History returns archived opinion versions, oldest first. Test hook; the
// SQL implementation exposes this through risk_opinions_history.
func (s *RiskOpinionStore) History() []*domain.RiskOpinion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RiskOpinion, len(s.history))
	for i, op := range s.history {
		opCopy := *op
		out[i] = &opCopy
	}
	return out
}
