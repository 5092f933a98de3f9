package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// MirrorMatchStore is an in-memory implementation of storage.MirrorMatchStore.
type MirrorMatchStore struct {
	mu       sync.RWMutex
	nextID   int64
	byExport map[string]*domain.MirrorMatch
}

// NewMirrorMatchStore creates a new in-memory mirror match store.
func NewMirrorMatchStore() *MirrorMatchStore {
	return &MirrorMatchStore{
		nextID:   1,
		byExport: make(map[string]*domain.MirrorMatch),
	}
}

// Compile-time interface check.
var _ storage.MirrorMatchStore = (*MirrorMatchStore)(nil)

// Insert records a match. Returns ErrDuplicateKey when the export already
// has one.
func (s *MirrorMatchStore) Insert(_ context.Context, m *domain.MirrorMatch) error {
	if m == nil || m.ExportID == "" || m.ImportID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byExport[m.ExportID]; exists {
		return storage.ErrDuplicateKey
	}

	matchCopy := *m
	matchCopy.ID = s.nextID
	matchCopy.CreatedAt = time.Now().UTC()
	s.nextID++
	s.byExport[matchCopy.ExportID] = &matchCopy

	m.ID = matchCopy.ID
	m.CreatedAt = matchCopy.CreatedAt
	return nil
}

// GetByExportID retrieves the match for an export. ErrNotFound if none.
func (s *MirrorMatchStore) GetByExportID(_ context.Context, exportID string) (*domain.MirrorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.byExport[exportID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	matchCopy := *m
	return &matchCopy, nil
}
