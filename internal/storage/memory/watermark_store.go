package memory

import (
	"context"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// WatermarkStore is an in-memory implementation of storage.WatermarkStore.
type WatermarkStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Watermark // keyed by job_name
}

// NewWatermarkStore creates a new in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{
		data: make(map[string]*domain.Watermark),
	}
}

// Compile-time interface check.
var _ storage.WatermarkStore = (*WatermarkStore)(nil)

// Get returns the watermark for a job. ErrNotFound when never completed.
func (s *WatermarkStore) Get(_ context.Context, jobName string) (*domain.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[jobName]
	if !exists {
		return nil, storage.ErrNotFound
	}
	wCopy := *w
	return &wCopy, nil
}

// Set advances (or initializes) the watermark for a job.
func (s *WatermarkStore) Set(_ context.Context, jobName string, mark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[jobName] = &domain.Watermark{
		JobName:   jobName,
		Watermark: mark,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}
