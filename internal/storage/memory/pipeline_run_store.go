package memory

import (
	"context"
	"sort"
	"sync"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// PipelineRunStore is an in-memory implementation of storage.PipelineRunStore.
type PipelineRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PipelineRun // keyed by run_id
}

// NewPipelineRunStore creates a new in-memory pipeline run store.
func NewPipelineRunStore() *PipelineRunStore {
	return &PipelineRunStore{
		data: make(map[string]*domain.PipelineRun),
	}
}

// Compile-time interface check.
var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)

// Insert records a new RUNNING run.
func (s *PipelineRunStore) Insert(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	runCopy := *run
	s.data[run.RunID] = &runCopy
	return nil
}

// Finish writes the terminal status, counters and error message.
func (s *PipelineRunStore) Finish(_ context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[run.RunID]
	if !exists {
		return storage.ErrNotFound
	}
	stored.Processed = run.Processed
	stored.Created = run.Created
	stored.Updated = run.Updated
	stored.Skipped = run.Skipped
	stored.Status = run.Status
	stored.CompletedAt = run.CompletedAt
	stored.ErrorMessage = run.ErrorMessage
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if absent.
func (s *PipelineRunStore) GetByID(_ context.Context, runID string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	runCopy := *run
	return &runCopy, nil
}

// ListRunning returns RUNNING runs for a stage, oldest first.
func (s *PipelineRunStore) ListRunning(_ context.Context, stage string) ([]*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PipelineRun
	for _, run := range s.data {
		if run.Stage == stage && run.Status == domain.RunRunning {
			runCopy := *run
			result = append(result, &runCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

// ListByStage returns every run for a stage, oldest first.
func (s *PipelineRunStore) ListByStage(_ context.Context, stage string) ([]*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PipelineRun
	for _, run := range s.data {
		if run.Stage == stage {
			runCopy := *run
			result = append(result, &runCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}
