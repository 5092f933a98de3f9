package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// FileStore is an in-memory implementation of storage.FileStore.
type FileStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.SourceFile
	byHash map[string]int64 // fingerprint -> id
}

// NewFileStore creates a new in-memory file store.
func NewFileStore() *FileStore {
	return &FileStore{
		nextID: 1,
		data:   make(map[int64]*domain.SourceFile),
		byHash: make(map[string]int64),
	}
}

// Compile-time interface check.
var _ storage.FileStore = (*FileStore)(nil)

// Insert registers a new file. Returns ErrDuplicateKey on a known fingerprint.
func (s *FileStore) Insert(_ context.Context, f *domain.SourceFile) (int64, error) {
	if f == nil || f.Fingerprint == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[f.Fingerprint]; exists {
		return 0, storage.ErrDuplicateKey
	}

	fileCopy := *f
	fileCopy.ID = s.nextID
	fileCopy.CreatedAt = time.Now().UTC()
	s.nextID++

	s.data[fileCopy.ID] = &fileCopy
	s.byHash[fileCopy.Fingerprint] = fileCopy.ID
	f.ID = fileCopy.ID
	return fileCopy.ID, nil
}

// GetByID retrieves a file by id. Returns ErrNotFound if absent.
func (s *FileStore) GetByID(_ context.Context, id int64) (*domain.SourceFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	fileCopy := *f
	return &fileCopy, nil
}

// GetByFingerprint retrieves a file by content digest.
func (s *FileStore) GetByFingerprint(_ context.Context, fingerprint string) (*domain.SourceFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byHash[fingerprint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	fileCopy := *s.data[id]
	return &fileCopy, nil
}

// ListReadyForStage returns files whose given stage still has work.
func (s *FileStore) ListReadyForStage(_ context.Context, stage domain.Stage, limit int) ([]*domain.SourceFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SourceFile
	for _, f := range s.data {
		if fileReadyForStage(f, stage) {
			fileCopy := *f
			result = append(result, &fileCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func fileReadyForStage(f *domain.SourceFile, stage domain.Stage) bool {
	switch stage {
	case domain.StageIngestion:
		return f.Status == domain.FileStatusPending
	case domain.StageStandardization:
		return f.Status == domain.FileStatusIngested && f.StandardizationCompletedAt == nil
	case domain.StageIdentity:
		return f.Status == domain.FileStatusIngested &&
			f.StandardizationCompletedAt != nil && f.IdentityCompletedAt == nil
	case domain.StageLedger:
		return f.Status == domain.FileStatusIngested &&
			f.IdentityCompletedAt != nil && f.LedgerCompletedAt == nil
	}
	return false
}

// stageMarks returns pointers to the lifecycle fields of one stage.
func stageMarks(f *domain.SourceFile, stage domain.Stage) (started, completed **time.Time, ok bool) {
	switch stage {
	case domain.StageIngestion:
		return &f.IngestionStartedAt, &f.IngestionCompletedAt, true
	case domain.StageStandardization:
		return &f.StandardizationStartedAt, &f.StandardizationCompletedAt, true
	case domain.StageIdentity:
		return &f.IdentityStartedAt, &f.IdentityCompletedAt, true
	case domain.StageLedger:
		return &f.LedgerStartedAt, &f.LedgerCompletedAt, true
	}
	return nil, nil, false
}

// ClaimStage takes the per-file lease for a stage.
func (s *FileStore) ClaimStage(_ context.Context, id int64, stage domain.Stage, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[id]
	if !exists {
		return false, nil
	}
	started, completed, ok := stageMarks(f, stage)
	if !ok {
		return false, storage.ErrInvalidInput
	}
	if *started != nil || *completed != nil {
		return false, nil
	}
	atCopy := at
	*started = &atCopy
	return true, nil
}

// ReleaseStage clears the lease so the next run retries the file.
func (s *FileStore) ReleaseStage(_ context.Context, id int64, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[id]
	if !exists {
		return nil
	}
	started, completed, ok := stageMarks(f, stage)
	if !ok {
		return storage.ErrInvalidInput
	}
	if *completed == nil {
		*started = nil
	}
	return nil
}

// CompleteStage stamps the stage completion time.
func (s *FileStore) CompleteStage(_ context.Context, id int64, stage domain.Stage, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	_, completed, ok := stageMarks(f, stage)
	if !ok {
		return storage.ErrInvalidInput
	}
	atCopy := at
	*completed = &atCopy
	return nil
}

// MarkIngested sets status INGESTED with the final row count.
func (s *FileStore) MarkIngested(_ context.Context, id int64, totalRows int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	atCopy := at
	f.Status = domain.FileStatusIngested
	f.TotalRows = totalRows
	f.IngestionCompletedAt = &atCopy
	f.ErrorMessage = nil
	return nil
}

// MarkFailed sets status FAILED and records the error message.
func (s *FileStore) MarkFailed(_ context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	f.Status = domain.FileStatusFailed
	msg := message
	f.ErrorMessage = &msg
	return nil
}
