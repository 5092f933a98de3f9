package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// RawRowStore is an in-memory implementation of storage.RawRowStore.
type RawRowStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.RawRow
	byRow  map[rawKey]int64 // (file_id, row_number) -> id
}

type rawKey struct {
	fileID    int64
	rowNumber int
}

// NewRawRowStore creates a new in-memory raw row store.
func NewRawRowStore() *RawRowStore {
	return &RawRowStore{
		nextID: 1,
		data:   make(map[int64]*domain.RawRow),
		byRow:  make(map[rawKey]int64),
	}
}

// Compile-time interface check.
var _ storage.RawRowStore = (*RawRowStore)(nil)

// BulkInsert loads a chunk of rows. All-or-nothing per chunk.
func (s *RawRowStore) BulkInsert(_ context.Context, rows []*domain.RawRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil || r.FileID == 0 || r.RowNumber < 1 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.byRow[rawKey{r.FileID, r.RowNumber}]; exists {
			return storage.ErrDuplicateKey
		}
	}

	now := time.Now().UTC()
	for _, r := range rows {
		rowCopy := *r
		rowCopy.ID = s.nextID
		rowCopy.CreatedAt = now
		s.nextID++
		s.data[rowCopy.ID] = &rowCopy
		s.byRow[rawKey{rowCopy.FileID, rowCopy.RowNumber}] = rowCopy.ID
		r.ID = rowCopy.ID
	}
	return nil
}

// DeleteByFile removes all rows of a file (failed-ingest rollback).
func (s *RawRowStore) DeleteByFile(_ context.Context, fileID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.data {
		if r.FileID == fileID {
			delete(s.byRow, rawKey{r.FileID, r.RowNumber})
			delete(s.data, id)
			deleted++
		}
	}
	return deleted, nil
}

// CountByFile returns the number of rows referencing a file.
func (s *RawRowStore) CountByFile(_ context.Context, fileID int64) (int, error) {
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

// ListByFile returns rows with row_number > afterRow, ordered by row_number.
func (s *RawRowStore) ListByFile(_ context.Context, fileID int64, afterRow, limit int) ([]*domain.RawRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawRow
	for _, r := range s.data {
		if r.FileID == fileID && r.RowNumber > afterRow {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].RowNumber < result[j].RowNumber })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
