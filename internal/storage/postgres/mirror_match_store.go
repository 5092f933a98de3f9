package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// MirrorMatchStore implements storage.MirrorMatchStore using PostgreSQL.
type MirrorMatchStore struct {
	pool *Pool
}

// NewMirrorMatchStore creates a new MirrorMatchStore.
func NewMirrorMatchStore(pool *Pool) *MirrorMatchStore {
	return &MirrorMatchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MirrorMatchStore = (*MirrorMatchStore)(nil)

// Insert records a match. Returns ErrDuplicateKey when the export already
// has one; re-runs treat that as done.
func (s *MirrorMatchStore) Insert(ctx context.Context, m *domain.MirrorMatch) error {
	criteria, err := json.Marshal(m.Criteria)
	if err != nil {
		return fmt.Errorf("marshal mirror criteria: %w", err)
	}

	query := `
		INSERT INTO mirror_matches (export_id, import_id, score, criteria)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = s.pool.QueryRow(ctx, query, m.ExportID, m.ImportID, m.Score, string(criteria)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mirror match: %w", err)
	}
	return nil
}

// GetByExportID retrieves the match for an export. ErrNotFound if none.
func (s *MirrorMatchStore) GetByExportID(ctx context.Context, exportID string) (*domain.MirrorMatch, error) {
	query := `
		SELECT id, export_id, import_id, score, criteria, created_at
		FROM mirror_matches
		WHERE export_id = $1
	`
	var m domain.MirrorMatch
	var criteria []byte
	err := s.pool.QueryRow(ctx, query, exportID).
		Scan(&m.ID, &m.ExportID, &m.ImportID, &m.Score, &criteria, &m.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mirror match: %w", err)
	}
	if err := json.Unmarshal(criteria, &m.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal mirror criteria: %w", err)
	}
	return &m, nil
}
