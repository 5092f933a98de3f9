package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// RawRowStore implements storage.RawRowStore using PostgreSQL.
// BulkInsert goes through the COPY protocol: per-chunk throughput is the
// whole point of this table.
type RawRowStore struct {
	pool *Pool
}

// NewRawRowStore creates a new RawRowStore.
func NewRawRowStore(pool *Pool) *RawRowStore {
	return &RawRowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawRowStore = (*RawRowStore)(nil)

// BulkInsert loads a chunk of rows via COPY inside one transaction.
// All-or-nothing: any bad row aborts the whole chunk.
func (s *RawRowStore) BulkInsert(ctx context.Context, rows []*domain.RawRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin raw row copy: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"raw_rows"},
		[]string{"file_id", "row_number", "fields", "hs_raw", "buyer_raw", "supplier_raw", "date_raw"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			fields, err := json.Marshal(r.Fields)
			if err != nil {
				return nil, fmt.Errorf("marshal fields of row %d: %w", r.RowNumber, err)
			}
			return []any{r.FileID, r.RowNumber, string(fields), r.HSRaw, r.BuyerRaw, r.SupplierRaw, r.DateRaw}, nil
		}),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy raw rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit raw row copy: %w", err)
	}
	return nil
}

// DeleteByFile removes all rows of a file (failed-ingest rollback).
func (s *RawRowStore) DeleteByFile(ctx context.Context, fileID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM raw_rows WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete raw rows of file %d: %w", fileID, err)
	}
	return tag.RowsAffected(), nil
}

// CountByFile returns the number of rows referencing a file.
func (s *RawRowStore) CountByFile(ctx context.Context, fileID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM raw_rows WHERE file_id = $1`, fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw rows of file %d: %w", fileID, err)
	}
	return count, nil
}

// ListByFile returns rows with row_number > afterRow, ordered by row_number.
func (s *RawRowStore) ListByFile(ctx context.Context, fileID int64, afterRow, limit int) ([]*domain.RawRow, error) {
	query := `
		SELECT id, file_id, row_number, fields, hs_raw, buyer_raw, supplier_raw, date_raw, created_at
		FROM raw_rows
		WHERE file_id = $1 AND row_number > $2
		ORDER BY row_number ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, fileID, afterRow, limit)
	if err != nil {
		return nil, fmt.Errorf("list raw rows of file %d: %w", fileID, err)
	}
	defer rows.Close()

	var result []*domain.RawRow
	for rows.Next() {
		var r domain.RawRow
		var fields []byte
		if err := rows.Scan(&r.ID, &r.FileID, &r.RowNumber, &fields, &r.HSRaw, &r.BuyerRaw, &r.SupplierRaw, &r.DateRaw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan raw row: %w", err)
		}
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields of raw row %d: %w", r.ID, err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw rows: %w", err)
	}
	return result, nil
}
