package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// FileStore implements storage.FileStore using PostgreSQL.
type FileStore struct {
	pool *Pool
}

// NewFileStore creates a new FileStore.
func NewFileStore(pool *Pool) *FileStore {
	return &FileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FileStore = (*FileStore)(nil)

const fileColumns = `
	id, name, path, fingerprint, country, direction, source_format,
	year, month, total_rows, status, error_message,
	ingestion_started_at, ingestion_completed_at,
	standardization_started_at, standardization_completed_at,
	identity_started_at, identity_completed_at,
	ledger_started_at, ledger_completed_at,
	created_at
`

// stageColumn validates a stage and returns its lifecycle column prefix.
func stageColumn(stage domain.Stage) (string, error) {
	switch stage {
	case domain.StageIngestion, domain.StageStandardization, domain.StageIdentity, domain.StageLedger:
		return string(stage), nil
	}
	return "", fmt.Errorf("unknown stage %q", stage)
}

// Insert registers a new file. Returns ErrDuplicateKey when the fingerprint
// is already known.
func (s *FileStore) Insert(ctx context.Context, f *domain.SourceFile) (int64, error) {
	query := `
		INSERT INTO file_registry (
			name, path, fingerprint, country, direction, source_format,
			year, month, total_rows, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		f.Name,
		f.Path,
		f.Fingerprint,
		f.Country,
		string(f.Direction),
		string(f.SourceFormat),
		f.Year,
		f.Month,
		f.TotalRows,
		string(f.Status),
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

// GetByID retrieves a file by id. Returns ErrNotFound if absent.
func (s *FileStore) GetByID(ctx context.Context, id int64) (*domain.SourceFile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM file_registry WHERE id = $1`, id)
	f, err := scanFile(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get file by id: %w", err)
	}
	return f, nil
}

// GetByFingerprint retrieves a file by content digest.
func (s *FileStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.SourceFile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM file_registry WHERE fingerprint = $1`, fingerprint)
	f, err := scanFile(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get file by fingerprint: %w", err)
	}
	return f, nil
}

// ListReadyForStage returns files whose given stage still has work.
func (s *FileStore) ListReadyForStage(ctx context.Context, stage domain.Stage, limit int) ([]*domain.SourceFile, error) {
	var predicate string
	switch stage {
	case domain.StageIngestion:
		predicate = `status = 'PENDING'`
	case domain.StageStandardization:
		predicate = `status = 'INGESTED' AND standardization_completed_at IS NULL`
	case domain.StageIdentity:
		predicate = `status = 'INGESTED' AND standardization_completed_at IS NOT NULL AND identity_completed_at IS NULL`
	case domain.StageLedger:
		predicate = `status = 'INGESTED' AND identity_completed_at IS NOT NULL AND ledger_completed_at IS NULL`
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	query := `SELECT ` + fileColumns + ` FROM file_registry WHERE ` + predicate + ` ORDER BY id ASC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list files for stage %s: %w", stage, err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// ClaimStage takes the per-file lease for a stage. The claim succeeds only
// when the stage has neither started nor completed.
func (s *FileStore) ClaimStage(ctx context.Context, id int64, stage domain.Stage, at time.Time) (bool, error) {
	col, err := stageColumn(stage)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE file_registry
		SET %s_started_at = $1
		WHERE id = $2 AND %s_started_at IS NULL AND %s_completed_at IS NULL
	`, col, col, col)

	tag, err := s.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("claim stage %s for file %d: %w", stage, id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseStage clears the lease so the next run retries the file.
func (s *FileStore) ReleaseStage(ctx context.Context, id int64, stage domain.Stage) error {
	col, err := stageColumn(stage)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE file_registry
		SET %s_started_at = NULL
		WHERE id = $1 AND %s_completed_at IS NULL
	`, col, col)

	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("release stage %s for file %d: %w", stage, id, err)
	}
	return nil
}

// CompleteStage stamps <stage>_completed_at.
func (s *FileStore) CompleteStage(ctx context.Context, id int64, stage domain.Stage, at time.Time) error {
	col, err := stageColumn(stage)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE file_registry SET %s_completed_at = $1 WHERE id = $2`, col)
	if _, err := s.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("complete stage %s for file %d: %w", stage, id, err)
	}
	return nil
}

// MarkIngested sets status INGESTED with the final row count.
func (s *FileStore) MarkIngested(ctx context.Context, id int64, totalRows int, at time.Time) error {
	query := `
		UPDATE file_registry
		SET status = 'INGESTED', total_rows = $1, ingestion_completed_at = $2, error_message = NULL
		WHERE id = $3
	`
	if _, err := s.pool.Exec(ctx, query, totalRows, at, id); err != nil {
		return fmt.Errorf("mark file %d ingested: %w", id, err)
	}
	return nil
}

// MarkFailed sets status FAILED and records the error message.
func (s *FileStore) MarkFailed(ctx context.Context, id int64, message string) error {
	query := `UPDATE file_registry SET status = 'FAILED', error_message = $1 WHERE id = $2`
	if _, err := s.pool.Exec(ctx, query, message, id); err != nil {
		return fmt.Errorf("mark file %d failed: %w", id, err)
	}
	return nil
}

// scanFile scans a single row into a SourceFile.
func scanFile(row pgx.Row) (*domain.SourceFile, error) {
	var f domain.SourceFile
	var direction, format, status string

	err := row.Scan(
		&f.ID, &f.Name, &f.Path, &f.Fingerprint, &f.Country, &direction, &format,
		&f.Year, &f.Month, &f.TotalRows, &status, &f.ErrorMessage,
		&f.IngestionStartedAt, &f.IngestionCompletedAt,
		&f.StandardizationStartedAt, &f.StandardizationCompletedAt,
		&f.IdentityStartedAt, &f.IdentityCompletedAt,
		&f.LedgerStartedAt, &f.LedgerCompletedAt,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Direction = domain.Direction(direction)
	f.SourceFormat = domain.SourceFormat(format)
	f.Status = domain.FileStatus(status)
	return &f, nil
}

// scanFiles scans multiple rows into a slice of SourceFile.
func scanFiles(rows pgx.Rows) ([]*domain.SourceFile, error) {
	var files []*domain.SourceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file rows: %w", err)
	}
	return files, nil
}
