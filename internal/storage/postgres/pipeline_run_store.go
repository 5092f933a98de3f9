package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// PipelineRunStore implements storage.PipelineRunStore using PostgreSQL.
type PipelineRunStore struct {
	pool *Pool
}

// NewPipelineRunStore creates a new PipelineRunStore.
func NewPipelineRunStore(pool *Pool) *PipelineRunStore {
	return &PipelineRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)

const runColumns = `
	run_id, stage, filters, processed, created, updated, skipped,
	status, started_at, completed_at, error_message
`

// Insert records a new RUNNING run.
func (s *PipelineRunStore) Insert(ctx context.Context, run *domain.PipelineRun) error {
	filters, err := json.Marshal(orEmptyMap(run.Filters))
	if err != nil {
		return fmt.Errorf("marshal run filters: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (run_id, stage, filters, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.pool.Exec(ctx, query,
		run.RunID, run.Stage, string(filters), string(run.Status), run.StartedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// Finish writes the terminal status, counters and error message.
func (s *PipelineRunStore) Finish(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET processed = $2, created = $3, updated = $4, skipped = $5,
			status = $6, completed_at = $7, error_message = $8
		WHERE run_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		run.RunID, run.Processed, run.Created, run.Updated, run.Skipped,
		string(run.Status), run.CompletedAt, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if absent.
func (s *PipelineRunStore) GetByID(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}
	return run, nil
}

// ListRunning returns RUNNING runs for a stage, oldest first.
func (s *PipelineRunStore) ListRunning(ctx context.Context, stage string) ([]*domain.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE stage = $1 AND status = 'RUNNING'
		ORDER BY started_at ASC
	`
	rows, err := s.pool.Query(ctx, query, stage)
	if err != nil {
		return nil, fmt.Errorf("list running pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline run rows: %w", err)
	}
	return out, nil
}

// ListByStage returns every run for a stage, oldest first.
func (s *PipelineRunStore) ListByStage(ctx context.Context, stage string) ([]*domain.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE stage = $1
		ORDER BY started_at ASC
	`
	rows, err := s.pool.Query(ctx, query, stage)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs by stage: %w", err)
	}
	defer rows.Close()

	var out []*domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline run rows: %w", err)
	}
	return out, nil
}

// scanRun scans a single row into a PipelineRun.
func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var status string
	var filters []byte
	err := row.Scan(
		&run.RunID, &run.Stage, &filters,
		&run.Processed, &run.Created, &run.Updated, &run.Skipped,
		&status, &run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &run.Filters); err != nil {
			return nil, fmt.Errorf("unmarshal run filters: %w", err)
		}
	}
	return &run, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
