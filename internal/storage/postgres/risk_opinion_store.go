package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tradeledger/internal/domain"
	"tradeledger/internal/storage"
)

// RiskOpinionStore implements storage.RiskOpinionStore using PostgreSQL.
// The before-update trigger archives the prior row to risk_opinions_history;
// this store never touches the history table directly.
type RiskOpinionStore struct {
	pool *Pool
}

// NewRiskOpinionStore creates a new RiskOpinionStore.
func NewRiskOpinionStore(pool *Pool) *RiskOpinionStore {
	return &RiskOpinionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskOpinionStore = (*RiskOpinionStore)(nil)

const riskColumns = `
	id, entity_type, entity_id, scope_key, engine_version,
	score, risk_level, main_reason, reasons, confidence, computed_at
`

// Upsert inserts or replaces the opinion for its unique key.
func (s *RiskOpinionStore) Upsert(ctx context.Context, op *domain.RiskOpinion) error {
	reasons, err := json.Marshal(op.Reasons)
	if err != nil {
		return fmt.Errorf("marshal risk reasons: %w", err)
	}

	query := `
		INSERT INTO risk_opinions (
			entity_type, entity_id, scope_key, engine_version,
			score, risk_level, main_reason, reasons, confidence, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entity_type, entity_id, scope_key, engine_version)
		DO UPDATE SET
			score = EXCLUDED.score,
			risk_level = EXCLUDED.risk_level,
			main_reason = EXCLUDED.main_reason,
			reasons = EXCLUDED.reasons,
			confidence = EXCLUDED.confidence,
			computed_at = EXCLUDED.computed_at
		RETURNING id
	`
	err = s.pool.QueryRow(ctx, query,
		string(op.EntityType), op.EntityID, op.ScopeKey, op.EngineVersion,
		op.Score, string(op.Level), op.MainReason, string(reasons), op.Confidence, op.ComputedAt,
	).Scan(&op.ID)
	if err != nil {
		return fmt.Errorf("upsert risk opinion: %w", err)
	}
	return nil
}

// Get retrieves one opinion. Returns ErrNotFound if absent.
func (s *RiskOpinionStore) Get(ctx context.Context, entityType domain.EntityType, entityID, scopeKey, engineVersion string) (*domain.RiskOpinion, error) {
	query := `
		SELECT ` + riskColumns + `
		FROM risk_opinions
		WHERE entity_type = $1 AND entity_id = $2 AND scope_key = $3 AND engine_version = $4
	`
	row := s.pool.QueryRow(ctx, query, string(entityType), entityID, scopeKey, engineVersion)
	op, err := scanRiskOpinion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get risk opinion: %w", err)
	}
	return op, nil
}

// ListByEntity returns all opinions for an entity, newest first.
func (s *RiskOpinionStore) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID string) ([]*domain.RiskOpinion, error) {
	query := `
		SELECT ` + riskColumns + `
		FROM risk_opinions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY computed_at DESC, id DESC
	`
	rows, err := s.pool.Query(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("list risk opinions: %w", err)
	}
	defer rows.Close()

	var out []*domain.RiskOpinion
	for rows.Next() {
		op, err := scanRiskOpinion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk opinion row: %w", err)
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk opinion rows: %w", err)
	}
	return out, nil
}

// scanRiskOpinion scans a single row into a RiskOpinion.
func scanRiskOpinion(row pgx.Row) (*domain.RiskOpinion, error) {
	var op domain.RiskOpinion
	var entityType, level string
	var reasons []byte
	err := row.Scan(
		&op.ID, &entityType, &op.EntityID, &op.ScopeKey, &op.EngineVersion,
		&op.Score, &level, &op.MainReason, &reasons, &op.Confidence, &op.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	op.EntityType = domain.EntityType(entityType)
	op.Level = domain.RiskLevel(level)
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &op.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal risk reasons: %w", err)
		}
	}
	return &op, nil
}
