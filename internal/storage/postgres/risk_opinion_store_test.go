package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

func testOpinion(score int) *domain.RiskOpinion {
	return &domain.RiskOpinion{
		EntityType:    domain.EntityShipment,
		EntityID:      "t1",
		ScopeKey:      "GLOBAL",
		EngineVersion: "1.0.0",
		Score:         score,
		Level:         domain.RiskLevelFor(score),
		MainReason:    domain.ReasonUnderInvoice,
		Reasons: []domain.RiskReason{{
			Code:     domain.ReasonUnderInvoice,
			Score:    score,
			Severity: domain.SeverityHigh,
			Context:  map[string]any{"z_score": -4.29},
		}},
		Confidence: 0.9,
	}
}

func TestRiskOpinionStore_UpdateArchivesPriorVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRiskOpinionStore(pool)

	require.NoError(t, store.Upsert(ctx, testOpinion(90)))
	require.NoError(t, store.Upsert(ctx, testOpinion(75)))

	op, err := store.Get(ctx, domain.EntityShipment, "t1", "GLOBAL", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 75, op.Score)
	require.Equal(t, domain.RiskHigh, op.Level)
	require.Len(t, op.Reasons, 1)
	require.InDelta(t, -4.29, op.Reasons[0].Context["z_score"].(float64), 1e-9)

	// The update trigger archived the superseded row.
	var archived int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT count(*) FROM risk_opinions_history WHERE entity_id = 't1'").Scan(&archived))
	require.Equal(t, 1, archived)

	var oldScore int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT score FROM risk_opinions_history WHERE entity_id = 't1'").Scan(&oldScore))
	require.Equal(t, 90, oldScore)
}

func TestRiskOpinionStore_VersionsCoexist(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRiskOpinionStore(pool)

	require.NoError(t, store.Upsert(ctx, testOpinion(90)))

	next := testOpinion(40)
	next.EngineVersion = "1.1.0"
	require.NoError(t, store.Upsert(ctx, next))

	// A version bump writes alongside, not over; nothing was archived.
	ops, err := store.ListByEntity(ctx, domain.EntityShipment, "t1")
	require.NoError(t, err)
	require.Len(t, ops, 2)

	var archived int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT count(*) FROM risk_opinions_history").Scan(&archived))
	require.Equal(t, 0, archived)
}
