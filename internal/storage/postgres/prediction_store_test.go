package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

func testPrediction(id string) *domain.Prediction {
	return &domain.Prediction{
		ID:           id,
		AgentID:      "agent-1",
		MovementID:   "mov-001",
		Claim:        "sell_within_24h",
		StakedAmount: 100,
		State:        domain.PredictionOpen,
		StakeTxRef:   "stake-000001",
		CreatedAt:    1700000000000,
	}
}

func TestPredictionStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionStore(pool)
	ctx := context.Background()

	p := testPrediction("pred-001")

	err := store.Insert(ctx, p)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "pred-001")
	require.NoError(t, err)

	assert.Equal(t, p.ID, retrieved.ID)
	assert.Equal(t, p.AgentID, retrieved.AgentID)
	assert.Equal(t, p.MovementID, retrieved.MovementID)
	assert.Equal(t, p.Claim, retrieved.Claim)
	assert.Equal(t, p.StakedAmount, retrieved.StakedAmount)
	assert.Equal(t, domain.PredictionOpen, retrieved.State)
	assert.Equal(t, p.StakeTxRef, retrieved.StakeTxRef)
}

func TestPredictionStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionStore(pool)
	ctx := context.Background()

	p := testPrediction("pred-dup")

	err := store.Insert(ctx, p)
	require.NoError(t, err)

	err = store.Insert(ctx, p)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPredictionStore_Settle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionStore(pool)
	ctx := context.Background()

	p := testPrediction("pred-settle")
	require.NoError(t, store.Insert(ctx, p))

	err := store.Settle(ctx, "pred-settle", domain.PredictionSettledCorrect, 200, "payout-000001", 1700000100000)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "pred-settle")
	require.NoError(t, err)

	assert.Equal(t, domain.PredictionSettledCorrect, retrieved.State)
	assert.Equal(t, int64(200), retrieved.Reward)
	assert.Equal(t, "payout-000001", retrieved.SettlementTxRef)
	assert.Equal(t, int64(1700000100000), retrieved.SettledAt)
}

func TestPredictionStore_SettleRejectsNonTerminalState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionStore(pool)
	ctx := context.Background()

	p := testPrediction("pred-open")
	require.NoError(t, store.Insert(ctx, p))

	err := store.Settle(ctx, "pred-open", domain.PredictionOpen, 0, "", 1700000100000)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPredictionStore_SettleNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionStore(pool)
	ctx := context.Background()

	err := store.Settle(ctx, "nonexistent-id", domain.PredictionSettledIncorrect, 0, "", 1700000100000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
