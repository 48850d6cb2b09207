package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

func testMovement(id string, height int64, observedAt int64) *domain.ClassifiedMovement {
	return &domain.ClassifiedMovement{
		Movement: domain.Movement{
			ID:           id,
			AssetKind:    domain.AssetNative,
			TxHash:       "0xabc" + id,
			LogIndex:     0,
			FromAddress:  "0xfrom",
			ToAddress:    "0xto",
			Amount:       250,
			ObservedAt:   observedAt,
			SourceHeight: height,
		},
		Classification: domain.Classification{
			Address:     "0xfrom",
			Category:    domain.CategoryExchangeCold,
			Confidence:  0.95,
			KnownEntity: "Kraken",
		},
	}
}

func TestMovementStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMovementStore(pool)
	ctx := context.Background()

	m := testMovement("mov-001", 1000, 1700000000000)

	err := store.Insert(ctx, m)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "mov-001")
	require.NoError(t, err)

	assert.Equal(t, m.ID, retrieved.ID)
	assert.Equal(t, m.AssetKind, retrieved.AssetKind)
	assert.Equal(t, m.TxHash, retrieved.TxHash)
	assert.Equal(t, m.Amount, retrieved.Amount)
	assert.Equal(t, m.SourceHeight, retrieved.SourceHeight)
	assert.Equal(t, m.Classification.Category, retrieved.Classification.Category)
	assert.Equal(t, m.Classification.KnownEntity, retrieved.Classification.KnownEntity)
}

func TestMovementStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMovementStore(pool)
	ctx := context.Background()

	m := testMovement("mov-dup", 1000, 1700000000000)

	err := store.Insert(ctx, m)
	require.NoError(t, err)

	err = store.Insert(ctx, m)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestMovementStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMovementStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMovementStore_QueryFilters(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMovementStore(pool)
	ctx := context.Background()

	native := testMovement("mov-native", 1000, 1700000000000)
	require.NoError(t, store.Insert(ctx, native))

	stable := testMovement("mov-stable", 1001, 1700000001000)
	stable.AssetKind = domain.AssetStable
	stable.Amount = 500000
	stable.Classification.Category = domain.CategoryUnknown
	require.NoError(t, store.Insert(ctx, stable))

	// Asset filter
	results, err := store.Query(ctx, storage.MovementQuery{Asset: domain.AssetStable})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mov-stable", results[0].ID)

	// Amount filter
	results, err = store.Query(ctx, storage.MovementQuery{MinAmount: 1000})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mov-stable", results[0].ID)

	// Category filter
	results, err = store.Query(ctx, storage.MovementQuery{Category: domain.CategoryExchangeCold})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mov-native", results[0].ID)

	// No filter returns newest first
	results, err = store.Query(ctx, storage.MovementQuery{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mov-stable", results[0].ID)
}

func TestMovementStore_Prune(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewMovementStore(pool)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := testMovement(fmt.Sprintf("mov-%03d", i), int64(1000+i), int64(1700000000000+i*1000))
		require.NoError(t, store.Insert(ctx, m))
	}

	// Drop the two oldest by age, then cap the remainder at 2 entries.
	removed, err := store.Prune(ctx, 1700000002000, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Newest entries survive.
	_, err = store.GetByID(ctx, "mov-004")
	require.NoError(t, err)
	_, err = store.GetByID(ctx, "mov-000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
