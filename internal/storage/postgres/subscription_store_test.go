package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

func TestSubscriptionStore_InsertAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubscriptionStore(pool)
	ctx := context.Background()

	subs := []*domain.Subscription{
		{
			ID:        "sub-001",
			Target:    "https://example.com/hooks/a",
			Secret:    "s3cret",
			Filter:    domain.SubscriptionFilter{Severity: domain.SeverityCritical},
			Status:    domain.SubscriptionActive,
			CreatedAt: 1700000000000,
		},
		{
			ID:        "sub-002",
			Target:    "https://example.com/hooks/b",
			Filter:    domain.SubscriptionFilter{Category: domain.CategoryExchangeCold, MinAmount: 500},
			Status:    domain.SubscriptionActive,
			CreatedAt: 1700000001000,
		},
	}
	for _, sub := range subs {
		require.NoError(t, store.Insert(ctx, sub))
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Ordered by creation time.
	assert.Equal(t, "sub-001", all[0].ID)
	assert.Equal(t, "s3cret", all[0].Secret)
	assert.Equal(t, domain.SeverityCritical, all[0].Filter.Severity)
	assert.Equal(t, "sub-002", all[1].ID)
	assert.Equal(t, 500.0, all[1].Filter.MinAmount)
}

func TestSubscriptionStore_UpdateStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubscriptionStore(pool)
	ctx := context.Background()

	sub := &domain.Subscription{
		ID:        "sub-revoke",
		Target:    "https://example.com/hooks/c",
		Status:    domain.SubscriptionActive,
		CreatedAt: 1700000000000,
	}
	require.NoError(t, store.Insert(ctx, sub))

	err := store.UpdateStatus(ctx, "sub-revoke", domain.SubscriptionRevoked)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "sub-revoke")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionRevoked, retrieved.Status)
}

func TestSubscriptionStore_UpdateStatusNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubscriptionStore(pool)
	ctx := context.Background()

	err := store.UpdateStatus(ctx, "nonexistent-id", domain.SubscriptionRevoked)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
