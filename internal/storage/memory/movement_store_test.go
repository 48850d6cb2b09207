package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

func testMovement(id string, observedAt int64) *domain.ClassifiedMovement {
	return &domain.ClassifiedMovement{
		Movement: domain.Movement{
			ID:           id,
			AssetKind:    domain.AssetNative,
			TxHash:       "0x" + id,
			FromAddress:  "0xfrom",
			ToAddress:    "0xto",
			Amount:       150,
			ObservedAt:   observedAt,
			SourceHeight: observedAt / 1000,
		},
		Classification: domain.Classification{
			Address:    "0xfrom",
			Category:   domain.CategoryUnknown,
			Confidence: 0.3,
		},
	}
}

func TestMovementStore_InsertDuplicate(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	m := testMovement("m1", 1000)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.Insert(ctx, m)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestMovementStore_QueryFilters(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	small := testMovement("small", 1000)
	small.Amount = 10
	large := testMovement("large", 2000)
	large.Amount = 500
	stable := testMovement("stable", 3000)
	stable.AssetKind = domain.AssetStable
	stable.Classification.Category = domain.CategoryExchangeCold

	for _, m := range []*domain.ClassifiedMovement{small, large, stable} {
		if err := store.Insert(ctx, m); err != nil {
			t.Fatalf("Insert %s failed: %v", m.ID, err)
		}
	}

	got, err := store.Query(ctx, storage.MovementQuery{MinAmount: 100})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 movements with amount >= 100, got %d", len(got))
	}

	got, err = store.Query(ctx, storage.MovementQuery{Category: domain.CategoryExchangeCold})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "stable" {
		t.Errorf("Expected only the exchange_cold movement, got %v", got)
	}
}

func TestMovementStore_QueryNewestFirst(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := testMovement(fmt.Sprintf("m%d", i), int64((i+1)*1000))
		if err := store.Insert(ctx, m); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.Query(ctx, storage.MovementQuery{Limit: 3})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 movements, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].SourceHeight < got[i].SourceHeight {
			t.Error("Query results should be newest first")
		}
	}
}

func TestMovementStore_PruneByAge(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	old := testMovement("old", 1000)
	fresh := testMovement("fresh", 5000)
	if err := store.Insert(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(ctx, 2000, 0)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned, got %d", removed)
	}

	if _, err := store.GetByID(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("Old movement should have been pruned")
	}
	if _, err := store.GetByID(ctx, "fresh"); err != nil {
		t.Error("Fresh movement should survive pruning")
	}
}

func TestMovementStore_PruneByCapacity(t *testing.T) {
	store := NewMovementStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.Insert(ctx, testMovement(fmt.Sprintf("m%d", i), int64((i+1)*1000))); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.Prune(ctx, 0, 4)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 6 {
		t.Errorf("Expected 6 pruned, got %d", removed)
	}

	count, _ := store.Count(ctx)
	if count != 4 {
		t.Errorf("Expected 4 retained, got %d", count)
	}

	// Oldest entries are dropped first
	if _, err := store.GetByID(ctx, "m9"); err != nil {
		t.Error("Newest movement should survive capacity pruning")
	}
	if _, err := store.GetByID(ctx, "m0"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("Oldest movement should be dropped by capacity pruning")
	}
}

func TestSubscriptionStore_StatusFlip(t *testing.T) {
	store := NewSubscriptionStore()
	ctx := context.Background()

	sub := &domain.Subscription{
		ID:        "sub-1",
		Target:    "https://example.com/hook",
		Status:    domain.SubscriptionActive,
		CreatedAt: 1000,
	}
	if err := store.Insert(ctx, sub); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.UpdateStatus(ctx, "sub-1", domain.SubscriptionRevoked); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := store.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.SubscriptionRevoked {
		t.Errorf("Expected revoked status, got %s", got.Status)
	}

	// Revoked entries are kept, not removed
	all, _ := store.GetAll(ctx)
	if len(all) != 1 {
		t.Errorf("Revoked subscription should remain in store, got %d entries", len(all))
	}

	if err := store.UpdateStatus(ctx, "missing", domain.SubscriptionRevoked); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing subscription, got %v", err)
	}
}
