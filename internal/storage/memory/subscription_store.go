package memory

import (
	"context"
	"sort"
	"sync"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// SubscriptionStore is an in-memory implementation of storage.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Subscription // keyed by subscription ID
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		data: make(map[string]*domain.Subscription),
	}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Insert adds a subscription. Returns ErrDuplicateKey if the ID exists.
func (s *SubscriptionStore) Insert(_ context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sub.ID]; exists {
		return storage.ErrDuplicateKey
	}

	subCopy := *sub
	s.data[sub.ID] = &subCopy
	return nil
}

// GetByID retrieves a subscription by ID. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	subCopy := *sub
	return &subCopy, nil
}

// GetAll retrieves all subscriptions ordered by created_at ASC.
func (s *SubscriptionStore) GetAll(_ context.Context) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Subscription, 0, len(s.data))
	for _, sub := range s.data {
		subCopy := *sub
		result = append(result, &subCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// UpdateStatus flips a subscription's status. Returns ErrNotFound if the
// subscription does not exist.
func (s *SubscriptionStore) UpdateStatus(_ context.Context, id string, status domain.SubscriptionStatus) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	sub.Status = status
	return nil
}
