package memory

import (
	"context"
	"sort"
	"sync"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// MovementStore is an in-memory implementation of storage.MovementStore
// bounded by the retention window.
type MovementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClassifiedMovement // keyed by movement ID
}

// NewMovementStore creates a new in-memory movement store.
func NewMovementStore() *MovementStore {
	return &MovementStore{
		data: make(map[string]*domain.ClassifiedMovement),
	}
}

// Compile-time interface check.
var _ storage.MovementStore = (*MovementStore)(nil)

// Insert adds a movement. Returns ErrDuplicateKey if the ID exists.
func (s *MovementStore) Insert(_ context.Context, m *domain.ClassifiedMovement) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	movementCopy := *m
	s.data[m.ID] = &movementCopy
	return nil
}

// GetByID retrieves a movement by ID. Returns ErrNotFound if not exists.
func (s *MovementStore) GetByID(_ context.Context, id string) (*domain.ClassifiedMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	movementCopy := *m
	return &movementCopy, nil
}

// Query retrieves movements matching the query, newest first.
func (s *MovementStore) Query(_ context.Context, q storage.MovementQuery) ([]*domain.ClassifiedMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClassifiedMovement
	for _, m := range s.data {
		if q.Asset != "" && m.AssetKind != q.Asset {
			continue
		}
		if q.MinAmount > 0 && m.Amount < q.MinAmount {
			continue
		}
		if q.Category != "" && m.Classification.Category != q.Category {
			continue
		}
		if q.Since > 0 && m.ObservedAt < q.Since {
			continue
		}
		movementCopy := *m
		result = append(result, &movementCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SourceHeight != result[j].SourceHeight {
			return result[i].SourceHeight > result[j].SourceHeight
		}
		return result[i].LogIndex > result[j].LogIndex
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// GetByAddress retrieves movements touching an address, ordered by
// observed_at ASC.
func (s *MovementStore) GetByAddress(_ context.Context, address string, since int64) ([]*domain.ClassifiedMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClassifiedMovement
	for _, m := range s.data {
		if m.FromAddress != address && m.ToAddress != address {
			continue
		}
		if since > 0 && m.ObservedAt < since {
			continue
		}
		movementCopy := *m
		result = append(result, &movementCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})

	return result, nil
}

// Count returns the number of retained movements.
func (s *MovementStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Prune drops movements observed before minObservedAt and the oldest surplus
// beyond maxEntries. Returns the number of records removed.
func (s *MovementStore) Prune(_ context.Context, minObservedAt int64, maxEntries int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, m := range s.data {
		if minObservedAt > 0 && m.ObservedAt < minObservedAt {
			delete(s.data, id)
			removed++
		}
	}

	if maxEntries > 0 && len(s.data) > maxEntries {
		surplus := make([]*domain.ClassifiedMovement, 0, len(s.data))
		for _, m := range s.data {
			surplus = append(surplus, m)
		}
		sort.Slice(surplus, func(i, j int) bool {
			return surplus[i].ObservedAt < surplus[j].ObservedAt
		})
		for _, m := range surplus[:len(surplus)-maxEntries] {
			delete(s.data, m.ID)
			removed++
		}
	}

	return removed, nil
}
