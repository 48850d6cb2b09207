package memory

import (
	"context"
	"sort"
	"sync"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore bounded by
// the retention window.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Alert // keyed by alert ID (== movement ID)
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.Alert),
	}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert adds an alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(_ context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}

	alertCopy := *a
	s.data[a.ID] = &alertCopy
	return nil
}

// GetByID retrieves an alert by ID. Returns ErrNotFound if not exists.
func (s *AlertStore) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	alertCopy := *a
	return &alertCopy, nil
}

// Query retrieves alerts matching the query, newest first.
func (s *AlertStore) Query(_ context.Context, q storage.AlertQuery) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Alert
	for _, a := range s.data {
		if q.Severity != "" && a.Severity != q.Severity {
			continue
		}
		if q.Category != "" && a.Classification.Category != q.Category {
			continue
		}
		if q.Since > 0 && a.CreatedAt < q.Since {
			continue
		}
		alertCopy := *a
		result = append(result, &alertCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// Count returns the number of retained alerts.
func (s *AlertStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Prune drops alerts created before minCreatedAt and the oldest surplus
// beyond maxEntries. Returns the number of records removed.
func (s *AlertStore) Prune(_ context.Context, minCreatedAt int64, maxEntries int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, a := range s.data {
		if minCreatedAt > 0 && a.CreatedAt < minCreatedAt {
			delete(s.data, id)
			removed++
		}
	}

	if maxEntries > 0 && len(s.data) > maxEntries {
		surplus := make([]*domain.Alert, 0, len(s.data))
		for _, a := range s.data {
			surplus = append(surplus, a)
		}
		sort.Slice(surplus, func(i, j int) bool {
			return surplus[i].CreatedAt < surplus[j].CreatedAt
		})
		for _, a := range surplus[:len(surplus)-maxEntries] {
			delete(s.data, a.ID)
			removed++
		}
	}

	return removed, nil
}
