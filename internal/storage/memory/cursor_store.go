package memory

import (
	"context"
	"sync"

	"whale-watch/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu     sync.RWMutex
	height int64
	set    bool
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetHeight returns the last processed height.
// Returns ErrNotFound if no height has been saved yet.
func (s *CursorStore) GetHeight(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return 0, storage.ErrNotFound
	}
	return s.height, nil
}

// SetHeight saves the last processed height.
func (s *CursorStore) SetHeight(_ context.Context, height int64) error {
	if height < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.height = height
	s.set = true
	return nil
}
