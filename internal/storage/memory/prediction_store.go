package memory

import (
	"context"
	"sync"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// PredictionStore is an in-memory implementation of storage.PredictionStore.
type PredictionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Prediction // keyed by prediction ID
}

// NewPredictionStore creates a new in-memory prediction store.
func NewPredictionStore() *PredictionStore {
	return &PredictionStore{
		data: make(map[string]*domain.Prediction),
	}
}

// Compile-time interface check.
var _ storage.PredictionStore = (*PredictionStore)(nil)

// Insert adds a prediction. Returns ErrDuplicateKey if the ID exists.
func (s *PredictionStore) Insert(_ context.Context, p *domain.Prediction) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}

	predictionCopy := *p
	s.data[p.ID] = &predictionCopy
	return nil
}

// GetByID retrieves a prediction by ID. Returns ErrNotFound if not exists.
func (s *PredictionStore) GetByID(_ context.Context, id string) (*domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	predictionCopy := *p
	return &predictionCopy, nil
}

// Settle transitions a prediction to a terminal state.
func (s *PredictionStore) Settle(_ context.Context, id string, state domain.PredictionState, reward int64, settlementTxRef string, settledAt int64) error {
	if !state.IsTerminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	p.State = state
	p.Reward = reward
	p.SettlementTxRef = settlementTxRef
	p.SettledAt = settledAt
	return nil
}
