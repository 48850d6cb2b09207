package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// PredictionStore implements storage.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *Pool
}

// NewPredictionStore creates a new PredictionStore.
func NewPredictionStore(pool *Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PredictionStore = (*PredictionStore)(nil)

// Insert adds a prediction. Returns ErrDuplicateKey if the ID exists.
func (s *PredictionStore) Insert(ctx context.Context, p *domain.Prediction) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO predictions (
			id, agent_id, movement_id, claim, staked_amount, state,
			reward, stake_tx_ref, settlement_tx_ref, created_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID,
		p.AgentID,
		p.MovementID,
		p.Claim,
		p.StakedAmount,
		string(p.State),
		p.Reward,
		p.StakeTxRef,
		p.SettlementTxRef,
		p.CreatedAt,
		p.SettledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// GetByID retrieves a prediction by ID. Returns ErrNotFound if not exists.
func (s *PredictionStore) GetByID(ctx context.Context, id string) (*domain.Prediction, error) {
	query := `
		SELECT id, agent_id, movement_id, claim, staked_amount, state,
		       reward, stake_tx_ref, settlement_tx_ref, created_at, settled_at
		FROM predictions
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get prediction by id: %w", err)
	}
	return p, nil
}

// Settle transitions a prediction to a terminal state.
func (s *PredictionStore) Settle(ctx context.Context, id string, state domain.PredictionState, reward int64, settlementTxRef string, settledAt int64) error {
	if !state.IsTerminal() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE predictions
		SET state = $1, reward = $2, settlement_tx_ref = $3, settled_at = $4
		WHERE id = $5
	`

	tag, err := s.pool.Exec(ctx, query, string(state), reward, settlementTxRef, settledAt, id)
	if err != nil {
		return fmt.Errorf("settle prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPrediction scans a single row into a Prediction.
func scanPrediction(row pgx.Row) (*domain.Prediction, error) {
	var p domain.Prediction
	var state string

	err := row.Scan(
		&p.ID,
		&p.AgentID,
		&p.MovementID,
		&p.Claim,
		&p.StakedAmount,
		&state,
		&p.Reward,
		&p.StakeTxRef,
		&p.SettlementTxRef,
		&p.CreatedAt,
		&p.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PredictionState(state)
	return &p, nil
}
