package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	pool *Pool
}

// NewSubscriptionStore creates a new SubscriptionStore.
func NewSubscriptionStore(pool *Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Insert adds a subscription. Returns ErrDuplicateKey if the ID exists.
func (s *SubscriptionStore) Insert(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscriptions (
			id, target, secret, filter_severity, filter_category, filter_min_amount, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		sub.ID,
		sub.Target,
		sub.Secret,
		string(sub.Filter.Severity),
		string(sub.Filter.Category),
		sub.Filter.MinAmount,
		string(sub.Status),
		sub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by ID. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `
		SELECT id, target, secret, filter_severity, filter_category, filter_min_amount, status, created_at
		FROM subscriptions
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}
	return sub, nil
}

// GetAll retrieves all subscriptions ordered by created_at ASC.
func (s *SubscriptionStore) GetAll(ctx context.Context) ([]*domain.Subscription, error) {
	query := `
		SELECT id, target, secret, filter_severity, filter_category, filter_min_amount, status, created_at
		FROM subscriptions
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateStatus flips a subscription's status. Returns ErrNotFound if the
// subscription does not exist.
func (s *SubscriptionStore) UpdateStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE subscriptions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSubscription scans a single row into a Subscription.
func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var severity, category, status string

	err := row.Scan(
		&sub.ID,
		&sub.Target,
		&sub.Secret,
		&severity,
		&category,
		&sub.Filter.MinAmount,
		&status,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Filter.Severity = domain.Severity(severity)
	sub.Filter.Category = domain.Category(category)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}
