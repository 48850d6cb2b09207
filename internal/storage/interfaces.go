package storage

import (
	"context"

	"whale-watch/internal/domain"
)

// MovementQuery filters reads over the retained movement window.
// Zero values mean "match any".
type MovementQuery struct {
	Asset     domain.AssetKind
	MinAmount float64
	Category  domain.Category
	Since     int64 // observed_at lower bound, ms
	Limit     int
}

// AlertQuery filters reads over the retained alert window.
// Zero values mean "match any".
type AlertQuery struct {
	Severity domain.Severity
	Category domain.Category
	Since    int64 // created_at lower bound, ms
	Limit    int
}

// MovementStore holds the retained window of classified movements.
type MovementStore interface {
	// Insert adds a movement. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, m *domain.ClassifiedMovement) error

	// GetByID retrieves a movement by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.ClassifiedMovement, error)

	// Query retrieves movements matching the query, ordered by
	// (source_height DESC, log_index DESC), newest first.
	Query(ctx context.Context, q MovementQuery) ([]*domain.ClassifiedMovement, error)

	// GetByAddress retrieves movements touching an address (either side)
	// observed at or after since, ordered by observed_at ASC.
	GetByAddress(ctx context.Context, address string, since int64) ([]*domain.ClassifiedMovement, error)

	// Count returns the number of retained movements.
	Count(ctx context.Context) (int, error)

	// Prune drops movements observed before minObservedAt and, when the
	// store still exceeds maxEntries, the oldest surplus. Returns the
	// number of records removed.
	Prune(ctx context.Context, minObservedAt int64, maxEntries int) (int, error)
}

// AlertStore holds the retained window of admitted alerts.
type AlertStore interface {
	// Insert adds an alert. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, a *domain.Alert) error

	// GetByID retrieves an alert by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)

	// Query retrieves alerts matching the query, newest first.
	Query(ctx context.Context, q AlertQuery) ([]*domain.Alert, error)

	// Count returns the number of retained alerts.
	Count(ctx context.Context) (int, error)

	// Prune drops alerts created before minCreatedAt and, when the store
	// still exceeds maxEntries, the oldest surplus. Returns the number of
	// records removed.
	Prune(ctx context.Context, minCreatedAt int64, maxEntries int) (int, error)
}

// SubscriptionStore persists webhook subscriptions. Entries are never
// physically deleted within the retention window; revocation flips status.
type SubscriptionStore interface {
	// Insert adds a subscription. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, s *domain.Subscription) error

	// GetByID retrieves a subscription by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)

	// GetAll retrieves all subscriptions ordered by created_at ASC.
	GetAll(ctx context.Context) ([]*domain.Subscription, error)

	// UpdateStatus flips a subscription's status. Returns ErrNotFound if
	// the subscription does not exist.
	UpdateStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error
}

// PredictionStore persists staked predictions.
type PredictionStore interface {
	// Insert adds a prediction. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, p *domain.Prediction) error

	// GetByID retrieves a prediction by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Prediction, error)

	// Settle transitions an open prediction to a terminal state. Returns
	// ErrNotFound if the prediction does not exist. Settle on an already
	// terminal prediction is the caller's responsibility to guard.
	Settle(ctx context.Context, id string, state domain.PredictionState, reward int64, settlementTxRef string, settledAt int64) error
}

// CursorStore persists the last fully-processed ledger height.
// Enables resumption after restart without skipping heights.
type CursorStore interface {
	// GetHeight returns the last processed height.
	// Returns ErrNotFound if no height has been saved yet (cold start).
	GetHeight(ctx context.Context) (int64, error)

	// SetHeight saves the last processed height.
	SetHeight(ctx context.Context, height int64) error
}
