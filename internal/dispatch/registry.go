// Package dispatch delivers admitted alerts to webhook subscribers with
// bounded retry.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"whale-watch/internal/domain"
	"whale-watch/internal/observability"
	"whale-watch/internal/storage"
)

// Registry holds webhook subscriptions. Writes go through the store;
// an in-memory snapshot of active subscriptions serves the hot read path of
// the delivery workers, so a revocation is visible to every worker as soon
// as Revoke returns.
type Registry struct {
	store  storage.SubscriptionStore
	logger *log.Logger
	now    func() int64

	mu     sync.RWMutex
	active map[string]*domain.Subscription
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Store  storage.SubscriptionStore
	Logger *log.Logger
	Now    func() int64 // current time in ms; defaults to wall clock
}

// NewRegistry creates a Registry and warms the active set from the store.
func NewRegistry(ctx context.Context, opts RegistryOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	r := &Registry{
		store:  opts.Store,
		logger: logger,
		now:    now,
		active: make(map[string]*domain.Subscription),
	}

	subs, err := opts.Store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	for _, sub := range subs {
		if sub.Status == domain.SubscriptionActive {
			r.active[sub.ID] = sub
		}
	}
	observability.UpdateActiveSubscriptions(len(r.active))
	return r, nil
}

// Register validates and persists a new active subscription.
func (r *Registry) Register(ctx context.Context, target, secret string, filter domain.SubscriptionFilter) (*domain.Subscription, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:        uuid.NewString(),
		Target:    target,
		Secret:    secret,
		Filter:    filter,
		Status:    domain.SubscriptionActive,
		CreatedAt: r.now(),
	}
	if err := r.store.Insert(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	r.mu.Lock()
	stored := *sub
	r.active[sub.ID] = &stored
	count := len(r.active)
	r.mu.Unlock()

	observability.UpdateActiveSubscriptions(count)
	r.logger.Printf("subscription %s registered for %s", sub.ID, target)
	return sub, nil
}

// Revoke flips a subscription to revoked. The entry stays in the store for
// delivery-receipt history; it only leaves the active set. Deliveries whose
// attempt starts after Revoke returns will not reach the target.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	if err := r.store.UpdateStatus(ctx, id, domain.SubscriptionRevoked); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.active, id)
	count := len(r.active)
	r.mu.Unlock()

	observability.UpdateActiveSubscriptions(count)
	r.logger.Printf("subscription %s revoked", id)
	return nil
}

// Get returns a subscription by ID, active or revoked.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	return r.store.GetByID(ctx, id)
}

// All returns every subscription ordered by creation time.
func (r *Registry) All(ctx context.Context) ([]*domain.Subscription, error) {
	return r.store.GetAll(ctx)
}

// Active returns a point-in-time snapshot of the active subscriptions,
// ordered by creation time for deterministic fan-out.
func (r *Registry) Active() []*domain.Subscription {
	r.mu.RLock()
	subs := make([]*domain.Subscription, 0, len(r.active))
	for _, sub := range r.active {
		copied := *sub
		subs = append(subs, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt != subs[j].CreatedAt {
			return subs[i].CreatedAt < subs[j].CreatedAt
		}
		return subs[i].ID < subs[j].ID
	})
	return subs
}

// IsActive reports whether the subscription is currently active. Delivery
// workers call this immediately before each attempt.
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: target must be an http(s) URL", storage.ErrInvalidInput)
	}
	return nil
}

func validateFilter(filter domain.SubscriptionFilter) error {
	if filter.MinAmount < 0 {
		return fmt.Errorf("%w: min_amount must be non-negative", storage.ErrInvalidInput)
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", storage.ErrInvalidInput, filter.Severity)
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, filter.Category)
	}
	return nil
}
