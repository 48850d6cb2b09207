package domain

// SubscriptionStatus is the lifecycle state of a webhook subscription.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionRevoked SubscriptionStatus = "revoked"
)

// String returns the string representation of SubscriptionStatus.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s SubscriptionStatus) IsValid() bool {
	return s == SubscriptionActive || s == SubscriptionRevoked
}

// SubscriptionFilter selects which alerts a subscriber receives.
// Zero values mean "match any".
type SubscriptionFilter struct {
	Severity  Severity `json:"severity,omitempty"`
	Category  Category `json:"category,omitempty"`
	MinAmount float64  `json:"min_amount,omitempty"`
}

// Matches reports whether an alert passes the filter.
func (f SubscriptionFilter) Matches(a *Alert) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Category != "" && a.Classification.Category != f.Category {
		return false
	}
	if f.MinAmount > 0 && a.Movement.Amount < f.MinAmount {
		return false
	}
	return true
}

// Subscription is a registered webhook delivery target. Revoked entries are
// skipped, not removed, within the retention window.
type Subscription struct {
	ID        string             `json:"subscription_id"`
	Target    string             `json:"target"` // delivery endpoint URL
	Secret    string             `json:"-"`      // optional HMAC signing secret, never serialized
	Filter    SubscriptionFilter `json:"filter"`
	Status    SubscriptionStatus `json:"status"`
	CreatedAt int64              `json:"created_at"` // Unix timestamp in milliseconds
}

// DeliveryOutcome is the state of a single delivery attempt.
type DeliveryOutcome string

const (
	DeliveryPending   DeliveryOutcome = "pending"
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryFailed    DeliveryOutcome = "failed"
)

// DeliveryAttempt tracks one subscription-alert delivery. Exists only for the
// life of a delivery; retried with bounded exponential backoff.
type DeliveryAttempt struct {
	SubscriptionID string          `json:"subscription_id"`
	AlertID        string          `json:"alert_id"`
	AttemptNo      int             `json:"attempt_no"`
	Outcome        DeliveryOutcome `json:"outcome"`
	NextRetryAt    int64           `json:"next_retry_at,omitempty"` // Unix timestamp in milliseconds, 0 if terminal
}
