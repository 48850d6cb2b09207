package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whale-watch/internal/domain"
)

// DefaultAttemptTimeout bounds a single delivery attempt. A target that
// exceeds it counts as a failed attempt and goes through the backoff policy.
const DefaultAttemptTimeout = 10 * time.Second

// alertPayload is the webhook body sent to subscribers. Subscribers dedup on
// alert_id; deliveries are at-least-once.
type alertPayload struct {
	Event          string                `json:"event"`
	AlertID        string                `json:"alert_id"`
	Severity       domain.Severity       `json:"severity"`
	Action         string                `json:"recommended_action"`
	Movement       domain.Movement       `json:"movement"`
	Classification domain.Classification `json:"classification"`
	DeliveredAt    int64                 `json:"delivered_at"`
}

// Deliverer performs a single webhook POST to a subscription target.
type Deliverer struct {
	client  *http.Client
	timeout time.Duration
	now     func() int64
}

// DelivererOptions configures a Deliverer.
type DelivererOptions struct {
	HTTPClient     *http.Client
	AttemptTimeout time.Duration
	Now            func() int64 // current time in ms; defaults to wall clock
}

// NewDeliverer creates a webhook deliverer.
func NewDeliverer(opts DelivererOptions) *Deliverer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.AttemptTimeout
	if timeout == 0 {
		timeout = DefaultAttemptTimeout
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Deliverer{client: client, timeout: timeout, now: now}
}

// Deliver POSTs the alert to the subscription target. When the subscription
// carries a secret, X-Signature holds the hex HMAC-SHA256 of the body. Any
// non-2xx status is a failed attempt.
func (d *Deliverer) Deliver(ctx context.Context, sub *domain.Subscription, alert *domain.Alert) error {
	body, err := json.Marshal(alertPayload{
		Event:          "whale_alert",
		AlertID:        alert.ID,
		Severity:       alert.Severity,
		Action:         alert.RecommendedAction,
		Movement:       alert.Movement,
		Classification: alert.Classification,
		DeliveredAt:    d.now(),
	})
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", alert.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", sub.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.Secret != "" {
		req.Header.Set("X-Signature", signBody(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver alert %s to subscription %s: %w", alert.ID, sub.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver alert %s to subscription %s: status %d", alert.ID, sub.ID, resp.StatusCode)
	}
	return nil
}

// signBody returns the hex HMAC-SHA256 of body under the subscription secret.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
