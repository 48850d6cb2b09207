// Package alerting converts classified movements into severity-graded alerts.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// Engine admits classified movements and produces at most one alert per
// movement ID for the lifetime of the retention window.
type Engine struct {
	alerts storage.AlertStore
	config SeverityConfig
	now    func() int64
}

// Options configures an Engine.
type Options struct {
	Alerts storage.AlertStore
	Config SeverityConfig
	Now    func() int64 // current time in ms; defaults to wall clock
}

// NewEngine creates a new alert engine.
func NewEngine(opts Options) *Engine {
	config := opts.Config
	if config == (SeverityConfig{}) {
		config = DefaultSeverityConfig()
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Engine{
		alerts: opts.Alerts,
		config: config,
		now:    now,
	}
}

// Admit converts a movement into an alert. Idempotent on movement ID: if an
// alert already exists it is returned unchanged and created is false, so
// re-processed scan windows never double-alert.
func (e *Engine) Admit(ctx context.Context, m *domain.Movement, cls domain.Classification) (*domain.Alert, bool, error) {
	if m == nil || m.ID == "" {
		return nil, false, fmt.Errorf("%w: movement without id", storage.ErrInvalidInput)
	}

	if existing, err := e.alerts.GetByID(ctx, m.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup alert %s: %w", m.ID, err)
	}

	severity := e.config.Grade(m, cls)
	alert := &domain.Alert{
		ID:                m.ID,
		Movement:          *m,
		Classification:    cls,
		Severity:          severity,
		RecommendedAction: domain.RecommendedAction(severity),
		CreatedAt:         e.now(),
	}

	if err := e.alerts.Insert(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the race to another admission for the same movement;
			// the first-admitted alert wins.
			existing, getErr := e.alerts.GetByID(ctx, m.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("reload alert %s: %w", m.ID, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert alert %s: %w", m.ID, err)
	}

	return alert, true, nil
}
