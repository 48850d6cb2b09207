package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"whale-watch/internal/alerting"
	"whale-watch/internal/classifier"
	"whale-watch/internal/domain"
	"whale-watch/internal/ledger"
	"whale-watch/internal/observability"
	"whale-watch/internal/storage"
)

// Default runner configuration.
const (
	DefaultScanInterval = 12 * time.Second
	DefaultRetentionAge = 24 * time.Hour
	DefaultRetentionMax = 10_000
)

// AlertSink receives newly created alerts. Publish must not block the scan
// loop beyond queue backpressure; the dispatcher and the live stream hub
// implement it.
type AlertSink interface {
	Publish(alert *domain.Alert)
}

// Archiver receives the classified movements of a completed cycle for
// long-term analytics storage. Failures are logged, never fatal to the cycle.
type Archiver interface {
	ArchiveMovements(ctx context.Context, movements []*domain.ClassifiedMovement) error
}

// Health is a snapshot of the scan loop state for the health endpoint.
// A failing cycle is reported explicitly rather than serving stale data as
// healthy.
type Health struct {
	LastProcessedHeight int64  `json:"last_processed_height"`
	TrackedCount        int    `json:"tracked_count"`
	LastCycleAt         int64  `json:"last_cycle_at"`
	LastCycleError      string `json:"last_cycle_error,omitempty"`
}

// Runner drives the detection pipeline: cursor → scanner → classifier →
// alert engine → sinks. A single cycle runs at a time; an overrunning cycle
// defers the next tick, never runs concurrently with it.
type Runner struct {
	source       ledger.Source
	scanner      *Scanner
	cursor       *Cursor
	classifier   classifier.Classifier
	engine       *alerting.Engine
	movements    storage.MovementStore
	alerts       storage.AlertStore
	sinks        []AlertSink
	archive      Archiver
	interval     time.Duration
	retentionAge time.Duration
	retentionMax int
	logger       *log.Logger

	mu           sync.Mutex
	lastCycleAt  int64
	lastCycleErr string
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source       ledger.Source
	Scanner      *Scanner
	Cursor       *Cursor
	Classifier   classifier.Classifier
	Engine       *alerting.Engine
	Movements    storage.MovementStore
	Alerts       storage.AlertStore
	Sinks        []AlertSink
	Archive      Archiver // optional
	Interval     time.Duration
	RetentionAge time.Duration
	RetentionMax int
	Logger       *log.Logger
}

// NewRunner creates a new scan-loop runner.
func NewRunner(opts RunnerOptions) *Runner {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultScanInterval
	}
	retentionAge := opts.RetentionAge
	if retentionAge == 0 {
		retentionAge = DefaultRetentionAge
	}
	retentionMax := opts.RetentionMax
	if retentionMax == 0 {
		retentionMax = DefaultRetentionMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source:       opts.Source,
		scanner:      opts.Scanner,
		cursor:       opts.Cursor,
		classifier:   opts.Classifier,
		engine:       opts.Engine,
		movements:    opts.Movements,
		alerts:       opts.Alerts,
		sinks:        opts.Sinks,
		archive:      opts.Archive,
		interval:     interval,
		retentionAge: retentionAge,
		retentionMax: retentionMax,
		logger:       logger,
	}
}

// Run starts the scan loop. It blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("scan loop starting, interval %v, span from cursor height %d", r.interval, r.cursor.Height())

	// First cycle runs immediately; subsequent cycles on the ticker. The
	// loop body is serial, so cycles never overlap.
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("scan loop stopping")
			return ctx.Err()
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle processes one scan window. On any failure the cursor stays put and
// the same window is retried next cycle.
func (r *Runner) runCycle(ctx context.Context) {
	start := time.Now()
	err := r.cycle(ctx)

	r.mu.Lock()
	r.lastCycleAt = time.Now().UnixMilli()
	if err != nil {
		r.lastCycleErr = err.Error()
	} else {
		r.lastCycleErr = ""
	}
	r.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Printf("scan cycle failed (cursor held at %d): %v", r.cursor.Height(), err)
		}
		observability.RecordScanCycle("error", time.Since(start).Seconds())
		return
	}
	observability.RecordScanCycle("success", time.Since(start).Seconds())
	observability.UpdateLastProcessedHeight(r.cursor.Height())
}

func (r *Runner) cycle(ctx context.Context) error {
	tip, err := r.source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch tip: %w", err)
	}

	from, to, ok := r.cursor.NextWindow(tip)
	if !ok {
		return nil // caught up with the tip
	}

	movements, err := r.scanner.Scan(ctx, from, to)
	if err != nil {
		return err
	}

	var classified []*domain.ClassifiedMovement
	admitted := 0
	for _, m := range movements {
		cls := r.classifyMovement(ctx, m)

		cm := &domain.ClassifiedMovement{Movement: *m, Classification: cls}
		if err := r.movements.Insert(ctx, cm); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store movement %s: %w", m.ID, err)
		}
		classified = append(classified, cm)
		observability.RecordMovementDetected(string(m.AssetKind))

		alert, created, err := r.engine.Admit(ctx, m, cls)
		if err != nil {
			return fmt.Errorf("admit movement %s: %w", m.ID, err)
		}
		if created {
			admitted++
			observability.RecordAlertAdmitted(string(alert.Severity))
			for _, sink := range r.sinks {
				sink.Publish(alert)
			}
		}
	}

	if r.archive != nil && len(classified) > 0 {
		if err := r.archive.ArchiveMovements(ctx, classified); err != nil {
			r.logger.Printf("archive write failed: %v", err)
		}
	}

	if err := r.cursor.Commit(ctx, to); err != nil {
		return err
	}

	if len(movements) > 0 {
		r.logger.Printf("scanned [%d, %d]: %d movements, %d alerts admitted", from, to, len(movements), admitted)
	}

	r.pruneRetention(ctx)
	return nil
}

// classifyMovement classifies the sending side; when it comes back unknown,
// the receiving side is tried and the more confident verdict wins.
func (r *Runner) classifyMovement(ctx context.Context, m *domain.Movement) domain.Classification {
	cls := r.classifier.Classify(ctx, m.FromAddress)
	if cls.Category == domain.CategoryUnknown {
		if alt := r.classifier.Classify(ctx, m.ToAddress); alt.Confidence > cls.Confidence {
			cls = alt
		}
	}
	return cls
}

// pruneRetention enforces the retention window on the queryable stores.
func (r *Runner) pruneRetention(ctx context.Context) {
	cutoff := time.Now().Add(-r.retentionAge).UnixMilli()

	if removed, err := r.movements.Prune(ctx, cutoff, r.retentionMax); err != nil {
		r.logger.Printf("movement prune failed: %v", err)
	} else if removed > 0 {
		r.logger.Printf("pruned %d movements past retention", removed)
	}

	if removed, err := r.alerts.Prune(ctx, cutoff, r.retentionMax); err != nil {
		r.logger.Printf("alert prune failed: %v", err)
	} else if removed > 0 {
		r.logger.Printf("pruned %d alerts past retention", removed)
	}

	if count, err := r.movements.Count(ctx); err == nil {
		observability.UpdateRetainedMovements(count)
	}
}

// Health returns a snapshot of the scan loop state.
func (r *Runner) Health(ctx context.Context) Health {
	r.mu.Lock()
	lastAt, lastErr := r.lastCycleAt, r.lastCycleErr
	r.mu.Unlock()

	count, _ := r.movements.Count(ctx)
	return Health{
		LastProcessedHeight: r.cursor.Height(),
		TrackedCount:        count,
		LastCycleAt:         lastAt,
		LastCycleError:      lastErr,
	}
}
