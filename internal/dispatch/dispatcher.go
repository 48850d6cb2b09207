package dispatch

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/observability"
)

// Dispatcher defaults.
const (
	DefaultQueueSize    = 1024
	DefaultWorkers      = 8
	DefaultMaxAttempts  = 5
	DefaultBaseBackoff  = 1 * time.Second
	DefaultMaxBackoff   = 30 * time.Second
	workerQueueCapacity = 256
)

// job is one subscription-alert delivery in flight.
type job struct {
	sub     *domain.Subscription
	alert   *domain.Alert
	attempt int
}

// Dispatcher fans admitted alerts out to matching subscribers through a
// bounded admission queue and a fixed pool of delivery workers. Jobs are
// routed to workers by subscription ID, so deliveries to one subscriber are
// serial and preserve admission order while distinct subscribers proceed in
// parallel. A stuck or failing target only ever occupies its own lane.
type Dispatcher struct {
	registry    *Registry
	deliverer   *Deliverer
	logger      *log.Logger
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	queue   chan *domain.Alert
	workers []chan job
	wg      sync.WaitGroup

	mu      sync.Mutex
	history []domain.DeliveryAttempt
}

// historyCapacity bounds the in-memory delivery receipt log.
const historyCapacity = 1000

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Registry    *Registry
	Deliverer   *Deliverer
	QueueSize   int
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Logger      *log.Logger
}

// NewDispatcher creates a Dispatcher. Call Run to start its workers.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = DefaultQueueSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseBackoff := opts.BaseBackoff
	if baseBackoff == 0 {
		baseBackoff = DefaultBaseBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = DefaultMaxBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	lanes := make([]chan job, workers)
	for i := range lanes {
		lanes[i] = make(chan job, workerQueueCapacity)
	}

	return &Dispatcher{
		registry:    opts.Registry,
		deliverer:   opts.Deliverer,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		queue:       make(chan *domain.Alert, queueSize),
		workers:     lanes,
	}
}

// Publish enqueues an alert for fan-out. It never blocks the scan loop: when
// the admission queue is full the alert is dropped and counted, since the
// retained window still holds it for pull-based consumers.
func (d *Dispatcher) Publish(alert *domain.Alert) {
	select {
	case d.queue <- alert:
		observability.UpdateDispatchQueueDepth(len(d.queue))
	default:
		observability.RecordDeliveryDropped()
		d.logger.Printf("admission queue full, dropping alert %s", alert.ID)
	}
}

// Run starts the fan-out loop and the delivery workers. It blocks until the
// context is cancelled and every worker has drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Printf("dispatcher starting, %d workers, max %d attempts", len(d.workers), d.maxAttempts)

	for i := range d.workers {
		d.wg.Add(1)
		go d.worker(ctx, d.workers[i])
	}

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.Println("dispatcher stopped")
			return ctx.Err()
		case alert := <-d.queue:
			observability.UpdateDispatchQueueDepth(len(d.queue))
			d.fanOut(ctx, alert)
		}
	}
}

// fanOut routes one alert to the lane of every matching active subscription.
func (d *Dispatcher) fanOut(ctx context.Context, alert *domain.Alert) {
	for _, sub := range d.registry.Active() {
		if !sub.Filter.Matches(alert) {
			continue
		}
		d.enqueue(ctx, job{sub: sub, alert: alert, attempt: 1})
	}
}

// enqueue places a job on its subscription's lane. Routing by subscription ID
// keeps per-subscriber delivery serial.
func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	lane := d.workers[laneFor(j.sub.ID, len(d.workers))]
	select {
	case lane <- j:
	case <-ctx.Done():
	}
}

func laneFor(subscriptionID string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(subscriptionID))
	// Reduce in uint32 space; converting the sum to int first goes
	// negative where int is 32 bits.
	return int(h.Sum32() % uint32(lanes))
}

// worker processes one lane. Each job is a single delivery attempt; failures
// below the attempt cap are rescheduled onto the same lane after backoff.
func (d *Dispatcher) worker(ctx context.Context, lane chan job) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-lane:
			d.attempt(ctx, j)
		}
	}
}

// attempt performs one delivery attempt and drives the retry state machine.
func (d *Dispatcher) attempt(ctx context.Context, j job) {
	// Revocation check happens immediately before the attempt: a
	// subscription revoked while the job sat queued never gets delivered.
	if !d.registry.IsActive(j.sub.ID) {
		return
	}

	start := time.Now()
	err := d.deliverer.Deliver(ctx, j.sub, j.alert)
	seconds := time.Since(start).Seconds()

	if err == nil {
		observability.RecordDelivery("delivered", seconds)
		d.record(j, domain.DeliveryDelivered, 0)
		return
	}
	if ctx.Err() != nil {
		return
	}

	observability.RecordDelivery("failed", seconds)

	if j.attempt >= d.maxAttempts {
		observability.RecordDeliveryDropped()
		d.record(j, domain.DeliveryFailed, 0)
		d.logger.Printf("delivery of alert %s to subscription %s abandoned after %d attempts: %v",
			j.alert.ID, j.sub.ID, j.attempt, err)
		return
	}

	delay := d.backoff(j.attempt)
	d.record(j, domain.DeliveryPending, time.Now().Add(delay).UnixMilli())
	d.logger.Printf("delivery of alert %s to subscription %s failed (attempt %d/%d), retrying in %v: %v",
		j.alert.ID, j.sub.ID, j.attempt, d.maxAttempts, delay, err)

	next := job{sub: j.sub, alert: j.alert, attempt: j.attempt + 1}
	time.AfterFunc(delay, func() {
		d.enqueue(ctx, next)
	})
}

// backoff returns the delay before attempt n+1: base * 2^(n-1), capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxBackoff {
			return d.maxBackoff
		}
	}
	if delay > d.maxBackoff {
		return d.maxBackoff
	}
	return delay
}

// record appends a delivery receipt to the bounded in-memory history.
func (d *Dispatcher) record(j job, outcome domain.DeliveryOutcome, nextRetryAt int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, domain.DeliveryAttempt{
		SubscriptionID: j.sub.ID,
		AlertID:        j.alert.ID,
		AttemptNo:      j.attempt,
		Outcome:        outcome,
		NextRetryAt:    nextRetryAt,
	})
	if len(d.history) > historyCapacity {
		d.history = d.history[len(d.history)-historyCapacity:]
	}
}

// History returns a snapshot of recent delivery receipts, oldest first.
func (d *Dispatcher) History() []domain.DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.DeliveryAttempt(nil), d.history...)
}
