package settlement

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/idhash"
	"whale-watch/internal/observability"
	"whale-watch/internal/storage"
)

// DefaultStalenessBound is how far back a movement may lie and still accept
// predictions against it.
const DefaultStalenessBound = time.Hour

// lockStripes is the size of the per-prediction lock table. Settlements for
// the same prediction ID serialize; distinct IDs almost always proceed in
// parallel.
const lockStripes = 64

// Orchestrator owns the prediction lifecycle: stake lock on submission,
// exactly-once verdict submission on settlement.
type Orchestrator struct {
	movements   storage.MovementStore
	predictions storage.PredictionStore
	ledger      SettlementLedger
	reward      RewardPolicy
	staleness   time.Duration
	now         func() int64
	logger      *log.Logger

	locks [lockStripes]sync.Mutex
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Movements   storage.MovementStore
	Predictions storage.PredictionStore
	Ledger      SettlementLedger
	Reward      RewardPolicy // defaults to DefaultRewardPolicy
	Staleness   time.Duration
	Now         func() int64 // current time in ms; defaults to wall clock
	Logger      *log.Logger
}

// NewOrchestrator creates a prediction-settlement orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	reward := opts.Reward
	if reward == nil {
		reward = DefaultRewardPolicy
	}
	staleness := opts.Staleness
	if staleness == 0 {
		staleness = DefaultStalenessBound
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		movements:   opts.Movements,
		predictions: opts.Predictions,
		ledger:      opts.Ledger,
		reward:      reward,
		staleness:   staleness,
		now:         now,
		logger:      logger,
	}
}

// Submit validates a prediction request, locks the stake, and records the
// open prediction. The movement must exist in the retained window and be
// recent enough; validation failures never touch the ledger.
func (o *Orchestrator) Submit(ctx context.Context, agentID, movementID, claim string, stakedAmount int64) (*domain.Prediction, error) {
	if agentID == "" || claim == "" {
		return nil, fmt.Errorf("%w: agent_id and claim are required", storage.ErrInvalidInput)
	}
	if stakedAmount <= 0 {
		return nil, fmt.Errorf("%w: staked_amount must be positive", storage.ErrInvalidInput)
	}

	movement, err := o.movements.GetByID(ctx, movementID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMovement, movementID)
		}
		return nil, fmt.Errorf("lookup movement %s: %w", movementID, err)
	}

	submittedAt := o.now()
	if submittedAt-movement.ObservedAt > o.staleness.Milliseconds() {
		return nil, fmt.Errorf("%w: %s observed %dms ago", ErrStaleMovement, movementID, submittedAt-movement.ObservedAt)
	}

	id := idhash.ComputePredictionID(agentID, movementID, claim, submittedAt)

	stakeRef, err := o.ledger.LockStake(ctx, agentID, stakedAmount, id)
	if err != nil {
		return nil, fmt.Errorf("lock stake for prediction %s: %w", id, err)
	}

	prediction := &domain.Prediction{
		ID:           id,
		AgentID:      agentID,
		MovementID:   movementID,
		Claim:        claim,
		StakedAmount: stakedAmount,
		State:        domain.PredictionOpen,
		StakeTxRef:   stakeRef,
		CreatedAt:    submittedAt,
	}
	if err := o.predictions.Insert(ctx, prediction); err != nil {
		return nil, fmt.Errorf("persist prediction %s (stake %s already locked): %w", id, stakeRef, err)
	}

	observability.RecordPredictionSubmitted()
	o.logger.Printf("prediction %s open: agent %s staked %d on movement %s", id, agentID, stakedAmount, movementID)
	return prediction, nil
}

// Settle applies a verdict to an open prediction. Idempotent per prediction
// ID: the first call submits the verdict to the ledger and accrues the
// reward; any later call returns the recorded outcome without touching the
// ledger again.
func (o *Orchestrator) Settle(ctx context.Context, id string, verdict domain.Verdict) (*domain.Prediction, error) {
	if !verdict.IsValid() {
		return nil, fmt.Errorf("%w: unknown verdict %q", storage.ErrInvalidInput, verdict)
	}

	lock := &o.locks[stripeFor(id)]
	lock.Lock()
	defer lock.Unlock()

	prediction, err := o.predictions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prediction.State.IsTerminal() {
		return prediction, nil
	}

	payoutRef, err := o.ledger.SubmitVerdict(ctx, id, verdict)
	if err != nil {
		return nil, fmt.Errorf("submit verdict for prediction %s: %w", id, err)
	}

	reward := o.reward(prediction.StakedAmount, verdict)
	settledAt := o.now()
	if err := o.predictions.Settle(ctx, id, verdict.State(), reward, payoutRef, settledAt); err != nil {
		return nil, fmt.Errorf("record settlement for prediction %s (verdict %s submitted): %w", id, payoutRef, err)
	}

	prediction.State = verdict.State()
	prediction.Reward = reward
	prediction.SettlementTxRef = payoutRef
	prediction.SettledAt = settledAt

	observability.RecordPredictionSettled(string(verdict))
	o.logger.Printf("prediction %s settled %s, reward %d", id, verdict, reward)
	return prediction, nil
}

// Get returns a prediction by ID.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Prediction, error) {
	return o.predictions.GetByID(ctx, id)
}

func stripeFor(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	// Reduce in uint32 space; converting the sum to int first goes
	// negative where int is 32 bits.
	return int(h.Sum32() % uint32(lockStripes))
}
