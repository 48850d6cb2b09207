package settlement

import (
	"context"
	"fmt"
	"sync"

	"whale-watch/internal/domain"
)

// MemoryLedger is an in-process SettlementLedger for development and tests.
// Each agent starts with a fixed balance; stakes are escrowed on lock and
// paid out per the reward policy on a correct verdict.
type MemoryLedger struct {
	reward         RewardPolicy
	initialBalance int64

	mu       sync.Mutex
	balances map[string]int64
	stakes   map[string]memStake // keyed by prediction ID
	seq      int
}

type memStake struct {
	agentID string
	amount  int64
}

// NewMemoryLedger creates a ledger that grants every agent initialBalance on
// first contact.
func NewMemoryLedger(initialBalance int64, reward RewardPolicy) *MemoryLedger {
	if reward == nil {
		reward = DefaultRewardPolicy
	}
	return &MemoryLedger{
		reward:         reward,
		initialBalance: initialBalance,
		balances:       make(map[string]int64),
		stakes:         make(map[string]memStake),
	}
}

// Compile-time interface check.
var _ SettlementLedger = (*MemoryLedger)(nil)

// LockStake escrows the stake against the agent's balance.
func (l *MemoryLedger) LockStake(_ context.Context, agentID string, amount int64, predictionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, seen := l.balances[agentID]
	if !seen {
		balance = l.initialBalance
	}
	if amount > balance {
		return "", fmt.Errorf("%w: agent %s has %d, needs %d", ErrInsufficientFunds, agentID, balance, amount)
	}

	l.balances[agentID] = balance - amount
	l.stakes[predictionID] = memStake{agentID: agentID, amount: amount}
	l.seq++
	return fmt.Sprintf("stake-%06d", l.seq), nil
}

// SubmitVerdict records the outcome and credits the payout for a correct
// prediction.
func (l *MemoryLedger) SubmitVerdict(_ context.Context, predictionID string, verdict domain.Verdict) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stake, ok := l.stakes[predictionID]
	if !ok {
		return "", fmt.Errorf("no stake locked for prediction %s", predictionID)
	}
	delete(l.stakes, predictionID)

	if payout := l.reward(stake.amount, verdict); payout > 0 {
		l.balances[stake.agentID] += payout
	}
	l.seq++
	return fmt.Sprintf("payout-%06d", l.seq), nil
}

// Balance returns the agent's current balance.
func (l *MemoryLedger) Balance(agentID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance, seen := l.balances[agentID]; seen {
		return balance
	}
	return l.initialBalance
}
