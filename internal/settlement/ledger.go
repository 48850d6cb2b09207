// Package settlement manages prediction stakes and verdicts against an
// external settlement ledger.
package settlement

import (
	"context"
	"errors"

	"whale-watch/internal/domain"
)

// Sentinel errors for prediction validation and ledger outcomes.
var (
	// ErrInsufficientFunds means the agent's balance cannot cover the stake.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownMovement means the referenced movement is not in the
	// retained window.
	ErrUnknownMovement = errors.New("unknown movement")
	// ErrStaleMovement means the referenced movement is too old to accept
	// predictions against.
	ErrStaleMovement = errors.New("stale movement")
)

// SettlementLedger is the external stake/payout authority. A returned tx ref
// is assumed durable: the ledger applies each call at least once.
type SettlementLedger interface {
	// LockStake escrows the stake for a prediction and returns a tx ref.
	// Fails with ErrInsufficientFunds when the agent cannot cover it.
	LockStake(ctx context.Context, agentID string, amount int64, predictionID string) (string, error)

	// SubmitVerdict reports the prediction outcome and returns the payout
	// tx ref.
	SubmitVerdict(ctx context.Context, predictionID string, verdict domain.Verdict) (string, error)
}

// RewardPolicy computes the reward for a settled prediction. The payout
// formula belongs to the external ledger's contract, so it is injected
// rather than hardcoded.
type RewardPolicy func(stakedAmount int64, verdict domain.Verdict) int64

// DefaultRewardPolicy pays double the stake on a correct prediction and
// nothing on an incorrect one; the stake itself is forfeit either way.
func DefaultRewardPolicy(stakedAmount int64, verdict domain.Verdict) int64 {
	if verdict == domain.VerdictCorrect {
		return 2 * stakedAmount
	}
	return 0
}
