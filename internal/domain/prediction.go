package domain

// PredictionState is the lifecycle state of a staked prediction.
type PredictionState string

const (
	PredictionOpen             PredictionState = "open"
	PredictionSettledCorrect   PredictionState = "settled_correct"
	PredictionSettledIncorrect PredictionState = "settled_incorrect"
)

// String returns the string representation of PredictionState.
func (s PredictionState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s PredictionState) IsValid() bool {
	switch s {
	case PredictionOpen, PredictionSettledCorrect, PredictionSettledIncorrect:
		return true
	}
	return false
}

// IsTerminal reports whether the state is a settled one.
func (s PredictionState) IsTerminal() bool {
	return s == PredictionSettledCorrect || s == PredictionSettledIncorrect
}

// Verdict is the settlement authority's ruling on a prediction.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
)

// IsValid checks if the verdict is a valid value.
func (v Verdict) IsValid() bool {
	return v == VerdictCorrect || v == VerdictIncorrect
}

// State returns the terminal prediction state a verdict maps to.
func (v Verdict) State() PredictionState {
	if v == VerdictCorrect {
		return PredictionSettledCorrect
	}
	return PredictionSettledIncorrect
}

// Prediction is a directional claim staked against a detected movement.
// MovementID is a non-owning reference; the movement must exist in the
// retained window at creation time. Settlement transitions are terminal and
// happen exactly once.
type Prediction struct {
	ID              string          `json:"prediction_id"`
	AgentID         string          `json:"agent_id"`
	MovementID      string          `json:"movement_id"`
	Claim           string          `json:"claim"`         // opaque outcome label, e.g. "will_pump_5_percent"
	StakedAmount    int64           `json:"staked_amount"` // stable-asset base units
	State           PredictionState `json:"state"`
	Reward          int64           `json:"reward"`                      // accrued on settlement, 0 while open
	StakeTxRef      string          `json:"stake_tx_ref"`                // settlement ledger reference for the stake lock
	SettlementTxRef string          `json:"settlement_tx_ref,omitempty"` // settlement ledger reference for the verdict, "" while open
	CreatedAt       int64           `json:"created_at"`                  // Unix timestamp in milliseconds
	SettledAt       int64           `json:"settled_at,omitempty"`        // Unix timestamp in milliseconds, 0 while open
}
