package domain

// Severity is the graded urgency label attached to an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns a numeric rank for severity comparison. Higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Recommended actions per severity. Advisory text only, no side effect.
const (
	ActionCritical = "PREPARE_FOR_VOLATILITY | TIGHTEN_STOPS | MONITOR_CLOSELY"
	ActionHigh     = "INCREASE_MONITORING | PREPARE_FOR_MOVEMENT"
	ActionMedium   = "MONITOR | TRACK_ENTRY_POINTS"
	ActionLow      = "INFORMATIONAL | NO_IMMEDIATE_ACTION"
)

// RecommendedAction returns the fixed advisory text for a severity.
func RecommendedAction(s Severity) string {
	switch s {
	case SeverityCritical:
		return ActionCritical
	case SeverityHigh:
		return ActionHigh
	case SeverityMedium:
		return ActionMedium
	default:
		return ActionLow
	}
}

// Alert is derived from exactly one classified movement. AlertID equals the
// movement ID; at most one alert exists per movement within the retention
// window.
type Alert struct {
	ID                string         `json:"id"` // == Movement.ID
	Movement          Movement       `json:"movement"`
	Classification    Classification `json:"classification"`
	Severity          Severity       `json:"severity"`
	RecommendedAction string         `json:"recommended_action"`
	CreatedAt         int64          `json:"created_at"` // Unix timestamp in milliseconds
}
