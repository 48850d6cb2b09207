package alerting

import "whale-watch/internal/domain"

// Default amount bands, in whole asset units.
const (
	DefaultNativeHigh     = 250
	DefaultNativeVeryHigh = 500
	DefaultStableHigh     = 250_000
	DefaultStableVeryHigh = 500_000
)

// SeverityConfig holds the per-asset amount bands the grading table uses.
// Every movement reaching the engine already passed the scanner threshold, so
// "low" is any qualifying amount below the high band.
type SeverityConfig struct {
	NativeHigh     float64
	NativeVeryHigh float64
	StableHigh     float64
	StableVeryHigh float64
}

// DefaultSeverityConfig returns the default bands.
func DefaultSeverityConfig() SeverityConfig {
	return SeverityConfig{
		NativeHigh:     DefaultNativeHigh,
		NativeVeryHigh: DefaultNativeVeryHigh,
		StableHigh:     DefaultStableHigh,
		StableVeryHigh: DefaultStableVeryHigh,
	}
}

// band is the amount tier a movement falls into.
type band int

const (
	bandLow band = iota
	bandHigh
	bandVeryHigh
)

func (c SeverityConfig) bandOf(m *domain.Movement) band {
	high, veryHigh := c.NativeHigh, c.NativeVeryHigh
	if m.AssetKind == domain.AssetStable {
		high, veryHigh = c.StableHigh, c.StableVeryHigh
	}
	switch {
	case m.Amount >= veryHigh:
		return bandVeryHigh
	case m.Amount >= high:
		return bandHigh
	default:
		return bandLow
	}
}

// Grade maps a classified movement to a severity. Pure function of the amount
// band and the counterparty category; for a fixed category, severity never
// decreases as the amount grows.
func (c SeverityConfig) Grade(m *domain.Movement, cls domain.Classification) domain.Severity {
	b := c.bandOf(m)

	switch cls.Category {
	case domain.CategoryExchangeCold:
		switch b {
		case bandVeryHigh:
			return domain.SeverityCritical
		case bandHigh:
			return domain.SeverityHigh
		default:
			return domain.SeverityLow
		}
	case domain.CategoryContract:
		return domain.SeverityMedium
	default: // private, unknown
		switch b {
		case bandVeryHigh:
			return domain.SeverityHigh
		case bandHigh:
			return domain.SeverityMedium
		default:
			return domain.SeverityLow
		}
	}
}
