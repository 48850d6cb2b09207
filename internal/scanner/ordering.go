package scanner

import (
	"errors"
	"sort"

	"whale-watch/internal/domain"
)

// ErrInvalidOrdering is returned when movements are not properly ordered.
var ErrInvalidOrdering = errors.New("movements are not in deterministic order")

// SortMovements orders movements by (source_height ASC, log_index ASC,
// tx_hash ASC). This provides deterministic ordering within one asset kind
// given an unchanged ledger response; required for dedup and reproducible
// tests.
func SortMovements(movements []*domain.Movement) {
	sort.Slice(movements, func(i, j int) bool {
		return compareMovements(movements[i], movements[j]) < 0
	})
}

// ValidateOrdering checks if movements are properly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateOrdering(movements []*domain.Movement) error {
	for i := 1; i < len(movements); i++ {
		if compareMovements(movements[i-1], movements[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareMovements returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (source_height ASC, log_index ASC, tx_hash ASC)
func compareMovements(a, b *domain.Movement) int {
	if a.SourceHeight != b.SourceHeight {
		if a.SourceHeight < b.SourceHeight {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	if a.TxHash != b.TxHash {
		if a.TxHash < b.TxHash {
			return -1
		}
		return 1
	}
	return 0
}
