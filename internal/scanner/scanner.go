// Package scanner observes the ledger for qualifying high-value transfers.
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/idhash"
	"whale-watch/internal/ledger"
)

// Default thresholds, in whole asset units.
const (
	DefaultNativeThreshold = 100
	DefaultStableThreshold = 100_000
	DefaultNativeDecimals  = 18
	DefaultStableDecimals  = 6
)

// Config holds scanner thresholds and unit conversions. The two thresholds
// are independent: native and stable transfers are evaluated separately.
type Config struct {
	NativeThreshold float64
	StableThreshold float64
	NativeDecimals  int
	StableDecimals  int
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{
		NativeThreshold: DefaultNativeThreshold,
		StableThreshold: DefaultStableThreshold,
		NativeDecimals:  DefaultNativeDecimals,
		StableDecimals:  DefaultStableDecimals,
	}
}

// Scanner retrieves transfers for a height range and filters them into
// movements. Scan is deterministic given an unchanged ledger response.
type Scanner struct {
	source ledger.Source
	config Config
	now    func() int64
}

// NewScanner creates a movement scanner.
func NewScanner(source ledger.Source, config Config) *Scanner {
	if config.NativeThreshold == 0 {
		config.NativeThreshold = DefaultNativeThreshold
	}
	if config.StableThreshold == 0 {
		config.StableThreshold = DefaultStableThreshold
	}
	if config.NativeDecimals == 0 {
		config.NativeDecimals = DefaultNativeDecimals
	}
	if config.StableDecimals == 0 {
		config.StableDecimals = DefaultStableDecimals
	}
	return &Scanner{
		source: source,
		config: config,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Scan retrieves and filters transfers for [from, to]. Any retrieval failure
// fails the whole cycle; partial results are discarded, never committed.
// Output is ordered within each asset kind by (height, log index, tx hash);
// native movements precede stable movements.
func (s *Scanner) Scan(ctx context.Context, from, to int64) ([]*domain.Movement, error) {
	batch, err := s.source.GetTransfersInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("retrieve transfers [%d, %d]: %w", from, to, err)
	}

	native := s.filter(batch.Native, domain.AssetNative, s.config.NativeThreshold, s.config.NativeDecimals)
	stable := s.filter(batch.Stable, domain.AssetStable, s.config.StableThreshold, s.config.StableDecimals)

	SortMovements(native)
	SortMovements(stable)

	return append(native, stable...), nil
}

// filter converts raw transfers to movements, dropping those below the
// threshold.
func (s *Scanner) filter(transfers []ledger.RawTransfer, kind domain.AssetKind, threshold float64, decimals int) []*domain.Movement {
	var movements []*domain.Movement
	for _, t := range transfers {
		amount := toUnits(t.Value, decimals)
		if amount < threshold {
			continue
		}
		observedAt := t.Timestamp
		if observedAt == 0 {
			observedAt = s.now()
		}
		movements = append(movements, &domain.Movement{
			ID:           idhash.ComputeMovementID(kind, t.TxHash, t.LogIndex),
			AssetKind:    kind,
			TxHash:       t.TxHash,
			LogIndex:     t.LogIndex,
			FromAddress:  t.From,
			ToAddress:    t.To,
			Amount:       amount,
			ObservedAt:   observedAt,
			SourceHeight: t.Height,
		})
	}
	return movements
}

// toUnits converts a base-unit value to whole asset units.
func toUnits(value *big.Int, decimals int) float64 {
	if value == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(value), scale).Float64()
	return units
}
