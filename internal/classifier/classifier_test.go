package classifier

import (
	"context"
	"fmt"
	"testing"

	"whale-watch/internal/domain"
	"whale-watch/internal/ledger/stub"
	"whale-watch/internal/storage/memory"
)

const krakenCold = "0x28c6c06298d161e1adf123044e835ffac5fdebc8"

func newTestHeuristic(t *testing.T) (*Heuristic, *stub.Source, *memory.MovementStore) {
	t.Helper()
	source := stub.NewSource()
	movements := memory.NewMovementStore()
	h := NewHeuristic(HeuristicOptions{
		Source:    source,
		Movements: movements,
		Now:       func() int64 { return 1_000_000_000 },
	})
	return h, source, movements
}

func TestHeuristic_KnownExchange(t *testing.T) {
	h, _, _ := newTestHeuristic(t)

	c := h.Classify(context.Background(), krakenCold)
	if c.Category != domain.CategoryExchangeCold {
		t.Errorf("Expected exchange_cold, got %s", c.Category)
	}
	if c.Confidence != 1.0 {
		t.Errorf("Known address should have confidence 1.0, got %f", c.Confidence)
	}
	if c.KnownEntity != "Kraken 11" {
		t.Errorf("Expected known entity label, got %q", c.KnownEntity)
	}
}

func TestHeuristic_KnownAddressCaseInsensitive(t *testing.T) {
	h, _, _ := newTestHeuristic(t)

	upper := "0x28C6C06298D161E1ADF123044E835FFAC5FDEBC8"
	c := h.Classify(context.Background(), upper)
	if c.Category != domain.CategoryExchangeCold || c.Confidence != 1.0 {
		t.Errorf("Mixed-case known address should classify identically, got %+v", c)
	}
}

func TestHeuristic_ContractBytecode(t *testing.T) {
	h, source, _ := newTestHeuristic(t)
	source.MarkContract("0xabc0000000000000000000000000000000000001")

	c := h.Classify(context.Background(), "0xabc0000000000000000000000000000000000001")
	if c.Category != domain.CategoryContract {
		t.Errorf("Expected contract, got %s", c.Category)
	}
	if c.Confidence != 0.8 {
		t.Errorf("Bytecode-detected contract should have confidence 0.8, got %f", c.Confidence)
	}
}

func TestHeuristic_UnknownDefault(t *testing.T) {
	h, _, _ := newTestHeuristic(t)

	c := h.Classify(context.Background(), "0xdead000000000000000000000000000000000001")
	if c.Category != domain.CategoryUnknown {
		t.Errorf("Expected unknown, got %s", c.Category)
	}
	if c.Confidence != 0.3 {
		t.Errorf("Expected default confidence 0.3, got %f", c.Confidence)
	}
}

func TestHeuristic_ConsolidationPattern(t *testing.T) {
	h, _, movements := newTestHeuristic(t)
	ctx := context.Background()

	// Ten transfers to the same two counterparties: consolidation shape.
	addr := "0xc01d000000000000000000000000000000000001"
	for i := 0; i < 10; i++ {
		to := "0xsink0000000000000000000000000000000000a1"
		if i%2 == 0 {
			to = "0xsink0000000000000000000000000000000000a2"
		}
		m := &domain.ClassifiedMovement{
			Movement: domain.Movement{
				ID:          fmt.Sprintf("m%d", i),
				AssetKind:   domain.AssetNative,
				FromAddress: addr,
				ToAddress:   to,
				Amount:      200,
				ObservedAt:  999_999_000,
			},
		}
		if err := movements.Insert(ctx, m); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	c := h.Classify(ctx, addr)
	if c.Category != domain.CategoryExchangeCold {
		t.Errorf("Consolidating address should classify exchange_cold, got %s", c.Category)
	}
	if c.Confidence > 0.7 {
		t.Errorf("Heuristic confidence must be capped at 0.7, got %f", c.Confidence)
	}
	if c.Confidence < domain.ConfidenceFloor {
		t.Errorf("Non-unknown category requires confidence >= floor, got %f", c.Confidence)
	}
}

func TestHeuristic_CachesVerdict(t *testing.T) {
	h, source, _ := newTestHeuristic(t)
	ctx := context.Background()

	addr := "0xbeef000000000000000000000000000000000001"
	first := h.Classify(ctx, addr)

	// A bytecode change after the first verdict must not alter the cached
	// classification within the retention window.
	source.MarkContract(addr)
	second := h.Classify(ctx, addr)

	if first != second {
		t.Errorf("Classification should be cached per address: %+v != %+v", first, second)
	}
}

func TestHeuristic_CacheBounded(t *testing.T) {
	source := stub.NewSource()
	h := NewHeuristic(HeuristicOptions{
		Source: source,
		Config: HeuristicConfig{CacheEntries: 2},
		Now:    func() int64 { return 1_000_000_000 },
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		h.Classify(ctx, fmt.Sprintf("0xbeef%036d", i))
	}

	h.mu.RLock()
	size := len(h.cache)
	h.mu.RUnlock()
	if size > 2 {
		t.Errorf("verdict cache grew past its bound: %d entries", size)
	}
}
