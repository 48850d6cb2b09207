package scanner

import (
	"context"
	"math/big"
	"testing"

	"whale-watch/internal/domain"
	"whale-watch/internal/ledger"
	"whale-watch/internal/ledger/stub"
)

// wei converts whole native units to base units (18 decimals).
func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// usdc converts whole stable units to base units (6 decimals).
func usdc(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

func nativeTransfer(height int64, logIndex int, txHash string, units int64) ledger.RawTransfer {
	return ledger.RawTransfer{
		TxHash:    txHash,
		Height:    height,
		LogIndex:  logIndex,
		From:      "0xfrom",
		To:        "0xto",
		Value:     wei(units),
		Timestamp: 1_700_000_000_000,
	}
}

func stableTransfer(height int64, logIndex int, txHash string, units int64) ledger.RawTransfer {
	return ledger.RawTransfer{
		TxHash:   txHash,
		Height:   height,
		LogIndex: logIndex,
		From:     "0xfrom",
		To:       "0xto",
		Value:    usdc(units),
	}
}

func TestScan_FiltersBelowThreshold(t *testing.T) {
	source := stub.NewSource()
	source.AddNative(nativeTransfer(1001, 0, "0xaa", 99))
	source.AddNative(nativeTransfer(1001, 1, "0xbb", 100))
	source.AddStable(stableTransfer(1002, 0, "0xcc", 50_000))
	source.AddStable(stableTransfer(1002, 1, "0xdd", 150_000))

	s := NewScanner(source, DefaultConfig())
	movements, err := s.Scan(context.Background(), 1001, 1005)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	if movements[0].TxHash != "0xbb" || movements[0].AssetKind != domain.AssetNative {
		t.Errorf("expected native 0xbb first, got %s %s", movements[0].AssetKind, movements[0].TxHash)
	}
	if movements[1].TxHash != "0xdd" || movements[1].AssetKind != domain.AssetStable {
		t.Errorf("expected stable 0xdd second, got %s %s", movements[1].AssetKind, movements[1].TxHash)
	}
}

func TestScan_IndependentThresholds(t *testing.T) {
	// 200 native units qualify while 200 stable units do not: the two
	// surfaces never share a threshold.
	source := stub.NewSource()
	source.AddNative(nativeTransfer(1001, 0, "0xaa", 200))
	source.AddStable(stableTransfer(1001, 0, "0xbb", 200))

	s := NewScanner(source, DefaultConfig())
	movements, err := s.Scan(context.Background(), 1001, 1001)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(movements) != 1 || movements[0].AssetKind != domain.AssetNative {
		t.Fatalf("expected only the native movement, got %d", len(movements))
	}
}

func TestScan_Deterministic(t *testing.T) {
	source := stub.NewSource()
	source.AddNative(nativeTransfer(1003, 2, "0xcc", 300))
	source.AddNative(nativeTransfer(1001, 0, "0xaa", 150))
	source.AddNative(nativeTransfer(1001, 1, "0xbb", 200))
	source.AddStable(stableTransfer(1002, 5, "0xee", 500_000))

	s := NewScanner(source, DefaultConfig())

	first, err := s.Scan(context.Background(), 1001, 1005)
	if err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	second, err := s.Scan(context.Background(), 1001, 1005)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("scan lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d: ID %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
	if err := ValidateOrdering(first[:3]); err != nil {
		t.Errorf("native movements out of order: %v", err)
	}
}

func TestScan_SourceFailure(t *testing.T) {
	source := stub.NewSource()
	source.FailNext(ledger.ErrSourceUnavailable)

	s := NewScanner(source, DefaultConfig())
	if _, err := s.Scan(context.Background(), 1001, 1005); err == nil {
		t.Fatal("expected error from failing source")
	}
}

func TestScan_StableObservedAtFromClock(t *testing.T) {
	source := stub.NewSource()
	source.AddStable(stableTransfer(1001, 0, "0xaa", 200_000))

	s := NewScanner(source, DefaultConfig())
	s.now = func() int64 { return 42 }

	movements, err := s.Scan(context.Background(), 1001, 1001)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if movements[0].ObservedAt != 42 {
		t.Errorf("expected observation clock fallback, got %d", movements[0].ObservedAt)
	}
}
