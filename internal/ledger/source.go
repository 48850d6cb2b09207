// Package ledger provides access to the observed public ledger.
package ledger

import (
	"context"
	"errors"
	"math/big"
)

// ErrSourceUnavailable indicates a transient retrieval failure. Callers must
// retry without advancing the cursor; it is distinct from an empty result.
var ErrSourceUnavailable = errors.New("ledger source unavailable")

// RawTransfer is a single transfer record as observed on the ledger,
// before threshold filtering. Value is in the asset's base units.
type RawTransfer struct {
	TxHash    string
	Height    int64
	LogIndex  int // index within the block's log stream, 0 for native transfers
	From      string
	To        string
	Value     *big.Int
	Timestamp int64 // block timestamp in milliseconds
}

// TransferBatch holds the two independent transfer surfaces for a height
// range. Either slice may be empty; a retrieval failure surfaces as an error,
// never as an empty batch.
type TransferBatch struct {
	Native []RawTransfer
	Stable []RawTransfer
}

// Source is the ledger data capability consumed by the scanner and the
// classifier. Implementations must surface retrieval failures distinctly
// from empty results.
type Source interface {
	// BlockNumber returns the current ledger tip height.
	BlockNumber(ctx context.Context) (int64, error)

	// GetTransfersInRange retrieves native and stable transfers for
	// heights [from, to] inclusive. The two retrievals run independently;
	// any failure fails the whole batch.
	GetTransfersInRange(ctx context.Context, from, to int64) (*TransferBatch, error)

	// IsContract reports whether the address has bytecode deployed.
	IsContract(ctx context.Context, address string) (bool, error)
}
