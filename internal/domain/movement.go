package domain

// AssetKind identifies which transfer surface a movement was observed on.
type AssetKind string

const (
	AssetNative AssetKind = "native" // base-asset transfers from block bodies
	AssetStable AssetKind = "stable" // stable-asset transfers from event logs
)

// String returns the string representation of AssetKind.
func (k AssetKind) String() string {
	return string(k)
}

// IsValid checks if the asset kind is a valid value.
func (k AssetKind) IsValid() bool {
	return k == AssetNative || k == AssetStable
}

// Movement represents a single qualifying high-value transfer observed on the
// ledger. Immutable once observed; ID is the dedup key across overlapping
// scan windows.
type Movement struct {
	ID           string    `json:"id"`         // deterministic hash, see idhash.ComputeMovementID
	AssetKind    AssetKind `json:"asset_kind"` // native | stable
	TxHash       string    `json:"tx_hash"`    // transaction hash on the ledger
	LogIndex     int       `json:"log_index"`  // log index for stable transfers, 0 for native
	FromAddress  string    `json:"from_address"`
	ToAddress    string    `json:"to_address"`
	Amount       float64   `json:"amount"`        // whole asset units (native units or stable units)
	ObservedAt   int64     `json:"observed_at"`   // Unix timestamp in milliseconds
	SourceHeight int64     `json:"source_height"` // ledger height the transfer was observed at
}
