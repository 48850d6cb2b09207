package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"whale-watch/internal/domain"
)

// ComputeMovementID computes a deterministic movement ID using SHA256.
// Formula: SHA256(asset_kind|tx_hash|log_index)
// Returns hex-encoded hash (64 characters).
//
// The same transfer re-observed across overlapping scan windows maps to the
// same ID; this is the dedup key the alert engine relies on.
func ComputeMovementID(kind domain.AssetKind, txHash string, logIndex int) string {
	data := fmt.Sprintf("%s|%s|%d", string(kind), txHash, logIndex)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
