package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePredictionID computes a deterministic prediction ID using SHA256.
// Formula: SHA256(agent_id|movement_id|claim|submitted_at)
// Returns hex-encoded hash (64 characters).
func ComputePredictionID(agentID, movementID, claim string, submittedAt int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d", agentID, movementID, claim, submittedAt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
