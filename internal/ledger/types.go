package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// ERC-20 Transfer event signature: keccak256("Transfer(address,address,uint256)").
const TransferTopic = "0xddf252ad1be2c89b69c2b06830e3606e948a6837273b988c8d9168cf7d3c9f6e"

// rpcBlock is the eth_getBlockByNumber result with full transaction bodies.
type rpcBlock struct {
	Number       string           `json:"number"`
	Timestamp    string           `json:"timestamp"`
	Transactions []rpcTransaction `json:"transactions"`
}

// rpcTransaction is a transaction body within a block.
type rpcTransaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// rpcLog is an eth_getLogs entry.
type rpcLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}

// parseHexUint parses a 0x-prefixed hex quantity into int64.
func parseHexUint(s string) (int64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("hex quantity %q overflows int64", s)
	}
	return v.Int64(), nil
}

// parseHexBig parses a 0x-prefixed hex quantity into a big.Int.
func parseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}

// topicAddress extracts the 20-byte address from a 32-byte indexed topic.
func topicAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

// formatHexUint formats an int64 as a 0x-prefixed hex quantity.
func formatHexUint(v int64) string {
	return fmt.Sprintf("0x%x", v)
}
