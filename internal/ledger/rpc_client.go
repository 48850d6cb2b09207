package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"whale-watch/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Source using Ethereum HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint       string
	stableContract string // ERC-20 contract emitting the stable transfer logs
	client         *http.Client
	maxRetries     int
	retryDelay     time.Duration
	maxDelay       time.Duration
	backoffMult    float64
	requestID      atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new ledger RPC client. stableContract is the
// address whose Transfer logs form the stable transfer surface.
func NewHTTPClient(endpoint, stableContract string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:       endpoint,
		stableContract: strings.ToLower(stableContract),
		client:         &http.Client{Timeout: DefaultTimeout},
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		maxDelay:       DefaultMaxDelay,
		backoffMult:    DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Source = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		lastErr = c.doCall(ctx, payload, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrSourceUnavailable, method, c.maxRetries+1, lastErr)
}

// doCall performs a single HTTP round trip.
func (c *HTTPClient) doCall(ctx context.Context, payload []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// BlockNumber returns the current ledger tip height.
func (c *HTTPClient) BlockNumber(ctx context.Context) (int64, error) {
	var hexHeight string
	if err := c.call(ctx, "eth_blockNumber", nil, &hexHeight); err != nil {
		return 0, err
	}
	height, err := parseHexUint(hexHeight)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return height, nil
}

// GetTransfersInRange retrieves native and stable transfers for [from, to].
// The two retrievals run concurrently; any failure discards the whole batch.
func (c *HTTPClient) GetTransfersInRange(ctx context.Context, from, to int64) (*TransferBatch, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	var (
		wg        sync.WaitGroup
		native    []RawTransfer
		stable    []RawTransfer
		nativeErr error
		stableErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		native, nativeErr = c.fetchNativeTransfers(ctx, from, to)
	}()
	go func() {
		defer wg.Done()
		stable, stableErr = c.fetchStableTransfers(ctx, from, to)
	}()
	wg.Wait()

	if nativeErr != nil {
		return nil, fmt.Errorf("native transfers: %w", nativeErr)
	}
	if stableErr != nil {
		return nil, fmt.Errorf("stable transfers: %w", stableErr)
	}

	return &TransferBatch{Native: native, Stable: stable}, nil
}

// fetchNativeTransfers retrieves transfers from block bodies, one block per
// call.
func (c *HTTPClient) fetchNativeTransfers(ctx context.Context, from, to int64) ([]RawTransfer, error) {
	var transfers []RawTransfer
	for height := from; height <= to; height++ {
		var block rpcBlock
		if err := c.call(ctx, "eth_getBlockByNumber", []interface{}{formatHexUint(height), true}, &block); err != nil {
			return nil, err
		}

		ts, err := parseHexUint(block.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("block %d timestamp: %w", height, err)
		}

		for _, tx := range block.Transactions {
			if tx.To == "" {
				continue // contract creation
			}
			value, err := parseHexBig(tx.Value)
			if err != nil {
				return nil, fmt.Errorf("tx %s value: %w", tx.Hash, err)
			}
			if value.Sign() == 0 {
				continue
			}
			transfers = append(transfers, RawTransfer{
				TxHash:    tx.Hash,
				Height:    height,
				From:      strings.ToLower(tx.From),
				To:        strings.ToLower(tx.To),
				Value:     value,
				Timestamp: ts * 1000,
			})
		}
	}
	return transfers, nil
}

// fetchStableTransfers retrieves ERC-20 Transfer logs for the whole range in
// one call.
func (c *HTTPClient) fetchStableTransfers(ctx context.Context, from, to int64) ([]RawTransfer, error) {
	filter := map[string]interface{}{
		"address":   c.stableContract,
		"topics":    []string{TransferTopic},
		"fromBlock": formatHexUint(from),
		"toBlock":   formatHexUint(to),
	}

	var logs []rpcLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &logs); err != nil {
		return nil, err
	}

	var transfers []RawTransfer
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue // not an indexed Transfer(from, to, value)
		}
		height, err := parseHexUint(lg.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("log block number: %w", err)
		}
		logIndex, err := parseHexUint(lg.LogIndex)
		if err != nil {
			return nil, fmt.Errorf("log index: %w", err)
		}
		value, err := parseHexBig(lg.Data)
		if err != nil {
			return nil, fmt.Errorf("log %s data: %w", lg.TransactionHash, err)
		}
		transfers = append(transfers, RawTransfer{
			TxHash:    lg.TransactionHash,
			Height:    height,
			LogIndex:  int(logIndex),
			From:      topicAddress(lg.Topics[1]),
			To:        topicAddress(lg.Topics[2]),
			Value:     value,
			Timestamp: 0, // filled by the scanner from the cycle clock
		})
	}

	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].Height != transfers[j].Height {
			return transfers[i].Height < transfers[j].Height
		}
		return transfers[i].LogIndex < transfers[j].LogIndex
	})

	return transfers, nil
}

// IsContract reports whether the address has bytecode deployed.
func (c *HTTPClient) IsContract(ctx context.Context, address string) (bool, error) {
	var code string
	if err := c.call(ctx, "eth_getCode", []interface{}{strings.ToLower(address), "latest"}, &code); err != nil {
		return false, err
	}
	return code != "" && code != "0x", nil
}
