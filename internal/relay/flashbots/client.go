// Package flashbots is a JSON-RPC client for a Flashbots-compatible bundle
// relay: eth_callBundle for simulation and eth_sendBundle for submission.
package flashbots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// DefaultRelayURL is the Flashbots mainnet relay.
const DefaultRelayURL = "https://relay.flashbots.net"

// DigestSigner signs 32-byte digests with the relay reputation key.
type DigestSigner interface {
	Address() common.Address
	SignDigest(digest []byte) ([]byte, error)
}

// Client talks to a bundle relay. It is safe for concurrent use.
type Client struct {
	url        string
	signer     DigestSigner
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

var _ domain.Relay = (*Client)(nil)

// NewClient creates a relay client. timeout bounds each HTTP round trip.
func NewClient(url string, signer DigestSigner, timeout time.Duration, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultRelayURL
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		url:    url,
		signer: signer,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "flashbots")),
	}
}

// SignBundle encodes signed transactions in bundle order.
func (c *Client) SignBundle(txs []*types.Transaction) (domain.SignedBundle, error) {
	bundle := domain.SignedBundle{RawTxs: make([]string, 0, len(txs))}
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return domain.SignedBundle{}, fmt.Errorf("flashbots: encode tx %s: %w", tx.Hash().Hex(), err)
		}
		bundle.RawTxs = append(bundle.RawTxs, hexutil.Encode(raw))
	}
	return bundle, nil
}

type callBundleResult struct {
	BundleHash   string `json:"bundleHash"`
	CoinbaseDiff string `json:"coinbaseDiff"`
	TotalGasUsed uint64 `json:"totalGasUsed"`
	Results      []struct {
		TxHash  string `json:"txHash"`
		GasUsed uint64 `json:"gasUsed"`
		Error   string `json:"error"`
		Revert  string `json:"revert"`
	} `json:"results"`
}

// Simulate runs the bundle on top of the latest state as if mined in block.
func (c *Client) Simulate(ctx context.Context, bundle domain.SignedBundle, block uint64) (domain.SimulationResult, error) {
	params := []any{map[string]any{
		"txs":              bundle.RawTxs,
		"blockNumber":      hexutil.EncodeUint64(block),
		"stateBlockNumber": "latest",
	}}
	var res callBundleResult
	if err := c.call(ctx, "eth_callBundle", params, &res); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return domain.SimulationResult{Error: rpcErr.Message}, nil
		}
		return domain.SimulationResult{}, err
	}

	sim := domain.SimulationResult{
		BundleHash:   res.BundleHash,
		CoinbaseDiff: new(big.Int),
		TotalGasUsed: res.TotalGasUsed,
	}
	if res.CoinbaseDiff != "" {
		if _, ok := sim.CoinbaseDiff.SetString(res.CoinbaseDiff, 0); !ok {
			return domain.SimulationResult{}, fmt.Errorf("flashbots: bad coinbaseDiff %q", res.CoinbaseDiff)
		}
	}
	for _, r := range res.Results {
		reason := r.Error
		if reason == "" {
			reason = r.Revert
		}
		if reason != "" {
			sim.FirstRevert = r.TxHash + ": " + reason
			break
		}
	}
	return sim, nil
}

// SendRawBundle submits the bundle for inclusion in block.
func (c *Client) SendRawBundle(ctx context.Context, bundle domain.SignedBundle, block uint64) (domain.BundleAck, error) {
	params := []any{map[string]any{
		"txs":         bundle.RawTxs,
		"blockNumber": hexutil.EncodeUint64(block),
	}}
	var res struct {
		BundleHash string `json:"bundleHash"`
	}
	if err := c.call(ctx, "eth_sendBundle", params, &res); err != nil {
		return domain.BundleAck{}, err
	}
	c.logger.DebugContext(ctx, "bundle accepted",
		slog.Uint64("target", block),
		slog.String("bundle_hash", res.BundleHash),
	)
	return domain.BundleAck{BundleHash: res.BundleHash, TargetBlock: block}, nil
}

// --------------------------------------------------------------------------
// JSON-RPC plumbing
// --------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the relay.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("flashbots: marshal %s: %w", method, err)
	}
	signature, err := c.signBody(body)
	if err != nil {
		return fmt.Errorf("flashbots: %w: %w", domain.ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("flashbots: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("flashbots: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("flashbots: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("flashbots: %s: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("flashbots: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("flashbots: %s: %w", method, rpcResp.Error)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("flashbots: decode %s result: %w", method, err)
	}
	return nil
}

// signBody returns "<address>:<signature>" over the EIP-191 hash of the
// hex keccak of body.
func (c *Client) signBody(body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body).Hex()
	sig, err := c.signer.SignDigest(accounts.TextHash([]byte(hashed)))
	if err != nil {
		return "", err
	}
	return c.signer.Address().Hex() + ":" + hexutil.Encode(sig), nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	default:
		// Relays answer JSON-RPC errors with 4xx bodies too; let the caller
		// decode those.
		if statusCode == http.StatusBadRequest && json.Valid(body) {
			return nil
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
