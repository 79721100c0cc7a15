// Package chain wraps an Ethereum JSON-RPC client with per-call timeouts.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a timeout-bounded ethclient. It satisfies domain.Chain and the
// contract caller used by market loaders.
type Client struct {
	eth     *ethclient.Client
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// Dial connects to the RPC endpoint at url.
func Dial(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	return &Client{
		eth:     eth,
		url:     url,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "chain")),
	}, nil
}

// SupportsSubscriptions reports whether the endpoint is a websocket or IPC
// transport.
func (c *Client) SupportsSubscriptions() bool {
	return strings.HasPrefix(c.url, "ws://") || strings.HasPrefix(c.url, "wss://") ||
		strings.HasSuffix(c.url, ".ipc")
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	return id, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// EstimateGas estimates gas for msg against pending state.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.eth.EstimateGas(ctx, msg)
}

// PendingNonceAt returns the next nonce for account including pending txs.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.eth.PendingNonceAt(ctx, account)
}

// CallContract executes an eth_call. A nil block means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.eth.CallContract(ctx, msg, block)
}

// SubscribeNewHead subscribes to new block headers. Only the subscription
// handshake is bounded by the timeout.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	subCtx, cancel := c.bounded(ctx)
	defer cancel()
	sub, err := c.eth.SubscribeNewHead(subCtx, ch)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe heads: %w", err)
	}
	return sub, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}
