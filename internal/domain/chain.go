package domain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GasEstimator estimates gas for a call against the node.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// NonceSource returns the next pending nonce for an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Chain is the subset of node RPC the orchestrator needs.
type Chain interface {
	GasEstimator
	NonceSource
}

// TxSigner is the signing identity that owns the arbitrage wallet.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Relay is a private bundle relay.
type Relay interface {
	SignBundle(txs []*types.Transaction) (SignedBundle, error)
	Simulate(ctx context.Context, bundle SignedBundle, block uint64) (SimulationResult, error)
	SendRawBundle(ctx context.Context, bundle SignedBundle, block uint64) (BundleAck, error)
}
