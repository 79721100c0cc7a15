package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// SignedTx is an arbitrage transaction ready for the relay.
type SignedTx struct {
	Tx          *types.Transaction
	Raw         []byte
	GasEstimate uint64
	MinerReward *big.Int
}

// SignedBundle is the ordered list of raw signed transactions, hex encoded.
type SignedBundle struct {
	RawTxs []string
}

// SimulationResult is what the relay reports for a simulated bundle.
type SimulationResult struct {
	BundleHash   string
	CoinbaseDiff *big.Int
	TotalGasUsed uint64
	Error        string
	FirstRevert  string
}

// Failed reports whether the simulation errored or any transaction reverted.
func (r SimulationResult) Failed() bool {
	return r.Error != "" || r.FirstRevert != ""
}

// BundleAck is the relay's acknowledgement of a submitted bundle.
type BundleAck struct {
	BundleHash  string
	TargetBlock uint64
}

// AttemptState is the state of one submission attempt.
type AttemptState string

const (
	AttemptDetected     AttemptState = "detected"
	AttemptBuildFailed  AttemptState = "build_failed"
	AttemptBuilt        AttemptState = "built"
	AttemptGasRejected  AttemptState = "gas_rejected"
	AttemptGasEstimated AttemptState = "gas_estimated"
	AttemptSigned       AttemptState = "signed"
	AttemptSimFailed    AttemptState = "sim_failed"
	AttemptSimulated    AttemptState = "simulated"
	AttemptSubmitted    AttemptState = "submitted"
)

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptBuildFailed, AttemptGasRejected, AttemptSimFailed, AttemptSubmitted:
		return true
	}
	return false
}

// BundleRecord is the persisted outcome of one submission attempt.
type BundleRecord struct {
	ID            string       `json:"id"`
	OpportunityID string       `json:"opportunity_id,omitempty"`
	Block         uint64       `json:"block"`
	TargetBlocks  []uint64     `json:"target_blocks,omitempty"`
	BundleHash    string       `json:"bundle_hash,omitempty"`
	State         AttemptState `json:"state"`
	Reason        string       `json:"reason,omitempty"`
	MinerReward   string       `json:"miner_reward,omitempty"`
	CoinbaseDiff  string       `json:"coinbase_diff,omitempty"`
	GasUsed       uint64       `json:"gas_used"`
	CreatedAt     time.Time    `json:"created_at"`
}
