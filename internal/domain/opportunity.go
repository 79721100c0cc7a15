package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CrossedMarket is the result of one detection: buy Token on BuyFrom with
// Volume of the base asset and sell it back on SellTo. Profit is
// proceeds - Volume in base-asset wei.
type CrossedMarket struct {
	Profit  *big.Int
	Volume  *big.Int
	Token   common.Address
	BuyFrom Market
	SellTo  Market
}

// Key identifies the market pair within a block for deduplication.
func (c CrossedMarket) Key(block uint64) string {
	return c.BuyFrom.Address().Hex() + ":" + c.SellTo.Address().Hex() + ":" + new(big.Int).SetUint64(block).String()
}

// SwapIntent is an externally observed swap, delivered by the ingestion
// transport. Amounts are in token wei.
type SwapIntent struct {
	ID          string
	TokenIn     common.Address
	AmountIn    *big.Int
	TokenOut    common.Address
	AmountOut   *big.Int
	Market      common.Address
	SlippageBps int64
}

// OpportunitySource says what triggered the detection.
type OpportunitySource string

const (
	SourceBlock  OpportunitySource = "block"
	SourceIntent OpportunitySource = "intent"
)

// OpportunityRecord is the persisted form of a CrossedMarket. Amounts are
// decimal wei strings.
type OpportunityRecord struct {
	ID         string            `json:"id"`
	Block      uint64            `json:"block"`
	Source     OpportunitySource `json:"source"`
	IntentID   string            `json:"intent_id,omitempty"`
	Token      string            `json:"token"`
	BuyFrom    string            `json:"buy_from"`
	SellTo     string            `json:"sell_to"`
	Volume     string            `json:"volume"`
	Profit     string            `json:"profit"`
	DetectedAt time.Time         `json:"detected_at"`
}
