package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallBatch is an ordered list of call targets and their calldata. The two
// slices always have the same length.
type CallBatch struct {
	Targets  []common.Address
	Payloads [][]byte
}

// Market is a single liquidity pool. Reserve state is owned by the refresh
// step; everything else treats a Market as read-only.
type Market interface {
	Address() common.Address
	Protocol() string
	Tokens() []common.Address

	// QuoteOut returns how much tokenOut is received for amountIn of tokenIn.
	QuoteOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
	// QuoteIn returns how much tokenIn must be paid to receive amountOut of tokenOut.
	QuoteIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)

	// EncodeSellToNext encodes the calls that sell amountIn of tokenIn through
	// this market with the output delivered straight to next.
	EncodeSellToNext(tokenIn common.Address, amountIn *big.Int, next Market) (CallBatch, error)
	// EncodeSellTo encodes a single sell of amountIn of tokenIn with the output
	// delivered to recipient.
	EncodeSellTo(tokenIn common.Address, amountIn *big.Int, recipient common.Address) ([]byte, error)

	// SimulateSwap applies an observed swap to the local reserve copy when it
	// would succeed within slippageBps, and reports whether it did.
	SimulateSwap(tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int, slippageBps int64) bool
}

// MarketsByToken maps a token to every market trading it against the base
// asset. Built once at startup; entries are refreshed in place.
type MarketsByToken map[common.Address][]Market

// All returns every market once, in no particular order.
func (m MarketsByToken) All() []Market {
	seen := make(map[common.Address]bool)
	var out []Market
	for _, markets := range m {
		for _, mk := range markets {
			if seen[mk.Address()] {
				continue
			}
			seen[mk.Address()] = true
			out = append(out, mk)
		}
	}
	return out
}

// Find returns the market with the given address among those trading token.
func (m MarketsByToken) Find(token, market common.Address) (Market, bool) {
	for _, mk := range m[token] {
		if mk.Address() == market {
			return mk, true
		}
	}
	return nil, false
}
