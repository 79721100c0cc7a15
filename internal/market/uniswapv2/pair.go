package uniswapv2

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// Protocol is the tag reported by Pair.Protocol.
const Protocol = "uniswap-v2"

// Pair is a V2-style pool. Reserves are guarded because the refresh step and
// intent simulation can touch them while detection reads.
type Pair struct {
	address  common.Address
	token0   common.Address
	token1   common.Address
	protocol string

	mu       sync.RWMutex
	reserve0 *big.Int
	reserve1 *big.Int
}

// NewPair creates a pair with zero reserves. An empty protocol falls back to
// Protocol.
func NewPair(address, token0, token1 common.Address, protocol string) *Pair {
	if protocol == "" {
		protocol = Protocol
	}
	return &Pair{
		address:  address,
		token0:   token0,
		token1:   token1,
		protocol: protocol,
		reserve0: new(big.Int),
		reserve1: new(big.Int),
	}
}

var _ domain.Market = (*Pair)(nil)

func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) Protocol() string         { return p.protocol }

func (p *Pair) Tokens() []common.Address {
	return []common.Address{p.token0, p.token1}
}

// SetReserves replaces both reserves.
func (p *Pair) SetReserves(reserve0, reserve1 *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserve0 = new(big.Int).Set(reserve0)
	p.reserve1 = new(big.Int).Set(reserve1)
}

// Reserves returns copies of the current reserves.
func (p *Pair) Reserves() (*big.Int, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// ReceivesDirectly reports whether tokens sent to the pair contract before a
// swap are credited to the swap. Always true for V2 pairs.
func (p *Pair) ReceivesDirectly(token common.Address) bool {
	return token == p.token0 || token == p.token1
}

// reservesFor orders reserves by direction. Caller must hold p.mu.
func (p *Pair) reservesFor(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	switch {
	case tokenIn == p.token0 && tokenOut == p.token1:
		return p.reserve0, p.reserve1, nil
	case tokenIn == p.token1 && tokenOut == p.token0:
		return p.reserve1, p.reserve0, nil
	default:
		return nil, nil, fmt.Errorf("uniswapv2: pair %s: %w: %s -> %s",
			p.address.Hex(), domain.ErrInvalidToken, tokenIn.Hex(), tokenOut.Hex())
	}
}

func (p *Pair) QuoteOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rIn, rOut, err := p.reservesFor(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, rIn, rOut), nil
}

func (p *Pair) QuoteIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rIn, rOut, err := p.reservesFor(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	amountIn, err := GetAmountIn(amountOut, rIn, rOut)
	if err != nil {
		return nil, fmt.Errorf("uniswapv2: pair %s: %w", p.address.Hex(), err)
	}
	return amountIn, nil
}

// EncodeSellToNext sells tokenIn through this pair with the output sent to
// next, which must credit tokens it receives before its own swap.
func (p *Pair) EncodeSellToNext(tokenIn common.Address, amountIn *big.Int, next domain.Market) (domain.CallBatch, error) {
	tokenOut, err := p.other(tokenIn)
	if err != nil {
		return domain.CallBatch{}, err
	}
	recv, ok := next.(interface{ ReceivesDirectly(common.Address) bool })
	if !ok || !recv.ReceivesDirectly(tokenOut) {
		return domain.CallBatch{}, fmt.Errorf("uniswapv2: pair %s: next market %s (%s) cannot receive %s directly",
			p.address.Hex(), next.Address().Hex(), next.Protocol(), tokenOut.Hex())
	}
	payload, err := p.EncodeSellTo(tokenIn, amountIn, next.Address())
	if err != nil {
		return domain.CallBatch{}, err
	}
	return domain.CallBatch{
		Targets:  []common.Address{p.address},
		Payloads: [][]byte{payload},
	}, nil
}

// EncodeSellTo returns swap() calldata paying the quoted output to recipient.
func (p *Pair) EncodeSellTo(tokenIn common.Address, amountIn *big.Int, recipient common.Address) ([]byte, error) {
	tokenOut, err := p.other(tokenIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := p.QuoteOut(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	amount0Out, amount1Out := new(big.Int), new(big.Int)
	if tokenIn == p.token0 {
		amount1Out = amountOut
	} else {
		amount0Out = amountOut
	}
	data, err := pairABI.Pack("swap", amount0Out, amount1Out, recipient, []byte{})
	if err != nil {
		return nil, fmt.Errorf("uniswapv2: pack swap: %w", err)
	}
	return data, nil
}

// SimulateSwap applies an observed swap to local reserves when this pair
// would pay at least amountOut less the slippage allowance.
func (p *Pair) SimulateSwap(tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int, slippageBps int64) bool {
	if amountIn == nil || amountIn.Sign() <= 0 || amountOut == nil || slippageBps < 0 || slippageBps > 10_000 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rIn, rOut, err := p.reservesFor(tokenIn, tokenOut)
	if err != nil {
		return false
	}
	out := GetAmountOut(amountIn, rIn, rOut)
	minOut := new(big.Int).Mul(amountOut, big.NewInt(10_000-slippageBps))
	minOut.Quo(minOut, bpsDenominator)
	if out.Sign() == 0 || out.Cmp(minOut) < 0 {
		return false
	}
	rIn.Add(rIn, amountIn)
	rOut.Sub(rOut, out)
	return true
}

func (p *Pair) other(token common.Address) (common.Address, error) {
	switch token {
	case p.token0:
		return p.token1, nil
	case p.token1:
		return p.token0, nil
	default:
		return common.Address{}, fmt.Errorf("uniswapv2: pair %s: %w: %s", p.address.Hex(), domain.ErrInvalidToken, token.Hex())
	}
}
