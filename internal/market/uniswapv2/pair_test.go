package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	other = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestPair(addr string, r0, r1 *big.Int) *Pair {
	p := NewPair(common.HexToAddress(addr), weth, token, "")
	p.SetReserves(r0, r1)
	return p
}

func TestGetAmountOut_KnownValue(t *testing.T) {
	// 1000 in against 1e6/1e6 reserves: 997*1e6*1000 / (1e6*1000 + 997*1000)
	out := GetAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000))
	assert.Equal(t, big.NewInt(996), out)
}

func TestGetAmountOut_ZeroInputs(t *testing.T) {
	assert.Equal(t, 0, GetAmountOut(big.NewInt(0), big.NewInt(10), big.NewInt(10)).Sign())
	assert.Equal(t, 0, GetAmountOut(big.NewInt(5), big.NewInt(0), big.NewInt(10)).Sign())
}

func TestGetAmountIn_RoundTrip(t *testing.T) {
	rIn, rOut := ether(100), ether(200_000)
	want := ether(1000)
	in, err := GetAmountIn(want, rIn, rOut)
	require.NoError(t, err)
	got := GetAmountOut(in, rIn, rOut)
	assert.True(t, got.Cmp(want) >= 0, "paying the quoted input must yield at least the requested output")
}

func TestGetAmountIn_InsufficientLiquidity(t *testing.T) {
	_, err := GetAmountIn(big.NewInt(10), big.NewInt(100), big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestPair_QuoteOut_Direction(t *testing.T) {
	p := newTestPair("0x01", ether(10), ether(20_000))

	tokens, err := p.QuoteOut(weth, token, ether(1))
	require.NoError(t, err)
	assert.Equal(t, GetAmountOut(ether(1), ether(10), ether(20_000)), tokens)

	back, err := p.QuoteOut(token, weth, ether(2000))
	require.NoError(t, err)
	assert.Equal(t, GetAmountOut(ether(2000), ether(20_000), ether(10)), back)
}

func TestPair_QuoteOut_UnknownToken(t *testing.T) {
	p := newTestPair("0x01", ether(10), ether(10))
	_, err := p.QuoteOut(other, token, ether(1))
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestPair_EncodeSellTo_OutputSlot(t *testing.T) {
	p := newTestPair("0x01", ether(10), ether(20_000))
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000042")

	data, err := p.EncodeSellTo(weth, ether(1), recipient)
	require.NoError(t, err)

	method := pairABI.Methods["swap"]
	assert.Equal(t, method.ID, data[:4])
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)

	expectedOut, _ := p.QuoteOut(weth, token, ether(1))
	assert.Equal(t, 0, args[0].(*big.Int).Sign(), "selling token0 pays out token1")
	assert.Equal(t, expectedOut, args[1].(*big.Int))
	assert.Equal(t, recipient, args[2].(common.Address))
}

func TestPair_EncodeSellToNext_TargetsNextPair(t *testing.T) {
	a := newTestPair("0x01", ether(10), ether(20_000))
	b := newTestPair("0x02", ether(10), ether(25_000))

	batch, err := a.EncodeSellToNext(weth, ether(1), b)
	require.NoError(t, err)
	require.Len(t, batch.Targets, 1)
	require.Len(t, batch.Payloads, 1)
	assert.Equal(t, a.Address(), batch.Targets[0])

	args, err := pairABI.Methods["swap"].Inputs.Unpack(batch.Payloads[0][4:])
	require.NoError(t, err)
	assert.Equal(t, b.Address(), args[2].(common.Address))
}

type opaqueMarket struct{ domain.Market }

func (opaqueMarket) Address() common.Address { return common.HexToAddress("0x03") }
func (opaqueMarket) Protocol() string         { return "other" }

func TestPair_EncodeSellToNext_RejectsIndirectMarket(t *testing.T) {
	a := newTestPair("0x01", ether(10), ether(20_000))
	_, err := a.EncodeSellToNext(weth, ether(1), opaqueMarket{})
	require.Error(t, err)
}

func TestPair_SimulateSwap_AppliesWithinSlippage(t *testing.T) {
	p := newTestPair("0x01", ether(10), ether(20_000))
	quoted, _ := p.QuoteOut(weth, token, ether(1))

	ok := p.SimulateSwap(weth, token, ether(1), quoted, 50)
	require.True(t, ok)

	r0, r1 := p.Reserves()
	assert.Equal(t, ether(11), r0)
	assert.Equal(t, new(big.Int).Sub(ether(20_000), quoted), r1)
}

func TestPair_SimulateSwap_RejectsBeyondSlippage(t *testing.T) {
	p := newTestPair("0x01", ether(10), ether(20_000))
	quoted, _ := p.QuoteOut(weth, token, ether(1))
	greedy := new(big.Int).Mul(quoted, big.NewInt(2))

	assert.False(t, p.SimulateSwap(weth, token, ether(1), greedy, 100))

	r0, r1 := p.Reserves()
	assert.Equal(t, ether(10), r0, "rejected swaps leave reserves alone")
	assert.Equal(t, ether(20_000), r1)
}
