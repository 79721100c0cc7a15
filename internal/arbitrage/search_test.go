package arbitrage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadratic returns profit(v) = a*v - v*v/1e18, all in wei, peaking at
// v = a/2 units.
func quadratic(aTenths int64) ProfitFunc {
	return func(v *big.Int) (*big.Int, error) {
		lin := new(big.Int).Mul(v, big.NewInt(aTenths))
		lin.Quo(lin, big.NewInt(10))
		sq := new(big.Int).Mul(v, v)
		sq.Quo(sq, unit)
		return lin.Sub(lin, sq), nil
	}
}

func units(tenths int64) *big.Int {
	v := new(big.Int).Mul(unit, big.NewInt(tenths))
	return v.Quo(v, big.NewInt(10))
}

func TestStepSearch_StopsAtFirstDecline(t *testing.T) {
	// Peak at 1 unit: 2 units declines, midpoint 1.5 is worse than 1.
	best, fromPair, err := NewStepSearch().BestVolume(quadratic(20), nil)
	require.NoError(t, err)
	require.True(t, fromPair)
	assert.Equal(t, unit, best.Volume)
	p, _ := quadratic(20)(unit)
	assert.Equal(t, p, best.Profit)
}

func TestStepSearch_MidpointReplacesBest(t *testing.T) {
	// Peak at 1.4 units: 2 declines against 1, midpoint 1.5 beats 1.
	best, fromPair, err := NewStepSearch().BestVolume(quadratic(28), nil)
	require.NoError(t, err)
	require.True(t, fromPair)
	assert.Equal(t, units(15), best.Volume)
}

func TestStepSearch_MonotoneTakesLargestSize(t *testing.T) {
	increasing := func(v *big.Int) (*big.Int, error) { return new(big.Int).Quo(v, big.NewInt(100)), nil }
	best, _, err := NewStepSearch().BestVolume(increasing, nil)
	require.NoError(t, err)
	assert.Equal(t, TestVolumes[len(TestVolumes)-1], best.Volume)
}

func TestStepSearch_IncumbentFromEarlierPairSurvives(t *testing.T) {
	incumbent := &Candidate{Volume: unit, Profit: ether(5)}
	best, fromPair, err := NewStepSearch().BestVolume(quadratic(20), incumbent)
	require.NoError(t, err)
	assert.False(t, fromPair)
	assert.Same(t, incumbent, best)
}

func TestStepSearch_EqualProfitOverwrites(t *testing.T) {
	flat := func(*big.Int) (*big.Int, error) { return big.NewInt(7), nil }
	incumbent := &Candidate{Volume: unit, Profit: big.NewInt(7)}
	best, fromPair, err := NewStepSearch().BestVolume(flat, incumbent)
	require.NoError(t, err)
	assert.True(t, fromPair, "a size that does not lose value replaces the incumbent")
	assert.Equal(t, TestVolumes[len(TestVolumes)-1], best.Volume)
}

func TestTernarySearch_FindsPeak(t *testing.T) {
	s := NewTernarySearch(TernarySearchConfig{})
	best, fromPair, err := s.BestVolume(quadratic(28), nil)
	require.NoError(t, err)
	require.True(t, fromPair)

	diff := new(big.Int).Sub(best.Volume, units(14))
	assert.True(t, diff.CmpAbs(big.NewInt(1e13)) <= 0, "volume %s not near 1.4 units", best.Volume)

	step, _, _ := NewStepSearch().BestVolume(quadratic(28), nil)
	assert.True(t, best.Profit.Cmp(step.Profit) >= 0)
}

func TestTernarySearch_KeepsBetterIncumbent(t *testing.T) {
	incumbent := &Candidate{Volume: unit, Profit: ether(100)}
	best, fromPair, err := NewTernarySearch(TernarySearchConfig{}).BestVolume(quadratic(28), incumbent)
	require.NoError(t, err)
	assert.False(t, fromPair)
	assert.Same(t, incumbent, best)
}

func TestFindBestCross_ProfitMatchesCurve(t *testing.T) {
	cheap := newPair("0x01", tokenA, 100, 220_000) // more token per weth
	dear := newPair("0x02", tokenA, 100, 200_000)
	pairs := []CrossedPair{{SellTo: dear, BuyFrom: cheap}}

	for _, s := range []VolumeSearcher{NewStepSearch(), NewTernarySearch(TernarySearchConfig{})} {
		t.Run(s.Name(), func(t *testing.T) {
			got := FindBestCross(s, pairs, weth, tokenA)
			require.NotNil(t, got)
			assert.Equal(t, tokenA, got.Token)
			assert.Equal(t, cheap.Address(), got.BuyFrom.Address())
			assert.Equal(t, dear.Address(), got.SellTo.Address())

			want, err := profitCurve(pairs[0], weth, tokenA)(got.Volume)
			require.NoError(t, err)
			assert.Equal(t, want, got.Profit)
			assert.Positive(t, got.Profit.Sign())
		})
	}
}

func TestFindBestCross_NoPairs(t *testing.T) {
	assert.Nil(t, FindBestCross(NewStepSearch(), nil, weth, tokenA))
}

func TestFindBestCross_PrefersStrongerPair(t *testing.T) {
	dear := newPair("0x02", tokenA, 100, 200_000)
	slight := newPair("0x03", tokenA, 100, 205_000)
	strong := newPair("0x04", tokenA, 100, 240_000)
	pairs := []CrossedPair{
		{SellTo: dear, BuyFrom: slight},
		{SellTo: dear, BuyFrom: strong},
	}
	got := FindBestCross(NewStepSearch(), pairs, weth, tokenA)
	require.NotNil(t, got)
	assert.Equal(t, strong.Address(), got.BuyFrom.Address())
}

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"step", "ternary"}, r.List())

	s, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "step", s.Name())

	_, err = r.Get("bisect")
	require.Error(t, err)
}
