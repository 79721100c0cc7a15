package app

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/config"
	"github.com/alanyoungcy/ammarb/internal/domain"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	execA  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	execD  = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

func TestExecutorMap_DefaultAndOverride(t *testing.T) {
	markets := domain.MarketsByToken{tokenA: nil, tokenB: nil}
	cfg := config.ArbitrageConfig{
		ExecutorAddress: execD.Hex(),
		Executors:       map[string]string{tokenA.Hex(): execA.Hex()},
	}

	got := executorMap(cfg, markets)
	assert.Equal(t, execA, got[tokenA])
	assert.Equal(t, execD, got[tokenB])
	assert.Len(t, got, 2)
}

func TestExecutorMap_NoDefault(t *testing.T) {
	markets := domain.MarketsByToken{tokenA: nil, tokenB: nil}
	cfg := config.ArbitrageConfig{
		Executors: map[string]string{tokenA.Hex(): execA.Hex()},
	}

	got := executorMap(cfg, markets)
	assert.Equal(t, map[common.Address]common.Address{tokenA: execA}, got)
}

func TestBuildSearcher(t *testing.T) {
	s, err := buildSearcher(config.ArbitrageConfig{})
	require.NoError(t, err)
	assert.Equal(t, "step", s.Name())

	s, err = buildSearcher(config.ArbitrageConfig{
		Searcher: "ternary",
		Ternary:  config.TernaryConfig{MinETH: "0.01", MaxETH: "100", ToleranceETH: "0.001", MaxSteps: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, "ternary", s.Name())

	_, err = buildSearcher(config.ArbitrageConfig{
		Searcher: "ternary",
		Ternary:  config.TernaryConfig{MaxETH: "lots"},
	})
	assert.ErrorContains(t, err, "max_eth")

	_, err = buildSearcher(config.ArbitrageConfig{Searcher: "golden"})
	assert.Error(t, err)
}

func TestAddressSet(t *testing.T) {
	set := addressSet([]string{tokenA.Hex(), tokenB.Hex()})
	assert.True(t, set[tokenA])
	assert.True(t, set[tokenB])
	assert.False(t, set[execA])

	assert.Equal(t, []common.Address{tokenA, tokenB}, addresses([]string{tokenA.Hex(), tokenB.Hex()}))
}
