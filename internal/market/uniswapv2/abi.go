package uniswapv2

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const pairABIJSON = `[
 {"name":"swap","type":"function","stateMutability":"nonpayable",
  "inputs":[{"name":"amount0Out","type":"uint256"},{"name":"amount1Out","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"}],
  "outputs":[]},
 {"name":"getReserves","type":"function","stateMutability":"view","inputs":[],
  "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]}
]`

const flashQueryABIJSON = `[
 {"name":"getReservesByPairs","type":"function","stateMutability":"view",
  "inputs":[{"name":"_pairs","type":"address[]"}],
  "outputs":[{"name":"","type":"uint256[3][]"}]},
 {"name":"getPairsByIndexRange","type":"function","stateMutability":"view",
  "inputs":[{"name":"_uniswapFactory","type":"address"},{"name":"_start","type":"uint256"},{"name":"_stop","type":"uint256"}],
  "outputs":[{"name":"","type":"address[3][]"}]}
]`

var (
	pairABI       abi.ABI
	flashQueryABI abi.ABI
)

func init() {
	var err error
	if pairABI, err = abi.JSON(strings.NewReader(pairABIJSON)); err != nil {
		panic(fmt.Sprintf("uniswapv2: parse pair abi: %v", err))
	}
	if flashQueryABI, err = abi.JSON(strings.NewReader(flashQueryABIJSON)); err != nil {
		panic(fmt.Sprintf("uniswapv2: parse flash query abi: %v", err))
	}
}
