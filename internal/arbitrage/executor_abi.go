package arbitrage

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const bundleExecutorABIJSON = `[
 {"name":"uniswapWeth","type":"function","stateMutability":"payable",
  "inputs":[{"name":"_wethAmountToFirstMarket","type":"uint256"},{"name":"_ethAmountToCoinbase","type":"uint256"},{"name":"_targets","type":"address[]"},{"name":"_payloads","type":"bytes[]"}],
  "outputs":[]}
]`

var bundleExecutorABI abi.ABI

func init() {
	var err error
	bundleExecutorABI, err = abi.JSON(strings.NewReader(bundleExecutorABIJSON))
	if err != nil {
		panic(fmt.Sprintf("arbitrage: parse executor abi: %v", err))
	}
}

// packUniswapWeth encodes the executor entry point. The contract sends
// volume of the base asset to targets[0], runs every payload in order and
// pays minerReward to the block builder.
func packUniswapWeth(volume, minerReward *big.Int, targets []common.Address, payloads [][]byte) ([]byte, error) {
	data, err := bundleExecutorABI.Pack("uniswapWeth", volume, minerReward, targets, payloads)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: pack uniswapWeth: %w", err)
	}
	return data, nil
}
