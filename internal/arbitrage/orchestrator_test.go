package arbitrage

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

func testOpportunity() domain.CrossedMarket {
	return domain.CrossedMarket{
		Profit:  big.NewInt(5e16),
		Volume:  ether(1),
		Token:   tokenA,
		BuyFrom: newPair("0x02", tokenA, 100, 220_000),
		SellTo:  newPair("0x01", tokenA, 100, 200_000),
	}
}

func TestMinerReward(t *testing.T) {
	tests := []struct {
		name   string
		profit *big.Int
		pct    int64
		want   *big.Int
	}{
		{"eighty percent", ether(1), 80, big.NewInt(8e17)},
		{"truncates", big.NewInt(199), 50, big.NewInt(99)},
		{"zero", ether(1), 0, big.NewInt(0)},
		{"all", big.NewInt(12345), 100, big.NewInt(12345)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0, tt.want.Cmp(MinerReward(tt.profit, tt.pct)))
		})
	}
}

func TestExecutorBook_Missing(t *testing.T) {
	book := NewExecutorBook(map[common.Address]common.Address{weth: executor})

	got, err := book.ExecutorFor(weth)
	require.NoError(t, err)
	assert.Equal(t, executor, got)

	_, err = book.ExecutorFor(tokenB)
	require.ErrorIs(t, err, domain.ErrNoExecutor)
	var missing *ExecutorMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, tokenB, missing.Token)
}

func TestBuildSignedTransaction_Success(t *testing.T) {
	chain := &fakeChain{gas: []uint64{300_000}, nonce: 9}
	signer := newKeySigner(t)
	o := newTestOrchestrator(t, chain, &fakeRelay{}, signer)
	opp := testOpportunity()

	signed, err := o.BuildSignedTransaction(context.Background(), opp, 80, tokenA)
	require.NoError(t, err)

	tx := signed.Tx
	assert.Equal(t, uint64(600_000), tx.Gas(), "gas limit is twice the estimate")
	assert.Equal(t, uint64(300_000), signed.GasEstimate)
	assert.Equal(t, 0, tx.GasPrice().Sign())
	assert.Equal(t, uint64(9), tx.Nonce())
	assert.Equal(t, executor, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, signed.Raw)

	require.Len(t, chain.estimates, 1)
	assert.Equal(t, signer.Address(), chain.estimates[0].From)
	assert.Equal(t, 0, chain.estimates[0].GasPrice.Sign())

	method := bundleExecutorABI.Methods["uniswapWeth"]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, opp.Volume.Cmp(args[0].(*big.Int)))
	assert.Equal(t, 0, big.NewInt(4e16).Cmp(args[1].(*big.Int)), "miner reward is 80 percent of profit")
	assert.Equal(t, []common.Address{opp.BuyFrom.Address(), opp.SellTo.Address()}, args[2].([]common.Address))
	assert.Len(t, args[3].([][]byte), 2)
	assert.Equal(t, 0, big.NewInt(4e16).Cmp(signed.MinerReward))
}

func TestBuildSignedTransaction_GasCeiling(t *testing.T) {
	tests := []struct {
		name    string
		gas     uint64
		wantErr bool
	}{
		{"at ceiling", DefaultGasCeiling, false},
		{"above ceiling", DefaultGasCeiling + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := newKeySigner(t)
			o := newTestOrchestrator(t, &fakeChain{gas: []uint64{tt.gas}}, &fakeRelay{}, signer)

			signed, err := o.BuildSignedTransaction(context.Background(), testOpportunity(), 50, tokenA)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrGasTooLarge)
				assert.Nil(t, signed)
				assert.Zero(t, signer.calls, "oversized estimates are never signed")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2*tt.gas, signed.Tx.Gas())
		})
	}
}

func TestBuildSignedTransaction_EstimateError(t *testing.T) {
	boom := errors.New("execution reverted")
	o := newTestOrchestrator(t, &fakeChain{gasErr: boom}, &fakeRelay{}, newKeySigner(t))

	_, err := o.BuildSignedTransaction(context.Background(), testOpportunity(), 50, tokenA)
	require.ErrorIs(t, err, boom)
}

func TestBuildSignedTransaction_NoExecutor(t *testing.T) {
	o := newTestOrchestrator(t, &fakeChain{gas: []uint64{1}}, &fakeRelay{}, newKeySigner(t))

	_, err := o.BuildSignedTransaction(context.Background(), testOpportunity(), 50, tokenB)
	require.ErrorIs(t, err, domain.ErrNoExecutor)
}
