package arbitrage

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/market/uniswapv2"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenA   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	executor = common.HexToAddress("0x00000000000000000000000000000000000e0e0e")
	chainID  = big.NewInt(1)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newPair creates a weth/token pair with the given reserves in whole units.
func newPair(addr string, token common.Address, wethUnits, tokenUnits int64) *uniswapv2.Pair {
	p := uniswapv2.NewPair(common.HexToAddress(addr), weth, token, "")
	p.SetReserves(ether(wethUnits), ether(tokenUnits))
	return p
}

type fakeChain struct {
	mu        sync.Mutex
	gas       []uint64 // consumed per EstimateGas call; last value repeats
	gasErr    error
	nonce     uint64
	estimates []ethereum.CallMsg
}

func (c *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimates = append(c.estimates, msg)
	if c.gasErr != nil {
		return 0, c.gasErr
	}
	g := c.gas[0]
	if len(c.gas) > 1 {
		c.gas = c.gas[1:]
	}
	return g, nil
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return c.nonce, nil
}

type keySigner struct {
	key   *ecdsa.PrivateKey
	calls int
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keySigner{key: key}
}

func (s *keySigner) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s *keySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	s.calls++
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

type fakeRelay struct {
	mu        sync.Mutex
	sims      []domain.SimulationResult // consumed per Simulate call
	simBlocks []uint64
	sendErr   map[uint64]error
	sent      []uint64
	signErr   error
}

func (r *fakeRelay) SignBundle(txs []*types.Transaction) (domain.SignedBundle, error) {
	var b domain.SignedBundle
	if r.signErr != nil {
		return b, r.signErr
	}
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return b, err
		}
		b.RawTxs = append(b.RawTxs, hexutil.Encode(raw))
	}
	return b, nil
}

func (r *fakeRelay) Simulate(_ context.Context, _ domain.SignedBundle, block uint64) (domain.SimulationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simBlocks = append(r.simBlocks, block)
	if len(r.sims) == 0 {
		return domain.SimulationResult{}, errors.New("no simulation scripted")
	}
	sim := r.sims[0]
	r.sims = r.sims[1:]
	return sim, nil
}

func (r *fakeRelay) SendRawBundle(_ context.Context, _ domain.SignedBundle, block uint64) (domain.BundleAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, block)
	if err := r.sendErr[block]; err != nil {
		return domain.BundleAck{}, err
	}
	return domain.BundleAck{BundleHash: "0xbundle", TargetBlock: block}, nil
}

func okSim() domain.SimulationResult {
	return domain.SimulationResult{BundleHash: "0xsim", CoinbaseDiff: big.NewInt(1e16), TotalGasUsed: 200_000}
}

func newTestOrchestrator(t *testing.T, chain *fakeChain, relay *fakeRelay, signer *keySigner) *Orchestrator {
	t.Helper()
	return NewOrchestrator(OrchestratorConfig{
		Signer: signer,
		Relay:  relay,
		Chain:  chain,
		Executors: NewExecutorBook(map[common.Address]common.Address{
			weth:   executor,
			tokenA: executor,
		}),
		Base:   weth,
		Logger: discardLogger(),
	})
}
