package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// DefaultGasCeiling is the largest gas estimate accepted for a bundle tx.
const DefaultGasCeiling uint64 = 1_400_000

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Signer    domain.TxSigner
	Relay     domain.Relay
	Chain     domain.Chain
	Executors *ExecutorBook
	Searcher  VolumeSearcher
	Base      common.Address

	GasCeiling      uint64
	EstimateTimeout time.Duration
	RelayTimeout    time.Duration
	Logger          *slog.Logger
}

// Orchestrator evaluates markets, builds executor transactions and submits
// them as bundles.
type Orchestrator struct {
	signer    domain.TxSigner
	relay     domain.Relay
	chain     domain.Chain
	executors *ExecutorBook
	searcher  VolumeSearcher
	base      common.Address

	gasCeiling      uint64
	estimateTimeout time.Duration
	relayTimeout    time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil searcher selects StepSearch.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		signer:          cfg.Signer,
		relay:           cfg.Relay,
		chain:           cfg.Chain,
		executors:       cfg.Executors,
		searcher:        cfg.Searcher,
		base:            cfg.Base,
		gasCeiling:      cfg.GasCeiling,
		estimateTimeout: cfg.EstimateTimeout,
		relayTimeout:    cfg.RelayTimeout,
	}
	if o.searcher == nil {
		o.searcher = NewStepSearch()
	}
	if o.executors == nil {
		o.executors = NewExecutorBook(nil)
	}
	if o.gasCeiling == 0 {
		o.gasCeiling = DefaultGasCeiling
	}
	if o.estimateTimeout <= 0 {
		o.estimateTimeout = 10 * time.Second
	}
	if o.relayTimeout <= 0 {
		o.relayTimeout = 12 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o.logger = logger.With(slog.String("component", "orchestrator"))
	return o
}

// Base returns the reference asset.
func (o *Orchestrator) Base() common.Address { return o.base }

// Searcher returns the active volume searcher.
func (o *Orchestrator) Searcher() VolumeSearcher { return o.searcher }

// ExecutorFor returns the executor contract for token.
func (o *Orchestrator) ExecutorFor(token common.Address) (common.Address, error) {
	return o.executors.ExecutorFor(token)
}

// MinerReward is profit*pct/100, truncated.
func MinerReward(profit *big.Int, pct int64) *big.Int {
	r := new(big.Int).Mul(profit, big.NewInt(pct))
	return r.Quo(r, big.NewInt(100))
}

// executorCall is an unsigned executor invocation.
type executorCall struct {
	executor    common.Address
	data        []byte
	minerReward *big.Int
}

// buildCall encodes buy-then-sell calls for opp against token's executor.
func (o *Orchestrator) buildCall(opp domain.CrossedMarket, pct int64, token common.Address) (executorCall, error) {
	executor, err := o.executors.ExecutorFor(token)
	if err != nil {
		return executorCall{}, err
	}
	buyCalls, err := opp.BuyFrom.EncodeSellToNext(o.base, opp.Volume, opp.SellTo)
	if err != nil {
		return executorCall{}, fmt.Errorf("arbitrage: encode buy: %w", err)
	}
	inter, err := opp.BuyFrom.QuoteOut(o.base, opp.Token, opp.Volume)
	if err != nil {
		return executorCall{}, fmt.Errorf("arbitrage: quote intermediate: %w", err)
	}
	sellPayload, err := opp.SellTo.EncodeSellTo(opp.Token, inter, executor)
	if err != nil {
		return executorCall{}, fmt.Errorf("arbitrage: encode sell: %w", err)
	}

	targets := make([]common.Address, 0, len(buyCalls.Targets)+1)
	targets = append(targets, buyCalls.Targets...)
	targets = append(targets, opp.SellTo.Address())
	payloads := make([][]byte, 0, len(buyCalls.Payloads)+1)
	payloads = append(payloads, buyCalls.Payloads...)
	payloads = append(payloads, sellPayload)

	reward := MinerReward(opp.Profit, pct)
	data, err := packUniswapWeth(opp.Volume, reward, targets, payloads)
	if err != nil {
		return executorCall{}, err
	}
	return executorCall{executor: executor, data: data, minerReward: reward}, nil
}

// estimate asks the node for gas and rejects anything above the ceiling.
func (o *Orchestrator) estimate(ctx context.Context, call executorCall) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.estimateTimeout)
	defer cancel()
	to := call.executor
	gas, err := o.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:     o.signer.Address(),
		To:       &to,
		GasPrice: new(big.Int),
		Value:    new(big.Int),
		Data:     call.data,
	})
	if err != nil {
		return 0, fmt.Errorf("arbitrage: estimate gas: %w", err)
	}
	if gas > o.gasCeiling {
		return gas, fmt.Errorf("arbitrage: %w: %d > %d", domain.ErrGasTooLarge, gas, o.gasCeiling)
	}
	return gas, nil
}

// sign builds a zero-gas-price transaction with twice the estimate as limit.
func (o *Orchestrator) sign(ctx context.Context, call executorCall, gas uint64) (*domain.SignedTx, error) {
	ctx, cancel := context.WithTimeout(ctx, o.estimateTimeout)
	defer cancel()
	nonce, err := o.chain.PendingNonceAt(ctx, o.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("arbitrage: pending nonce: %w", err)
	}
	to := call.executor
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int),
		Gas:      gas * 2,
		To:       &to,
		Value:    new(big.Int),
		Data:     call.data,
	})
	signed, err := o.signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: %w: %w", domain.ErrSigningFailed, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("arbitrage: encode signed tx: %w", err)
	}
	return &domain.SignedTx{
		Tx:          signed,
		Raw:         raw,
		GasEstimate: gas,
		MinerReward: call.minerReward,
	}, nil
}

// BuildSignedTransaction turns opp into a signed executor transaction for
// token's executor. Estimates above the gas ceiling fail with
// domain.ErrGasTooLarge and nothing is signed.
func (o *Orchestrator) BuildSignedTransaction(ctx context.Context, opp domain.CrossedMarket, minerRewardPct int64, token common.Address) (*domain.SignedTx, error) {
	call, err := o.buildCall(opp, minerRewardPct, token)
	if err != nil {
		return nil, err
	}
	gas, err := o.estimate(ctx, call)
	if err != nil {
		return nil, err
	}
	return o.sign(ctx, call, gas)
}
