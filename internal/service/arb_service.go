// Package service holds the application services that sit between the
// transports (websocket, HTTP, block feed) and the arbitrage engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/market/uniswapv2"
)

// PairRefresher reloads reserves for a set of pairs at a block.
type PairRefresher interface {
	RefreshReserves(ctx context.Context, pairs []*uniswapv2.Pair, block uint64) error
}

// ArbServiceConfig configures an ArbService.
type ArbServiceConfig struct {
	Orchestrator   *arbitrage.Orchestrator
	Universe       *uniswapv2.Universe
	Loader         PairRefresher
	Tracker        *domain.BlockTracker
	Locks          domain.LockManager // nil selects an in-process lock
	History        *HistoryService    // optional
	MinerRewardPct int64
	LockTTL        time.Duration
	RefreshWait    time.Duration
	Logger         *slog.Logger
}

// ArbService answers swap intents with signed arbitrage transactions and
// keeps the reserve snapshot fresh.
type ArbService struct {
	orch     *arbitrage.Orchestrator
	universe *uniswapv2.Universe
	loader   PairRefresher
	tracker  *domain.BlockTracker
	locks    domain.LockManager
	history  *HistoryService
	pct      int64
	lockTTL  time.Duration
	wait     time.Duration
	logger   *slog.Logger

	// mu serialises everything that reads or writes pair reserves: intent
	// simulation and detection, block evaluation and refreshes.
	mu sync.Mutex
}

// NewArbService creates an ArbService.
func NewArbService(cfg ArbServiceConfig) *ArbService {
	s := &ArbService{
		orch:     cfg.Orchestrator,
		universe: cfg.Universe,
		loader:   cfg.Loader,
		tracker:  cfg.Tracker,
		locks:    cfg.Locks,
		history:  cfg.History,
		pct:      cfg.MinerRewardPct,
		lockTTL:  cfg.LockTTL,
		wait:     cfg.RefreshWait,
		logger:   cfg.Logger.With(slog.String("component", "arb_service")),
	}
	if s.locks == nil {
		s.locks = NewLocalLocks()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	if s.wait <= 0 {
		s.wait = 5 * time.Second
	}
	return s
}

// Tracker returns the block tracker.
func (s *ArbService) Tracker() *domain.BlockTracker { return s.tracker }

// Markets returns the markets grouped by token.
func (s *ArbService) Markets() domain.MarketsByToken { return s.universe.ByToken }

// IntentResult is the answer to one swap intent.
type IntentResult struct {
	OpportunityID string
	Opportunity   domain.CrossedMarket
	Tx            *domain.SignedTx
}

// CheckArbitrage refreshes reserves when stale, applies the intent to the
// touched market and, when that leaves the token crossed against the base
// asset, returns a signed transaction for the token's executor. Intents that
// do not touch the base asset, or that would fail on-chain, yield
// domain.ErrNoArbitrage.
func (s *ArbService) CheckArbitrage(ctx context.Context, intent domain.SwapIntent) (*IntentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := s.tracker.Snapshot()
	if block.Stale {
		if err := s.refresh(ctx, block.Number); err != nil {
			return nil, err
		}
		block.Stale = false
	}

	base := s.orch.Base()
	var token common.Address
	switch base {
	case intent.TokenOut:
		token = intent.TokenIn
	case intent.TokenIn:
		token = intent.TokenOut
	default:
		return nil, domain.ErrNoArbitrage
	}
	if !s.SimulateMarketSwap(intent, token) {
		return nil, domain.ErrNoArbitrage
	}

	opp := s.orch.EvaluateForToken(ctx, token, s.universe.ByToken, block)
	if opp == nil {
		return nil, domain.ErrNoArbitrage
	}

	res := &IntentResult{Opportunity: *opp, OpportunityID: OpportunityID(*opp, block.Number, intent.ID)}
	if s.history != nil {
		s.history.RecordIntentOpportunity(ctx, block.Number, *opp, intent.ID)
	}

	tx, err := s.orch.BuildSignedTransaction(ctx, *opp, s.pct, token)
	if err != nil {
		if s.history != nil {
			s.history.Audit(ctx, "intent.build_failed", map[string]any{
				"intent_id":      intent.ID,
				"opportunity_id": res.OpportunityID,
				"error":          err.Error(),
			})
		}
		return nil, fmt.Errorf("arb_service: build transaction: %w", err)
	}
	res.Tx = tx

	s.logger.InfoContext(ctx, "intent arbitrage signed",
		slog.String("intent_id", intent.ID),
		slog.String("opp_id", res.OpportunityID),
		slog.String("tx_hash", tx.Tx.Hash().Hex()),
		slog.Uint64("gas_limit", tx.Tx.Gas()),
		slog.String("miner_reward_eth", domain.FormatEther(tx.MinerReward)),
	)
	if s.history != nil {
		s.history.Audit(ctx, "intent.signed", map[string]any{
			"intent_id":      intent.ID,
			"opportunity_id": res.OpportunityID,
			"tx_hash":        tx.Tx.Hash().Hex(),
		})
	}
	return res, nil
}

// SimulateMarketSwap applies intent to the market it names among the
// markets trading token. Unknown markets report false.
func (s *ArbService) SimulateMarketSwap(intent domain.SwapIntent, token common.Address) bool {
	m, ok := s.universe.ByToken.Find(token, intent.Market)
	if !ok {
		return false
	}
	return m.SimulateSwap(intent.TokenIn, intent.TokenOut, intent.AmountIn, intent.AmountOut, intent.SlippageBps)
}

// RefreshReserves reloads every pair at block.Number unless that block was
// already loaded. It waits for any intent or evaluation in progress.
func (s *ArbService) RefreshReserves(ctx context.Context, block domain.BlockContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx, block.Number)
}

// WithFreshReserves refreshes reserves when block is stale, then runs fn
// before any intent or other refresh can touch them.
func (s *ArbService) WithFreshReserves(ctx context.Context, block domain.BlockContext, fn func(domain.BlockContext)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block.Stale {
		if err := s.refresh(ctx, block.Number); err != nil {
			return err
		}
		block.Stale = false
	}
	fn(block)
	return nil
}

// refresh loads reserves at block n. Concurrent processes share one reload
// through the refresh:<block> lock; a caller that loses the race waits for
// the winner and fails with domain.ErrStaleReserves if it does not finish in
// time. Callers hold s.mu.
func (s *ArbService) refresh(ctx context.Context, n uint64) error {
	if s.refreshed(n) {
		return nil
	}

	unlock, err := s.locks.Acquire(ctx, refreshLockKey(n), s.lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return s.awaitRefresh(ctx, n)
	}
	if err != nil {
		return fmt.Errorf("arb_service: refresh lock: %w", err)
	}
	defer unlock()

	if s.refreshed(n) {
		return nil
	}
	start := time.Now()
	if err := s.loader.RefreshReserves(ctx, s.universe.Pairs, n); err != nil {
		return fmt.Errorf("arb_service: refresh reserves at %d: %w", n, err)
	}
	s.tracker.MarkRefreshed(n)
	s.logger.DebugContext(ctx, "reserves refreshed",
		slog.Uint64("block", n),
		slog.Int("pairs", len(s.universe.Pairs)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *ArbService) refreshed(n uint64) bool {
	last := s.tracker.LastRefreshed()
	return last != 0 && last >= n
}

func (s *ArbService) awaitRefresh(ctx context.Context, n uint64) error {
	deadline := time.NewTimer(s.wait)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.refreshed(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("arb_service: block %d: %w", n, domain.ErrStaleReserves)
		case <-tick.C:
		}
	}
}

func refreshLockKey(block uint64) string {
	return "refresh:" + strconv.FormatUint(block, 10)
}

var _ arbitrage.ReserveRefresher = (*ArbService)(nil)
