// Package executor submits the ranked opportunities the detector produces.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
)

// BatchSubmitter submits one ranked batch. *arbitrage.Orchestrator
// implements it.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, ranked []domain.CrossedMarket, block uint64, minerRewardPct int64) (*arbitrage.BatchResult, error)
}

// BatchRecorder persists batch outcomes.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, res *arbitrage.BatchResult, cause error)
}

// Announcer tells operators about submissions.
type Announcer interface {
	BundleSubmitted(ctx context.Context, block uint64, opp domain.CrossedMarket, minerReward *big.Int, hashes []string) error
	BatchAborted(ctx context.Context, block uint64, cause error) error
}

// Config configures an Executor.
type Config struct {
	Submitter      BatchSubmitter
	Recorder       BatchRecorder // optional
	Announcer      Announcer     // optional
	Tracker        *domain.BlockTracker
	MinerRewardPct int64
	DedupTTL       time.Duration
	// MaxBlockLag drops batches whose block trails the latest head by more
	// than this many blocks. Zero keeps the default of 1.
	MaxBlockLag     uint64
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

// Executor reads ranked batches, drops repeats and late batches, submits the
// rest and records the outcome.
type Executor struct {
	submitter BatchSubmitter
	recorder  BatchRecorder
	announcer Announcer
	tracker   *domain.BlockTracker
	pct       int64
	maxLag    uint64
	dedup     *Dedup
	cleanup   time.Duration
	logger    *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	e := &Executor{
		submitter: cfg.Submitter,
		recorder:  cfg.Recorder,
		announcer: cfg.Announcer,
		tracker:   cfg.Tracker,
		pct:       cfg.MinerRewardPct,
		maxLag:    cfg.MaxBlockLag,
		cleanup:   cfg.CleanupInterval,
		logger:    cfg.Logger.With(slog.String("component", "executor")),
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	e.dedup = NewDedup(ttl)
	if e.maxLag == 0 {
		e.maxLag = 1
	}
	if e.cleanup <= 0 {
		e.cleanup = 30 * time.Second
	}
	return e
}

// Run processes batches until ctx is cancelled or batches is closed.
// Batches still queued at shutdown are dropped: their target blocks are
// about to pass.
func (e *Executor) Run(ctx context.Context, batches <-chan arbitrage.Batch) error {
	e.logger.Info("executor started", slog.Int64("miner_reward_pct", e.pct))
	defer e.logger.Info("executor stopped")

	ticker := time.NewTicker(e.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			e.Process(ctx, batch)
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

// Process handles one batch and returns the submission result, or nil when
// the batch was skipped.
func (e *Executor) Process(ctx context.Context, batch arbitrage.Batch) *arbitrage.BatchResult {
	log := e.logger.With(slog.Uint64("block", batch.Block))

	if e.tracker != nil {
		if latest := e.tracker.Snapshot().Number; latest > batch.Block+e.maxLag {
			log.Warn("batch too old, skipping", slog.Uint64("latest", latest))
			return nil
		}
	}

	ranked := make([]domain.CrossedMarket, 0, len(batch.Ranked))
	for _, opp := range batch.Ranked {
		if e.dedup.IsDuplicate(opp.Key(batch.Block)) {
			log.Debug("opportunity deduplicated",
				slog.String("buy_from", opp.BuyFrom.Address().Hex()),
				slog.String("sell_to", opp.SellTo.Address().Hex()),
			)
			continue
		}
		ranked = append(ranked, opp)
	}
	if len(ranked) == 0 {
		return nil
	}

	start := time.Now()
	res, err := e.submitter.SubmitBatch(ctx, ranked, batch.Block, e.pct)
	if e.recorder != nil {
		e.recorder.RecordBatch(ctx, res, err)
	}

	switch {
	case err == nil && res != nil && res.Submitted != nil:
		sub := res.Submitted
		hashes := make([]string, 0, len(sub.Acks))
		for _, ack := range sub.Acks {
			hashes = append(hashes, ack.BundleHash)
		}
		log.Info("batch submitted",
			slog.Int("attempts", attempts(res)),
			slog.String("profit_eth", domain.FormatEther(sub.Opportunity.Profit)),
			slog.Duration("took", time.Since(start)),
		)
		if e.announcer != nil && sub.Tx != nil {
			if nerr := e.announcer.BundleSubmitted(ctx, batch.Block, sub.Opportunity, sub.Tx.MinerReward, hashes); nerr != nil {
				log.Warn("notify failed", slog.String("error", nerr.Error()))
			}
		}
	case errors.Is(err, domain.ErrNoArbitrageSubmitted):
		log.Info("no arbitrage submitted", slog.Int("attempts", attempts(res)))
	case err != nil:
		log.Error("batch aborted", slog.String("error", err.Error()))
		if e.announcer != nil {
			if nerr := e.announcer.BatchAborted(ctx, batch.Block, err); nerr != nil {
				log.Warn("notify failed", slog.String("error", nerr.Error()))
			}
		}
	}
	return res
}

func attempts(res *arbitrage.BatchResult) int {
	if res == nil {
		return 0
	}
	return len(res.Attempts)
}
