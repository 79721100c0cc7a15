package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// ReserveRefresher brings market reserves up to date for a block and runs fn
// while no other refresh or swap simulation can change them. fn receives the
// block with Stale cleared. fn is not called when the refresh fails.
type ReserveRefresher interface {
	WithFreshReserves(ctx context.Context, block domain.BlockContext, fn func(domain.BlockContext)) error
}

// OpportunityRecorder persists and publishes detected opportunities.
type OpportunityRecorder interface {
	RecordOpportunities(ctx context.Context, block domain.BlockContext, opps []domain.CrossedMarket)
}

// Batch is the ranked result of one block, handed to the executor.
type Batch struct {
	Block      uint64
	Ranked     []domain.CrossedMarket
	DetectedAt time.Time
}

// Detector evaluates every market on each new block and forwards non-empty
// ranked batches.
type Detector struct {
	orch      *Orchestrator
	markets   domain.MarketsByToken
	refresher ReserveRefresher
	recorder  OpportunityRecorder
	logger    *slog.Logger

	lastBlock uint64
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Orchestrator *Orchestrator
	Markets      domain.MarketsByToken
	Refresher    ReserveRefresher
	Recorder     OpportunityRecorder // optional
	Logger       *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		orch:      cfg.Orchestrator,
		markets:   cfg.Markets,
		refresher: cfg.Refresher,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// Run consumes block contexts until ctx is cancelled or blocks is closed.
func (d *Detector) Run(ctx context.Context, blocks <-chan domain.BlockContext, out chan<- Batch) error {
	d.logger.Info("arb detector started",
		slog.String("searcher", d.orch.Searcher().Name()),
		slog.Int("tokens", len(d.markets)),
	)
	defer d.logger.Info("arb detector stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			batch, found := d.HandleBlock(ctx, block)
			if !found {
				continue
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// HandleBlock refreshes reserves if needed and evaluates all markets. Blocks
// at or below the last handled one are ignored.
func (d *Detector) HandleBlock(ctx context.Context, block domain.BlockContext) (Batch, bool) {
	if block.Number <= d.lastBlock {
		return Batch{}, false
	}
	d.lastBlock = block.Number

	var ranked []domain.CrossedMarket
	start := time.Now()
	err := d.refresher.WithFreshReserves(ctx, block, func(fresh domain.BlockContext) {
		block = fresh
		ranked = d.orch.EvaluateAll(ctx, d.markets, fresh)
	})
	if err != nil {
		d.logger.Warn("reserve refresh failed",
			slog.Uint64("block", block.Number),
			slog.String("error", err.Error()),
		)
		return Batch{}, false
	}
	d.logger.Debug("block evaluated",
		slog.Uint64("block", block.Number),
		slog.Int("opportunities", len(ranked)),
		slog.Duration("took", time.Since(start)),
	)
	if len(ranked) == 0 {
		return Batch{}, false
	}
	if d.recorder != nil {
		d.recorder.RecordOpportunities(ctx, block, ranked)
	}
	return Batch{Block: block.Number, Ranked: ranked, DetectedAt: time.Now()}, true
}
