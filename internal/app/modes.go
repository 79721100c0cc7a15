package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/executor"
	"github.com/alanyoungcy/ammarb/internal/notify"
	"github.com/alanyoungcy/ammarb/internal/pipeline"
	"github.com/alanyoungcy/ammarb/internal/server"
	"github.com/alanyoungcy/ammarb/internal/server/handler"
	"github.com/alanyoungcy/ammarb/internal/server/ws"
)

// SearcherMode follows the chain, detects crossed markets every block and
// submits the ranked batch to the relay.
func (a *App) SearcherMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.engine(ctx, deps)
	if err != nil {
		return fmt.Errorf("searcher mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)

	a.runFeed(ctx, g, eng)
	a.runSearcher(ctx, g, deps, eng, eng.Feed.Blocks())
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, eng, nil)
	}
	a.announceStartup(ctx, deps, eng)
	return g.Wait()
}

// IngestMode answers swap intents over websocket. Reserves are refreshed on
// every new block so intents are priced against current state.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.engine(ctx, deps)
	if err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)

	a.runFeed(ctx, g, eng)
	g.Go(func() error {
		return a.refreshLoop(ctx, eng)
	})
	a.startServer(ctx, g, deps, eng, a.intentServer(eng))
	a.announceStartup(ctx, deps, eng)
	return g.Wait()
}

// FullMode runs the searcher, the intent server, the dashboard and the
// scheduled jobs in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.engine(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)

	a.runFeed(ctx, g, eng)
	// Block evaluation and intents take turns on the same reserves.
	a.runSearcher(ctx, g, deps, eng, eng.Feed.Blocks())
	a.startServer(ctx, g, deps, eng, a.intentServer(eng))
	a.startPipeline(ctx, g, deps)
	a.announceStartup(ctx, deps, eng)
	return g.Wait()
}

// ServerMode serves the dashboard and history API from persisted state and
// runs the scheduled jobs. It needs no node or keys.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, nil, nil)
	a.startPipeline(ctx, g, deps)
	a.announceStartup(ctx, deps, nil)
	return g.Wait()
}

func (a *App) engine(ctx context.Context, deps *Dependencies) (*Engine, error) {
	eng, cleanup, err := BuildEngine(ctx, a.cfg, deps, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cleanup)
	return eng, nil
}

func (a *App) runFeed(ctx context.Context, g *errgroup.Group, eng *Engine) {
	g.Go(func() error {
		defer eng.Feed.Close()
		return eng.Feed.Run(ctx)
	})
}

// runSearcher connects detector and executor with a one-slot queue. A batch
// the executor has not picked up yet is about to expire anyway.
func (a *App) runSearcher(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *Engine, blocks <-chan domain.BlockContext) {
	batches := make(chan arbitrage.Batch, 1)

	detector := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Orchestrator: eng.Orchestrator,
		Markets:      eng.Universe.ByToken,
		Refresher:    eng.Arb,
		Recorder:     deps.History,
		Logger:       a.logger,
	})
	exec := executor.New(executor.Config{
		Submitter:       eng.Orchestrator,
		Recorder:        deps.History,
		Announcer:       deps.Notifier,
		Tracker:         eng.Tracker,
		MinerRewardPct:  int64(a.cfg.Arbitrage.MinerRewardPct),
		DedupTTL:        a.cfg.Arbitrage.DedupTTL.Duration,
		MaxBlockLag:     uint64(a.cfg.Arbitrage.MaxBlockLag),
		CleanupInterval: time.Minute,
		Logger:          a.logger,
	})

	g.Go(func() error {
		defer close(batches)
		return detector.Run(ctx, blocks, batches)
	})
	g.Go(func() error {
		return exec.Run(ctx, batches)
	})
}

// refreshLoop keeps reserves current when no detector is running.
func (a *App) refreshLoop(ctx context.Context, eng *Engine) error {
	blocks := eng.Feed.Blocks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			if !block.Stale {
				continue
			}
			if err := eng.Arb.RefreshReserves(ctx, block); err != nil {
				a.logger.WarnContext(ctx, "reserve refresh failed",
					slog.Uint64("block", block.Number),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (a *App) intentServer(eng *Engine) *ws.IntentServer {
	return ws.NewIntentServer(ws.IntentServerConfig{
		Checker:        eng.Arb,
		Timeout:        a.cfg.Arbitrage.IntentTimeout.Duration,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Logger:         a.logger,
	})
}

// startServer adds the HTTP listeners and the dashboard hub to g. eng and
// intents are nil in modes that do not run them. Listeners are shut down
// gracefully when ctx is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *Engine, intents *ws.IntentServer) {
	statusCfg := handler.StatusConfig{
		Mode:      a.cfg.Mode,
		Searcher:  a.cfg.Arbitrage.Searcher,
		Base:      a.cfg.Arbitrage.BaseToken,
		StartedAt: time.Now().UTC(),
	}
	if eng != nil {
		statusCfg.Tracker = eng.Tracker
		statusCfg.Markets = eng.Universe.ByToken
	}
	status := handler.NewStatusHandler(statusCfg)

	hub := ws.NewHub(ws.HubConfig{
		Bus:            deps.SignalBus,
		Status:         status.Snapshot,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		Logger:         a.logger,
	})
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		IntentPort:  a.cfg.Server.IntentPort,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pingers, a.logger),
		Status:  status,
		History: handler.NewHistoryHandler(deps.History, a.logger),
		Hub:     hub,
		Intents: intents,
	}, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startPipeline schedules the archive and daily report jobs. Jobs whose
// backing store is not configured are left out.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var schedules []pipeline.Schedule
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		schedules = append(schedules, pipeline.Schedule{
			Name: "archive",
			Spec: a.cfg.Archive.Cron,
			Job:  pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger),
		})
	}
	if deps.BundleStore != nil && deps.Notifier.Enabled() && a.cfg.Archive.ReportCron != "" {
		schedules = append(schedules, pipeline.Schedule{
			Name: "daily_report",
			Spec: a.cfg.Archive.ReportCron,
			Job:  pipeline.NewDailyReport(deps.BundleStore, deps.Notifier, notify.EventDailyReport, a.logger),
		})
	}
	if len(schedules) == 0 {
		a.logger.InfoContext(ctx, "no scheduled jobs configured")
		return
	}

	orch := pipeline.NewOrchestrator(schedules, a.cfg.Archive.JobTimeout.Duration, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

func (a *App) announceStartup(ctx context.Context, deps *Dependencies, eng *Engine) {
	msg := fmt.Sprintf("mode=%s", a.cfg.Mode)
	if eng != nil {
		msg += fmt.Sprintf(" searcher=%s tokens=%d pairs=%d",
			eng.Signer.Address().Hex(), len(eng.Universe.ByToken), len(eng.Universe.Pairs))
	}
	if err := deps.Notifier.Notify(ctx, notify.EventStartup, "ammarb started", msg); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}
}
