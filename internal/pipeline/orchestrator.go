package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job interface {
	Run(ctx context.Context) error
}

// Schedule binds a job to a standard 5-field cron expression (UTC).
type Schedule struct {
	Name string
	Spec string
	Job  Job
}

// Orchestrator runs scheduled jobs until its context is cancelled.
type Orchestrator struct {
	schedules  []Schedule
	jobTimeout time.Duration
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. jobTimeout bounds each run;
// zero means no bound beyond the parent context.
func NewOrchestrator(schedules []Schedule, jobTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		schedules:  schedules,
		jobTimeout: jobTimeout,
		logger:     logger.With(slog.String("component", "pipeline")),
	}
}

// Run registers every schedule and blocks until ctx is done. An invalid
// cron expression fails before anything is started.
func (o *Orchestrator) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	for _, s := range o.schedules {
		if _, err := c.AddFunc(s.Spec, o.wrap(ctx, s)); err != nil {
			return fmt.Errorf("pipeline: schedule %s %q: %w", s.Name, s.Spec, err)
		}
		o.logger.Info("job scheduled", slog.String("job", s.Name), slog.String("cron", s.Spec))
	}
	if len(o.schedules) == 0 {
		o.logger.Info("no jobs scheduled")
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	o.logger.Info("pipeline stopped")
	return nil
}

func (o *Orchestrator) wrap(ctx context.Context, s Schedule) func() {
	return func() {
		runCtx := ctx
		if o.jobTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, o.jobTimeout)
			defer cancel()
		}
		start := time.Now()
		if err := s.Job.Run(runCtx); err != nil {
			o.logger.Error("job failed",
				slog.String("job", s.Name),
				slog.String("error", err.Error()),
			)
			return
		}
		o.logger.Debug("job done", slog.String("job", s.Name), slog.Duration("took", time.Since(start)))
	}
}
