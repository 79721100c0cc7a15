package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SubmittedCounter counts bundles accepted by the relay.
type SubmittedCounter interface {
	CountSubmitted(ctx context.Context, since time.Time) (int64, error)
}

// ReportSender delivers the daily summary.
type ReportSender interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DailyReport sends the number of bundles submitted over the last 24h.
type DailyReport struct {
	bundles SubmittedCounter
	sender  ReportSender
	event   string
	now     func() time.Time
	logger  *slog.Logger
}

// NewDailyReport creates a DailyReport that notifies under event.
func NewDailyReport(bundles SubmittedCounter, sender ReportSender, event string, logger *slog.Logger) *DailyReport {
	return &DailyReport{
		bundles: bundles,
		sender:  sender,
		event:   event,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "daily_report")),
	}
}

// Run counts and sends one report.
func (r *DailyReport) Run(ctx context.Context) error {
	since := r.now().UTC().Add(-24 * time.Hour)
	n, err := r.bundles.CountSubmitted(ctx, since)
	if err != nil {
		return fmt.Errorf("pipeline: count submitted bundles: %w", err)
	}
	msg := fmt.Sprintf("%d bundle(s) submitted since %s", n, since.Format(time.RFC3339))
	r.logger.InfoContext(ctx, "daily report", slog.Int64("submitted", n))
	if err := r.sender.Notify(ctx, r.event, "Daily report", msg); err != nil {
		return fmt.Errorf("pipeline: send daily report: %w", err)
	}
	return nil
}
