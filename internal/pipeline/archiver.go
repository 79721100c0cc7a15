// Package pipeline runs the scheduled background jobs: moving old
// opportunity and bundle history to cold storage and the daily summary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// Archiver moves history older than the retention window to blob storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff returns the instant before which records are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes one archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	opps, err := a.blobArchiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive opportunities before %v: %w", cutoff, err)
	}
	bundles, err := a.blobArchiver.ArchiveBundles(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive bundles before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("opportunities_archived", opps),
		slog.Int64("bundles_archived", bundles),
	)
	return nil
}
