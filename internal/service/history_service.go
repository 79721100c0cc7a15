package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/domain"
)

// opportunityNS namespaces the deterministic opportunity IDs.
var opportunityNS = uuid.MustParse("6f1c3b52-8f0e-4c4e-9d3a-2b7f5a0c9e11")

// OpportunityID derives a stable ID from the market pair, block and optional
// intent, so the detector and executor agree without sharing state.
func OpportunityID(opp domain.CrossedMarket, block uint64, intentID string) string {
	name := opp.Key(block)
	if intentID != "" {
		name += ":" + intentID
	}
	return uuid.NewSHA1(opportunityNS, []byte(name)).String()
}

// HistoryServiceConfig configures a HistoryService. Every dependency is
// optional; missing ones are skipped.
type HistoryServiceConfig struct {
	Opportunities domain.OpportunityStore
	Bundles       domain.BundleStore
	Bus           domain.SignalBus
	Audit         domain.AuditStore
	Logger        *slog.Logger
}

// HistoryService persists, publishes and audits opportunities and bundle
// attempts.
type HistoryService struct {
	opps    domain.OpportunityStore
	bundles domain.BundleStore
	bus     domain.SignalBus
	audit   domain.AuditStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(cfg HistoryServiceConfig) *HistoryService {
	return &HistoryService{
		opps:    cfg.Opportunities,
		bundles: cfg.Bundles,
		bus:     cfg.Bus,
		audit:   cfg.Audit,
		now:     time.Now,
		logger:  cfg.Logger.With(slog.String("component", "history_service")),
	}
}

// opportunityEvent is the payload published on ch:opportunity.
type opportunityEvent struct {
	Event string `json:"event"`
	domain.OpportunityRecord
	ProfitETH string `json:"profit_eth"`
	VolumeETH string `json:"volume_eth"`
}

// bundleEvent is the payload published on ch:bundle.
type bundleEvent struct {
	Event string `json:"event"`
	domain.BundleRecord
}

// RecordOpportunities stores and publishes every block-triggered opportunity.
func (s *HistoryService) RecordOpportunities(ctx context.Context, block domain.BlockContext, opps []domain.CrossedMarket) {
	for _, opp := range opps {
		s.record(ctx, block.Number, opp, domain.SourceBlock, "")
	}
}

// RecordIntentOpportunity stores and publishes an opportunity found for a
// swap intent and returns its ID.
func (s *HistoryService) RecordIntentOpportunity(ctx context.Context, block uint64, opp domain.CrossedMarket, intentID string) string {
	return s.record(ctx, block, opp, domain.SourceIntent, intentID).ID
}

func (s *HistoryService) record(ctx context.Context, block uint64, opp domain.CrossedMarket, source domain.OpportunitySource, intentID string) domain.OpportunityRecord {
	rec := domain.OpportunityRecord{
		ID:         OpportunityID(opp, block, intentID),
		Block:      block,
		Source:     source,
		IntentID:   intentID,
		Token:      opp.Token.Hex(),
		BuyFrom:    opp.BuyFrom.Address().Hex(),
		SellTo:     opp.SellTo.Address().Hex(),
		Volume:     opp.Volume.String(),
		Profit:     opp.Profit.String(),
		DetectedAt: s.now().UTC(),
	}
	log := s.logger.With(slog.String("opp_id", rec.ID))
	log.InfoContext(ctx, "crossed market",
		slog.Uint64("block", block),
		slog.String("source", string(source)),
		slog.String("token", rec.Token),
		slog.String("buy_from", rec.BuyFrom),
		slog.String("sell_to", rec.SellTo),
		slog.String("volume_eth", domain.FormatEther(opp.Volume)),
		slog.String("profit_eth", domain.FormatEther(opp.Profit)),
	)

	if s.opps != nil {
		if err := s.opps.Insert(ctx, rec); err != nil {
			log.WarnContext(ctx, "opportunity insert failed", slog.String("error", err.Error()))
		}
	}
	s.publish(ctx, domain.ChannelOpportunity, domain.StreamOpportunities, opportunityEvent{
		Event:             "opportunity_detected",
		OpportunityRecord: rec,
		ProfitETH:         domain.FormatEther(opp.Profit),
		VolumeETH:         domain.FormatEther(opp.Volume),
	})
	return rec
}

// RecordBatch stores one bundle row per attempt of res and audits the
// outcome. cause is the error SubmitBatch returned, if any.
func (s *HistoryService) RecordBatch(ctx context.Context, res *arbitrage.BatchResult, cause error) {
	if res == nil {
		return
	}
	for _, att := range res.Attempts {
		rec := BundleRecordFor(att, res.Block)
		rec.CreatedAt = s.now().UTC()
		if s.bundles != nil {
			if err := s.bundles.Insert(ctx, rec); err != nil {
				s.logger.WarnContext(ctx, "bundle insert failed",
					slog.String("bundle_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if att.State == domain.AttemptSubmitted {
			s.publish(ctx, domain.ChannelBundle, domain.StreamBundles, bundleEvent{Event: "bundle_submitted", BundleRecord: rec})
		}
	}

	detail := map[string]any{
		"block":    res.Block,
		"attempts": len(res.Attempts),
	}
	event := "batch.submitted"
	switch {
	case res.Submitted != nil:
		detail["opportunity_id"] = OpportunityID(res.Submitted.Opportunity, res.Block, "")
		detail["targets"] = res.Submitted.TargetBlocks
	case cause != nil:
		event = "batch.failed"
		detail["error"] = cause.Error()
	}
	s.auditLog(ctx, event, detail)
}

// BundleRecordFor converts an attempt into its persisted form.
func BundleRecordFor(att arbitrage.Attempt, block uint64) domain.BundleRecord {
	rec := domain.BundleRecord{
		ID:            uuid.NewString(),
		OpportunityID: OpportunityID(att.Opportunity, block, ""),
		Block:         block,
		TargetBlocks:  att.TargetBlocks,
		State:         att.State,
	}
	if att.Err != nil {
		rec.Reason = att.Err.Error()
	}
	if att.Tx != nil && att.Tx.MinerReward != nil {
		rec.MinerReward = att.Tx.MinerReward.String()
	}
	if sim := att.Simulation; sim != nil {
		rec.BundleHash = sim.BundleHash
		rec.GasUsed = sim.TotalGasUsed
		if sim.CoinbaseDiff != nil {
			rec.CoinbaseDiff = sim.CoinbaseDiff.String()
		}
	}
	if len(att.Acks) > 0 {
		rec.BundleHash = att.Acks[0].BundleHash
	}
	return rec
}

// RecentOpportunities lists the newest stored opportunities.
func (s *HistoryService) RecentOpportunities(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if s.opps == nil {
		return nil, nil
	}
	recs, err := s.opps.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: list opportunities: %w", err)
	}
	return recs, nil
}

// RecentBundles lists the newest stored bundle attempts.
func (s *HistoryService) RecentBundles(ctx context.Context, limit int) ([]domain.BundleRecord, error) {
	if s.bundles == nil {
		return nil, nil
	}
	recs, err := s.bundles.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: list bundles: %w", err)
	}
	return recs, nil
}

// ReadStream returns up to limit events appended to stream after the entry
// ID after ("0" for the start). Without a bus there is nothing to replay.
func (s *HistoryService) ReadStream(ctx context.Context, stream, after string, limit int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, nil
	}
	msgs, err := s.bus.StreamRead(ctx, stream, after, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: read %s: %w", stream, err)
	}
	return msgs, nil
}

// Audit writes an audit entry. Failures are logged.
func (s *HistoryService) Audit(ctx context.Context, event string, detail map[string]any) {
	s.auditLog(ctx, event, detail)
}

func (s *HistoryService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *HistoryService) publish(ctx context.Context, channel, stream string, payload any) {
	if s.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, raw); err != nil {
		s.logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, stream, raw); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

var _ arbitrage.OpportunityRecorder = (*HistoryService)(nil)
