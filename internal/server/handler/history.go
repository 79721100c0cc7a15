package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"regexp"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// HistoryReader lists recent opportunities and bundle attempts and replays
// their event streams.
type HistoryReader interface {
	RecentOpportunities(ctx context.Context, limit int) ([]domain.OpportunityRecord, error)
	RecentBundles(ctx context.Context, limit int) ([]domain.BundleRecord, error)
	ReadStream(ctx context.Context, stream, after string, limit int) ([]domain.StreamMessage, error)
}

// HistoryHandler serves the history endpoints.
type HistoryHandler struct {
	history HistoryReader
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history HistoryReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

type opportunityView struct {
	domain.OpportunityRecord
	VolumeETH string `json:"volume_eth"`
	ProfitETH string `json:"profit_eth"`
}

type bundleView struct {
	domain.BundleRecord
	MinerRewardETH string `json:"miner_reward_eth,omitempty"`
}

// RecentOpportunities returns the newest opportunities.
// GET /api/opportunities/recent?limit=20
func (h *HistoryHandler) RecentOpportunities(w http.ResponseWriter, r *http.Request) {
	recs, err := h.history.RecentOpportunities(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	out := make([]opportunityView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, opportunityView{
			OpportunityRecord: rec,
			VolumeETH:         weiText(rec.Volume),
			ProfitETH:         weiText(rec.Profit),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out})
}

// RecentBundles returns the newest bundle attempts.
// GET /api/bundles/recent?limit=20
func (h *HistoryHandler) RecentBundles(w http.ResponseWriter, r *http.Request) {
	recs, err := h.history.RecentBundles(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bundles failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bundles")
		return
	}
	out := make([]bundleView, 0, len(recs))
	for _, rec := range recs {
		v := bundleView{BundleRecord: rec}
		if rec.MinerReward != "" {
			v.MinerRewardETH = weiText(rec.MinerReward)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bundles": out})
}

// streamID matches a stream entry ID, "ms" or "ms-seq".
var streamID = regexp.MustCompile(`^[0-9]+(-[0-9]+)?$`)

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// OpportunityStream replays published opportunity events.
// GET /api/opportunities/stream?after=0&limit=50
func (h *HistoryHandler) OpportunityStream(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, domain.StreamOpportunities)
}

// BundleStream replays published bundle events.
// GET /api/bundles/stream?after=0&limit=50
func (h *HistoryHandler) BundleStream(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, domain.StreamBundles)
}

// replay answers with the events after ?after= and the cursor to pass next.
// The cursor stays put when nothing new was appended.
func (h *HistoryHandler) replay(w http.ResponseWriter, r *http.Request, stream string) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	if !streamID.MatchString(after) {
		writeError(w, http.StatusBadRequest, "invalid after cursor")
		return
	}
	msgs, err := h.history.ReadStream(r.Context(), stream, after, parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read stream failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	events := make([]streamEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if !json.Valid(m.Payload) {
			h.logger.WarnContext(r.Context(), "skipping malformed stream entry",
				slog.String("stream", stream),
				slog.String("id", m.ID),
			)
			continue
		}
		events = append(events, streamEvent{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}

// weiText renders a decimal wei string in ETH, or returns it unchanged when
// it does not parse.
func weiText(wei string) string {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	return domain.FormatEther(v)
}
