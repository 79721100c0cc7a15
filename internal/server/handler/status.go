package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// StatusConfig describes the running engine.
type StatusConfig struct {
	Mode      string
	Searcher  string
	Base      string
	Tracker   *domain.BlockTracker
	Markets   domain.MarketsByToken
	StartedAt time.Time
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	cfg StatusConfig
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg StatusConfig) *StatusHandler {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &StatusHandler{cfg: cfg}
}

type statusResponse struct {
	Mode          string `json:"mode"`
	Searcher      string `json:"searcher"`
	Base          string `json:"base_token"`
	LatestBlock   uint64 `json:"latest_block"`
	LastRefreshed uint64 `json:"last_refreshed_block"`
	Stale         bool   `json:"stale"`
	Tokens        int    `json:"tokens"`
	Markets       int    `json:"markets"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// GetStatus reports mode, block freshness and market counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// Snapshot returns the current status body. The dashboard hub sends it to
// new clients.
func (h *StatusHandler) Snapshot() any {
	resp := statusResponse{
		Mode:          h.cfg.Mode,
		Searcher:      h.cfg.Searcher,
		Base:          h.cfg.Base,
		Tokens:        len(h.cfg.Markets),
		Markets:       len(h.cfg.Markets.All()),
		UptimeSeconds: int64(time.Since(h.cfg.StartedAt).Seconds()),
	}
	if h.cfg.Tracker != nil {
		snap := h.cfg.Tracker.Snapshot()
		resp.LatestBlock = snap.Number
		resp.Stale = snap.Stale
		resp.LastRefreshed = h.cfg.Tracker.LastRefreshed()
	}
	return resp
}
