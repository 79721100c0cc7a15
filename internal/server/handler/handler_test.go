package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	bad := pingFunc(func(context.Context) error { return errors.New("refused") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"redis": ok}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"redis": ok, "postgres": bad}, discardLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "refused", body.Checks["postgres"])
	assert.Equal(t, "ok", body.Checks["redis"])
}

func TestGetStatus(t *testing.T) {
	tracker := domain.NewBlockTracker()
	tracker.Observe(100)
	tracker.MarkRefreshed(99)

	h := NewStatusHandler(StatusConfig{Mode: "full", Searcher: "step", Tracker: tracker})
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "full", got.Mode)
	assert.EqualValues(t, 100, got.LatestBlock)
	assert.EqualValues(t, 99, got.LastRefreshed)
	assert.True(t, got.Stale)
}

type fakeHistory struct {
	opps    []domain.OpportunityRecord
	bundles []domain.BundleRecord
	events  []domain.StreamMessage
	stream  string
	after   string
	limit   int
	err     error
}

func (f *fakeHistory) ReadStream(_ context.Context, stream, after string, limit int) ([]domain.StreamMessage, error) {
	f.stream, f.after, f.limit = stream, after, limit
	return f.events, f.err
}

func (f *fakeHistory) RecentOpportunities(_ context.Context, limit int) ([]domain.OpportunityRecord, error) {
	f.limit = limit
	return f.opps, f.err
}

func (f *fakeHistory) RecentBundles(_ context.Context, limit int) ([]domain.BundleRecord, error) {
	f.limit = limit
	return f.bundles, f.err
}

func TestRecentOpportunities(t *testing.T) {
	fh := &fakeHistory{opps: []domain.OpportunityRecord{{ID: "a", Volume: "1500000000000000000", Profit: "oops"}}}
	h := NewHistoryHandler(fh, discardLogger())

	rec := httptest.NewRecorder()
	h.RecentOpportunities(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/recent?limit=1000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, fh.limit)

	var body struct {
		Opportunities []map[string]any `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Opportunities, 1)
	assert.Equal(t, "a", body.Opportunities[0]["id"])
	assert.Equal(t, "1.5", body.Opportunities[0]["volume_eth"])
	assert.Equal(t, "oops", body.Opportunities[0]["profit_eth"])
}

func TestRecentBundles(t *testing.T) {
	fh := &fakeHistory{}
	h := NewHistoryHandler(fh, discardLogger())

	rec := httptest.NewRecorder()
	h.RecentBundles(rec, httptest.NewRequest(http.MethodGet, "/api/bundles/recent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, fh.limit)
	assert.JSONEq(t, `{"bundles":[]}`, rec.Body.String())

	fh.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.RecentBundles(rec, httptest.NewRequest(http.MethodGet, "/api/bundles/recent", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOpportunityStream(t *testing.T) {
	fh := &fakeHistory{events: []domain.StreamMessage{
		{ID: "1700000000000-0", Payload: []byte(`{"event":"opportunity_detected","block":7}`)},
		{ID: "1700000000000-1", Payload: []byte(`not json`)},
	}}
	h := NewHistoryHandler(fh, discardLogger())

	rec := httptest.NewRecorder()
	h.OpportunityStream(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/stream?after=1699999999999-3&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StreamOpportunities, fh.stream)
	assert.Equal(t, "1699999999999-3", fh.after)
	assert.Equal(t, 10, fh.limit)
	assert.JSONEq(t, `{
		"events": [{"id": "1700000000000-0", "event": {"event": "opportunity_detected", "block": 7}}],
		"next": "1700000000000-1"
	}`, rec.Body.String())
}

func TestBundleStream(t *testing.T) {
	fh := &fakeHistory{}
	h := NewHistoryHandler(fh, discardLogger())

	rec := httptest.NewRecorder()
	h.BundleStream(rec, httptest.NewRequest(http.MethodGet, "/api/bundles/stream", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StreamBundles, fh.stream)
	assert.Equal(t, "0", fh.after)
	assert.Equal(t, 50, fh.limit)
	assert.JSONEq(t, `{"events":[],"next":"0"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.BundleStream(rec, httptest.NewRequest(http.MethodGet, "/api/bundles/stream?after=$", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fh.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.BundleStream(rec, httptest.NewRequest(http.MethodGet, "/api/bundles/stream", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
