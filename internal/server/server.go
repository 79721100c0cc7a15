// Package server exposes the read-only HTTP API, the dashboard websocket and
// the swap-intent ingestion websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/server/handler"
	"github.com/alanyoungcy/ammarb/internal/server/middleware"
	"github.com/alanyoungcy/ammarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	IntentPort  int // 0 or equal to Port serves intents on the API listener
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // API requests per client per minute, 0 disables
}

// Handlers aggregates the handlers the server routes to. Nil entries leave
// their routes unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	History *handler.HistoryHandler
	Hub     *ws.Hub
	Intents *ws.IntentServer
}

// Server runs one or two http.Servers.
type Server struct {
	api     *http.Server
	intent  *http.Server
	intents *ws.IntentServer
	logger  *slog.Logger
}

// NewServer registers routes and builds the middleware chain.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if h.Health != nil {
		mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	}
	if h.Status != nil {
		mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	}
	if h.History != nil {
		mux.Handle("GET /api/opportunities/recent",
			middleware.RateLimit(limiter, "api", cfg.RateLimit, time.Minute, logger)(http.HandlerFunc(h.History.RecentOpportunities)))
		mux.Handle("GET /api/bundles/recent",
			middleware.RateLimit(limiter, "api", cfg.RateLimit, time.Minute, logger)(http.HandlerFunc(h.History.RecentBundles)))
		mux.Handle("GET /api/opportunities/stream",
			middleware.RateLimit(limiter, "api", cfg.RateLimit, time.Minute, logger)(http.HandlerFunc(h.History.OpportunityStream)))
		mux.Handle("GET /api/bundles/stream",
			middleware.RateLimit(limiter, "api", cfg.RateLimit, time.Minute, logger)(http.HandlerFunc(h.History.BundleStream)))
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	s := &Server{intents: h.Intents, logger: logger}

	separate := h.Intents != nil && cfg.IntentPort != 0 && cfg.IntentPort != cfg.Port
	if h.Intents != nil && !separate {
		mux.HandleFunc("GET /ws/intents", h.Intents.HandleIntents)
	}

	var api http.Handler = mux
	api = middleware.Auth(cfg.APIKey, "/api/health")(api)
	api = middleware.Logging(logger)(api)
	api = middleware.CORS(cfg.CORSOrigins)(api)
	s.api = newHTTPServer(cfg.Port, api)

	if separate {
		imux := http.NewServeMux()
		imux.HandleFunc("GET /ws/intents", h.Intents.HandleIntents)
		var ih http.Handler = imux
		ih = middleware.Auth(cfg.APIKey)(ih)
		ih = middleware.Logging(logger)(ih)
		s.intent = newHTTPServer(cfg.IntentPort, ih)
	}
	return s
}

func newHTTPServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Handler returns the API handler chain.
func (s *Server) Handler() http.Handler { return s.api.Handler }

// IntentHandler returns the ingestion handler chain when it has its own
// listener, or nil.
func (s *Server) IntentHandler() http.Handler {
	if s.intent == nil {
		return nil
	}
	return s.intent.Handler
}

// Start listens on every configured port and blocks until all listeners
// stop. A clean Shutdown returns nil.
func (s *Server) Start() error {
	var g errgroup.Group
	for _, srv := range s.servers() {
		g.Go(func() error {
			s.logger.Info("listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown closes ingestion connections and drains every listener within
// ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if s.intents != nil {
		s.intents.Close()
	}
	var errs []error
	for _, srv := range s.servers() {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) servers() []*http.Server {
	out := []*http.Server{s.api}
	if s.intent != nil {
		out = append(out, s.intent)
	}
	return out
}
