// Package server assembles the HTTP and WebSocket surface of the ledger.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/server/handler"
	"github.com/agberohq/agbero/internal/server/middleware"
	"github.com/agberohq/agbero/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// Tokens maps API tokens to caller identities. Empty enables dev mode,
	// where the X-Agbero-Identity header names the caller.
	Tokens map[string]string

	// RateLimit caps requests per client IP per RateWindow; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Bonds    *handler.BondHandler
	Accounts *handler.AccountHandler
	Audit    *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server of the bond ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (rate limiting, identity, logging, CORS) applied. limiter may be nil
// to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("POST /api/bonds", handlers.Bonds.CreateBond)
	mux.HandleFunc("GET /api/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", handlers.Bonds.GetBond)
	mux.HandleFunc("GET /api/bonds/{id}/votes", handlers.Bonds.ListVotes)
	mux.HandleFunc("POST /api/bonds/{id}/stake", handlers.Bonds.StakeCollateral)
	mux.HandleFunc("POST /api/bonds/{id}/proof", handlers.Bonds.SubmitProof)
	mux.HandleFunc("POST /api/bonds/{id}/votes", handlers.Bonds.CastVote)
	mux.HandleFunc("POST /api/bonds/{id}/finalize", handlers.Bonds.FinalizeBond)
	mux.HandleFunc("POST /api/bonds/{id}/slash", handlers.Bonds.EmergencySlash)

	mux.HandleFunc("GET /api/accounts/{id}/balance", handlers.Accounts.GetBalance)
	mux.HandleFunc("POST /api/accounts/{id}/deposit", handlers.Accounts.Deposit)

	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Identity(cfg.Tokens)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the fully wired handler chain. Used by tests to serve on
// an ephemeral listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
