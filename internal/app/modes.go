package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agberohq/agbero/internal/ledger"
	"github.com/agberohq/agbero/internal/notify"
	"github.com/agberohq/agbero/internal/server"
	"github.com/agberohq/agbero/internal/server/handler"
	"github.com/agberohq/agbero/internal/server/ws"
	"github.com/agberohq/agbero/internal/verifier"
)

// LedgerMode serves the bond ledger HTTP API without running a verifier
// agent. Settlement notifications and archival run when configured.
func (a *App) LedgerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ledger mode")

	g, ctx := errgroup.WithContext(ctx)
	led := a.buildLedger(deps)

	// The HTTP API is the whole point of this mode, so it always starts.
	a.startHTTPServer(ctx, g, deps, led)
	a.startRelay(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// VerifierMode runs the autonomous verifier agent against the shared ledger
// store. The HTTP server starts only when enabled, typically just for the
// health endpoint.
func (a *App) VerifierMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting verifier mode")

	g, ctx := errgroup.WithContext(ctx)
	led := a.buildLedger(deps)

	a.startVerifier(ctx, g, deps, led)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, led)
	}

	return g.Wait()
}

// FullMode runs every subsystem in one process: the HTTP API, the verifier
// agent, settlement notifications, and archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	led := a.buildLedger(deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, led)
	}
	a.startVerifier(ctx, g, deps, led)
	a.startRelay(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

func (a *App) buildLedger(deps *Dependencies) *ledger.Ledger {
	return ledger.New(deps.Store, deps.AuditStore, deps.SignalBus, a.logger)
}

// startHTTPServer adds the HTTP server (and, when a signal bus is wired, the
// WebSocket hub) to the given errgroup. The server is shut down gracefully
// when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, led *ledger.Ledger) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			Tokens:      a.cfg.Server.Tokens,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.HealthChecks),
			Bonds:    handler.NewBondHandler(led, a.logger),
			Accounts: handler.NewAccountHandler(led, a.logger),
			Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startVerifier adds the verifier agent to the errgroup. The proof cache and
// lock manager may be nil when redis is disabled; the agent degrades to
// uncached fetches and lock-free finalization.
func (a *App) startVerifier(ctx context.Context, g *errgroup.Group, deps *Dependencies, led *ledger.Ledger) {
	fetcher := verifier.NewFetcher(verifier.FetcherConfig{
		Timeout:     a.cfg.Verifier.FetchTimeout.Duration,
		IPFSGateway: a.cfg.Verifier.IPFSGateway,
	}, deps.ProofCache)
	policy := verifier.NewHeuristicPolicy(fetcher, verifier.HeuristicPolicyConfig{
		MinContentLength: a.cfg.Verifier.MinContentLength,
		RequiredKeywords: a.cfg.Verifier.RequiredKeywords,
	})
	agent := verifier.NewAgent(led, policy, deps.LockManager, deps.AuditStore, verifier.AgentConfig{
		Identity:     a.cfg.Verifier.Identity,
		PollInterval: a.cfg.Verifier.PollInterval.Duration,
	}, a.logger)

	g.Go(func() error {
		return agent.Run(ctx)
	})
}

// startRelay adds the settlement notification relay when a signal bus is
// wired. Without a bus there is nothing to subscribe to.
func (a *App) startRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.SignalBus == nil {
		return
	}
	relay := notify.NewRelay(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return relay.Run(ctx)
	})
}

// startArchiver adds the cold-storage archival loop when enabled and backed
// by object storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}
	interval := a.cfg.Archive.Interval.Duration
	retention := a.cfg.Archive.Retention.Duration
	g.Go(func() error {
		return deps.Archiver.Run(ctx, interval, retention)
	})
}
