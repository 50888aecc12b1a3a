package verifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/ledger"
	"github.com/agberohq/agbero/internal/quorum"
)

// finalizeLockTTL bounds how long a finalize lock can stay held if an agent
// dies mid-attempt.
const finalizeLockTTL = 30 * time.Second

// AgentConfig tunes the verification loop.
type AgentConfig struct {
	Identity     string        // the identity this agent votes as
	PollInterval time.Duration // how often to scan for work
}

// Agent is the autonomous verifier. Each cycle it discovers bonds awaiting
// verification, votes on the ones it has not voted on, and finalizes the ones
// whose recorded votes are already decisive. A failed bond never aborts the
// cycle; a failed cycle never stops the loop.
type Agent struct {
	ledger *ledger.Ledger
	policy Policy
	locks  domain.LockManager
	audit  domain.AuditStore
	cfg    AgentConfig
	logger *slog.Logger
}

// NewAgent creates an Agent. locks and audit may be nil; finalize locking and
// decision auditing are then skipped.
func NewAgent(l *ledger.Ledger, policy Policy, locks domain.LockManager, audit domain.AuditStore, cfg AgentConfig, logger *slog.Logger) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Agent{
		ledger: l,
		policy: policy,
		locks:  locks,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "verifier"), slog.String("identity", cfg.Identity)),
	}
}

// Run executes verification cycles on a fixed interval until the context is
// cancelled. Call in a goroutine.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunCycle(ctx); err != nil {
				a.logger.ErrorContext(ctx, "verification cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunCycle performs one discover-evaluate-vote pass followed by a finalize
// sweep. The working set is recomputed from ledger state every call.
func (a *Agent) RunCycle(ctx context.Context) error {
	bonds, err := a.ledger.ListBonds(ctx, domain.BondFilter{Status: domain.BondPendingVerification})
	if err != nil {
		return err
	}

	for _, b := range bonds {
		if b.Worker == a.cfg.Identity || b.HasVoted(a.cfg.Identity) {
			continue
		}
		a.evaluateAndVote(ctx, b)
	}

	a.sweepFinalize(ctx, bonds)
	return nil
}

// evaluateAndVote runs the policy on one bond and records the resulting vote.
func (a *Agent) evaluateAndVote(ctx context.Context, b domain.Bond) {
	decision, err := a.policy.Evaluate(ctx, b.ProofURI)
	if err != nil {
		// Fail closed: a proof the policy cannot judge is a failed proof.
		decision = Decision{Approve: false, Confidence: 0.5, Reason: "policy error: " + err.Error()}
	}

	if _, err := a.ledger.VerifyWork(ctx, a.cfg.Identity, b.ID, decision.Approve); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateVote), errors.Is(err, domain.ErrSelfVote), errors.Is(err, domain.ErrInvalidState):
			// Someone raced us or the bond settled since discovery.
			a.logger.DebugContext(ctx, "vote skipped", slog.String("bond_id", b.ID), slog.String("reason", err.Error()))
		default:
			a.logger.ErrorContext(ctx, "vote failed", slog.String("bond_id", b.ID), slog.String("error", err.Error()))
		}
		return
	}

	a.logger.InfoContext(ctx, "vote cast",
		slog.String("bond_id", b.ID),
		slog.Bool("approve", decision.Approve),
		slog.Float64("confidence", decision.Confidence),
		slog.String("reason", decision.Reason),
	)
	if a.audit != nil {
		_ = a.audit.Log(ctx, "verifier.decision", map[string]any{
			"bond_id":    b.ID,
			"verifier":   a.cfg.Identity,
			"approve":    decision.Approve,
			"confidence": decision.Confidence,
			"reason":     decision.Reason,
		})
	}
}

// sweepFinalize re-reads each candidate bond and finalizes it when the
// recorded votes are already decisive. The quorum pre-check keeps the agent
// from hammering the ledger with attempts that can only fail.
func (a *Agent) sweepFinalize(ctx context.Context, candidates []domain.Bond) {
	for _, stale := range candidates {
		b, err := a.ledger.GetBond(ctx, stale.ID)
		if err != nil {
			a.logger.DebugContext(ctx, "finalize lookup failed", slog.String("bond_id", stale.ID), slog.String("error", err.Error()))
			continue
		}
		if b.Status != domain.BondPendingVerification {
			continue
		}
		if quorum.Evaluate(b.Votes) == quorum.OutcomePending {
			continue
		}
		a.finalize(ctx, b.ID)
	}
}

// finalize settles one bond, holding a best-effort distributed lock so
// sibling agents do not pile redundant attempts on the same bond. Losing the
// lock skips, never fails.
func (a *Agent) finalize(ctx context.Context, id string) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "finalize:"+id, finalizeLockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "finalize lock failed", slog.String("bond_id", id), slog.String("error", err.Error()))
			}
			return
		}
		defer unlock()
	}

	b, err := a.ledger.FinalizeBond(ctx, a.cfg.Identity, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuorumNotReached), errors.Is(err, domain.ErrInvalidState):
			// Expected races: a late vote flipped the tally or another
			// agent finalized first.
			a.logger.DebugContext(ctx, "finalize skipped", slog.String("bond_id", id), slog.String("reason", err.Error()))
		default:
			a.logger.ErrorContext(ctx, "finalize failed", slog.String("bond_id", id), slog.String("error", err.Error()))
		}
		return
	}

	a.logger.InfoContext(ctx, "bond finalized",
		slog.String("bond_id", b.ID),
		slog.String("status", string(b.Status)),
	)
}
