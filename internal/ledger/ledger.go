// Package ledger implements the bond ledger: the single owner of bond records
// and the custody accounts backing them. All lifecycle guards and invariants
// are enforced here, never by callers.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/quorum"
)

// Event channel names published on the signal bus.
const (
	EventBondCreated      = "bond_created"
	EventCollateralStaked = "collateral_staked"
	EventProofSubmitted   = "proof_submitted"
	EventWorkVerified     = "work_verified"
	EventBondCompleted    = "bond_completed"
	EventBondSlashed      = "bond_slashed"
)

// CreateParams are the caller-supplied inputs to CreateBond.
type CreateParams struct {
	ID               string
	Worker           string
	TaskDescription  string
	CollateralAmount float64
	Deadline         time.Time
}

// Ledger exposes the six atomic bond operations plus read-only lookups. Each
// state-changing operation runs under the store's per-bond lock; on error the
// bond and the account ledger are left untouched.
type Ledger struct {
	store  domain.LedgerStore
	audit  domain.AuditStore
	bus    domain.SignalBus
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Ledger. audit and bus may be nil; auditing and event
// publication are then skipped.
func New(store domain.LedgerStore, audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		audit:  audit,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// WithClock overrides the ledger's time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CreateBond records a new bond in status Pending together with its empty
// custody account. The caller becomes the bond's principal.
func (l *Ledger) CreateBond(ctx context.Context, caller string, p CreateParams) (domain.Bond, error) {
	if p.CollateralAmount <= 0 {
		return domain.Bond{}, domain.ErrInvalidAmount
	}
	if !p.Deadline.After(l.now()) {
		return domain.Bond{}, domain.ErrInvalidDeadline
	}

	b := domain.Bond{
		ID:               p.ID,
		Principal:        caller,
		Worker:           p.Worker,
		TaskDescription:  p.TaskDescription,
		CollateralAmount: p.CollateralAmount,
		Deadline:         p.Deadline,
		Status:           domain.BondPending,
		Votes:            []domain.Vote{},
		CreatedAt:        l.now(),
	}
	if err := l.store.CreateBond(ctx, b); err != nil {
		return domain.Bond{}, fmt.Errorf("ledger: create bond %s: %w", p.ID, err)
	}

	l.record(ctx, EventBondCreated, map[string]any{
		"bond_id":           b.ID,
		"principal":         b.Principal,
		"worker":            b.Worker,
		"collateral_amount": b.CollateralAmount,
		"deadline":          b.Deadline.Format(time.RFC3339),
	})
	return b, nil
}

// StakeCollateral moves exactly collateral_amount from the worker's account
// into the bond's custody account and activates the bond.
func (l *Ledger) StakeCollateral(ctx context.Context, caller, id string) (domain.Bond, error) {
	bond, err := l.store.UpdateBond(ctx, id, func(b *domain.Bond, funds domain.FundMover) error {
		if caller != b.Worker {
			return domain.ErrUnauthorized
		}
		if b.Status != domain.BondPending {
			return domain.ErrInvalidState
		}
		if err := funds.Transfer(ctx, b.Worker, domain.VaultAccount(b.ID), b.CollateralAmount); err != nil {
			return err
		}
		b.VaultBalance = b.CollateralAmount
		b.Status = domain.BondActive
		return nil
	})
	if err != nil {
		return domain.Bond{}, err
	}

	l.record(ctx, EventCollateralStaked, map[string]any{
		"bond_id": bond.ID,
		"worker":  bond.Worker,
		"amount":  bond.CollateralAmount,
	})
	return bond, nil
}

// SubmitProof records the worker's proof of completion and opens verification.
func (l *Ledger) SubmitProof(ctx context.Context, caller, id, proofURI string) (domain.Bond, error) {
	if strings.TrimSpace(proofURI) == "" {
		return domain.Bond{}, domain.ErrEmptyProof
	}

	bond, err := l.store.UpdateBond(ctx, id, func(b *domain.Bond, _ domain.FundMover) error {
		if caller != b.Worker {
			return domain.ErrUnauthorized
		}
		if b.Status != domain.BondActive {
			return domain.ErrInvalidState
		}
		b.ProofURI = proofURI
		b.Status = domain.BondPendingVerification
		return nil
	})
	if err != nil {
		return domain.Bond{}, err
	}

	l.record(ctx, EventProofSubmitted, map[string]any{
		"bond_id":   bond.ID,
		"worker":    bond.Worker,
		"proof_uri": bond.ProofURI,
	})
	return bond, nil
}

// VerifyWork appends the caller's vote. The worker can never vote on its own
// bond and each verifier votes at most once.
func (l *Ledger) VerifyWork(ctx context.Context, caller, id string, approve bool) (domain.Bond, error) {
	bond, err := l.store.UpdateBond(ctx, id, func(b *domain.Bond, _ domain.FundMover) error {
		if b.Status != domain.BondPendingVerification {
			return domain.ErrInvalidState
		}
		if caller == b.Worker {
			return domain.ErrSelfVote
		}
		if b.HasVoted(caller) {
			return domain.ErrDuplicateVote
		}
		b.Votes = append(b.Votes, domain.Vote{
			Verifier: caller,
			Approve:  approve,
			CastAt:   l.now(),
		})
		return nil
	})
	if err != nil {
		return domain.Bond{}, err
	}

	l.record(ctx, EventWorkVerified, map[string]any{
		"bond_id":  bond.ID,
		"verifier": caller,
		"approve":  approve,
		"votes":    len(bond.Votes),
	})
	return bond, nil
}

// FinalizeBond settles the bond according to the recorded votes. It is a pure
// function of already-recorded votes, so any identity may call it. With no
// quorum it fails with ErrQuorumNotReached and leaves the bond unchanged;
// calling it again after settlement fails with ErrInvalidState and moves no
// funds.
func (l *Ledger) FinalizeBond(ctx context.Context, caller, id string) (domain.Bond, error) {
	var outcome quorum.Outcome
	bond, err := l.store.UpdateBond(ctx, id, func(b *domain.Bond, funds domain.FundMover) error {
		if b.Status != domain.BondPendingVerification {
			return domain.ErrInvalidState
		}
		outcome = quorum.Evaluate(b.Votes)
		switch outcome {
		case quorum.OutcomeApprove:
			return l.settle(ctx, b, funds, domain.BondCompleted, b.Worker)
		case quorum.OutcomeReject:
			return l.settle(ctx, b, funds, domain.BondSlashed, b.Principal)
		default:
			return domain.ErrQuorumNotReached
		}
	})
	if err != nil {
		return domain.Bond{}, err
	}

	event := EventBondCompleted
	if bond.Status == domain.BondSlashed {
		event = EventBondSlashed
	}
	l.record(ctx, event, map[string]any{
		"bond_id":   bond.ID,
		"caller":    caller,
		"outcome":   string(outcome),
		"amount":    bond.CollateralAmount,
		"worker":    bond.Worker,
		"principal": bond.Principal,
	})
	return bond, nil
}

// EmergencySlash is the principal's unilateral override for unambiguous
// abandonment or fraud: valid in any non-terminal state, it slashes the bond
// immediately and returns whatever the vault holds (possibly nothing) to the
// principal without waiting for verifiers.
func (l *Ledger) EmergencySlash(ctx context.Context, caller, id string) (domain.Bond, error) {
	bond, err := l.store.UpdateBond(ctx, id, func(b *domain.Bond, funds domain.FundMover) error {
		if caller != b.Principal {
			return domain.ErrUnauthorized
		}
		if b.Status.Terminal() {
			return domain.ErrInvalidState
		}
		return l.settle(ctx, b, funds, domain.BondSlashed, b.Principal)
	})
	if err != nil {
		return domain.Bond{}, err
	}

	l.record(ctx, EventBondSlashed, map[string]any{
		"bond_id":   bond.ID,
		"caller":    caller,
		"outcome":   "emergency",
		"amount":    bond.CollateralAmount,
		"principal": bond.Principal,
	})
	return bond, nil
}

// settle performs the terminal transition: drain the vault to the recipient
// and freeze the record. The vault is empty immediately after any terminal
// transition.
func (l *Ledger) settle(ctx context.Context, b *domain.Bond, funds domain.FundMover, status domain.BondStatus, recipient string) error {
	if b.VaultBalance > 0 {
		if err := funds.Transfer(ctx, domain.VaultAccount(b.ID), recipient, b.VaultBalance); err != nil {
			return err
		}
		b.VaultBalance = 0
	}
	b.Status = status
	now := l.now()
	b.SettledAt = &now
	return nil
}

// GetBond returns a single bond by id.
func (l *Ledger) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	return l.store.GetBond(ctx, id)
}

// ListBonds enumerates bonds matching the filter.
func (l *Ledger) ListBonds(ctx context.Context, f domain.BondFilter) ([]domain.Bond, error) {
	return l.store.ListBonds(ctx, f)
}

// Balance returns the available funds of an account.
func (l *Ledger) Balance(ctx context.Context, account string) (float64, error) {
	return l.store.Balance(ctx, account)
}

// Deposit credits an account. This is the inbound edge of the external
// funds-transfer collaborator; workers must hold funds before they can stake.
func (l *Ledger) Deposit(ctx context.Context, account string, amount float64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := l.store.Deposit(ctx, account, amount); err != nil {
		return err
	}
	l.record(ctx, "deposit", map[string]any{
		"account": account,
		"amount":  amount,
	})
	return nil
}

// record appends an audit entry and publishes the event on the signal bus.
// Both are best-effort: the transition already committed, so failures here
// are logged and swallowed.
func (l *Ledger) record(ctx context.Context, event string, detail map[string]any) {
	if l.audit != nil {
		if err := l.audit.Log(ctx, "ledger."+event, detail); err != nil {
			l.logger.ErrorContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if l.bus != nil {
		payload, _ := json.Marshal(detail)
		if err := l.bus.Publish(ctx, event, payload); err != nil {
			l.logger.DebugContext(ctx, "event publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
