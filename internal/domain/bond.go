// Package domain defines the core entities of the bond ledger together with
// the sentinel errors and store interfaces shared by every other package.
package domain

import "time"

// BondStatus is the lifecycle state of a performance bond.
type BondStatus string

const (
	// BondPending means the bond is created but the worker has not staked yet.
	BondPending BondStatus = "pending"
	// BondActive means collateral is in custody and work is in progress.
	BondActive BondStatus = "active"
	// BondPendingVerification means proof was submitted and votes are open.
	BondPendingVerification BondStatus = "pending_verification"
	// BondCompleted is terminal: work accepted, collateral released to the worker.
	BondCompleted BondStatus = "completed"
	// BondSlashed is terminal: collateral redirected to the principal.
	BondSlashed BondStatus = "slashed"
)

// Terminal reports whether the status admits no further transitions.
func (s BondStatus) Terminal() bool {
	return s == BondCompleted || s == BondSlashed
}

// Vote is a single verifier verdict on a bond. Votes are append-only and a
// verifier identity appears at most once per bond.
type Vote struct {
	Verifier string    `json:"verifier"`
	Approve  bool      `json:"approve"`
	CastAt   time.Time `json:"cast_at"`
}

// Bond is an escrow record binding a principal, a worker, and a collateral
// amount to a task outcome. The ledger is the only writer; id, principal,
// worker, and collateral_amount are immutable after creation.
type Bond struct {
	ID               string     `json:"id"`
	Principal        string     `json:"principal"`
	Worker           string     `json:"worker"`
	TaskDescription  string     `json:"task_description"`
	CollateralAmount float64    `json:"collateral_amount"`
	Deadline         time.Time  `json:"deadline"`
	Status           BondStatus `json:"status"`
	VaultBalance     float64    `json:"vault_balance"`
	ProofURI         string     `json:"proof_uri,omitempty"`
	Votes            []Vote     `json:"votes"`
	CreatedAt        time.Time  `json:"created_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

// HasVoted reports whether the given verifier identity already voted.
func (b *Bond) HasVoted(verifier string) bool {
	for _, v := range b.Votes {
		if v.Verifier == verifier {
			return true
		}
	}
	return false
}

// VaultAccount derives the custody account bound to a bond id. The account is
// not independently addressable; only ledger transitions move funds through it.
func VaultAccount(bondID string) string {
	return "vault:" + bondID
}
