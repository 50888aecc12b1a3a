// Package quorum implements the vote evaluation rule for bond finalization.
// It is pure decision logic: the ledger invokes it as the authoritative check
// inside FinalizeBond, and the verifier agent invokes it as an optimistic
// pre-check to avoid pointless finalize calls.
package quorum

import "github.com/agberohq/agbero/internal/domain"

// MinVotes is the minimum number of recorded votes before any outcome other
// than Pending is possible.
const MinVotes = 3

// Outcome is the result of evaluating a bond's votes.
type Outcome string

const (
	// OutcomePending means no decision yet: either fewer than MinVotes votes,
	// or neither side holds a two-thirds supermajority.
	OutcomePending Outcome = "pending"
	// OutcomeApprove means at least two thirds of voters approved.
	OutcomeApprove Outcome = "approve"
	// OutcomeReject means at least two thirds of voters rejected.
	OutcomeReject Outcome = "reject"
)

// Tally is the vote count breakdown for a bond.
type Tally struct {
	Total   int `json:"total"`
	Approve int `json:"approve"`
	Reject  int `json:"reject"`
}

// Count tallies the given votes.
func Count(votes []domain.Vote) Tally {
	t := Tally{Total: len(votes)}
	for _, v := range votes {
		if v.Approve {
			t.Approve++
		}
	}
	t.Reject = t.Total - t.Approve
	return t
}

// Evaluate applies the 2-of-3 supermajority rule, expressed as a ratio so
// voter sets larger than MinVotes are accommodated: a side wins when it holds
// at least two thirds of all recorded votes. With MinVotes or more votes but
// no two-thirds side (e.g. a 2/2 split), the outcome stays Pending and more
// votes are required; there is deliberately no tie-break.
func Evaluate(votes []domain.Vote) Outcome {
	t := Count(votes)
	if t.Total < MinVotes {
		return OutcomePending
	}
	switch {
	case 3*t.Approve >= 2*t.Total:
		return OutcomeApprove
	case 3*t.Reject >= 2*t.Total:
		return OutcomeReject
	default:
		return OutcomePending
	}
}
