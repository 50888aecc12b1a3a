package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agberohq/agbero/internal/domain"
)

func votes(approvals, rejections int) []domain.Vote {
	vs := make([]domain.Vote, 0, approvals+rejections)
	for i := 0; i < approvals; i++ {
		vs = append(vs, domain.Vote{Verifier: "a", Approve: true})
	}
	for i := 0; i < rejections; i++ {
		vs = append(vs, domain.Vote{Verifier: "r", Approve: false})
	}
	return vs
}

func TestEvaluateBelowQuorum(t *testing.T) {
	assert.Equal(t, OutcomePending, Evaluate(nil), "no votes")
	assert.Equal(t, OutcomePending, Evaluate(votes(1, 0)), "one approval")
	assert.Equal(t, OutcomePending, Evaluate(votes(2, 0)), "two approvals")
	assert.Equal(t, OutcomePending, Evaluate(votes(0, 2)), "two rejections")
}

func TestEvaluateApprove(t *testing.T) {
	assert.Equal(t, OutcomeApprove, Evaluate(votes(3, 0)), "unanimous 3")
	assert.Equal(t, OutcomeApprove, Evaluate(votes(2, 1)), "2 of 3")
	assert.Equal(t, OutcomeApprove, Evaluate(votes(4, 2)), "4 of 6 is exactly two thirds")
	assert.Equal(t, OutcomeApprove, Evaluate(votes(7, 3)), "7 of 10")
}

func TestEvaluateReject(t *testing.T) {
	assert.Equal(t, OutcomeReject, Evaluate(votes(0, 3)), "unanimous reject")
	assert.Equal(t, OutcomeReject, Evaluate(votes(1, 2)), "2 of 3 reject")
	assert.Equal(t, OutcomeReject, Evaluate(votes(2, 4)), "4 of 6 reject")
}

func TestEvaluateNoSupermajority(t *testing.T) {
	// Quorum size met, but neither side holds two thirds. No tie-break: the
	// outcome stays pending until more votes arrive.
	assert.Equal(t, OutcomePending, Evaluate(votes(2, 2)), "even split of 4")
	assert.Equal(t, OutcomePending, Evaluate(votes(3, 2)), "3 of 5 is under two thirds")
	assert.Equal(t, OutcomePending, Evaluate(votes(3, 3)), "even split of 6")
}

func TestEvaluateMatchesRatioLaw(t *testing.T) {
	// Evaluate is Approve iff 3a >= 2n with n >= 3, symmetric for Reject,
	// otherwise Pending.
	for a := 0; a <= 8; a++ {
		for r := 0; r <= 8; r++ {
			n := a + r
			got := Evaluate(votes(a, r))
			switch {
			case n < MinVotes:
				assert.Equal(t, OutcomePending, got, "a=%d r=%d", a, r)
			case 3*a >= 2*n:
				assert.Equal(t, OutcomeApprove, got, "a=%d r=%d", a, r)
			case 3*r >= 2*n:
				assert.Equal(t, OutcomeReject, got, "a=%d r=%d", a, r)
			default:
				assert.Equal(t, OutcomePending, got, "a=%d r=%d", a, r)
			}
		}
	}
}

func TestCount(t *testing.T) {
	tally := Count(votes(2, 1))
	assert.Equal(t, Tally{Total: 3, Approve: 2, Reject: 1}, tally)
}
