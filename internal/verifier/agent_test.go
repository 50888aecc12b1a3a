package verifier

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/ledger"
	"github.com/agberohq/agbero/internal/store/memory"
)

// approvePolicy votes a fixed way regardless of the proof.
type approvePolicy struct {
	approve bool
}

func (p approvePolicy) Evaluate(context.Context, string) (Decision, error) {
	return Decision{Approve: p.approve, Confidence: 0.8, Reason: "fixed"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pendingBond sets up a funded, staked bond with proof submitted, ready for
// verification.
func pendingBond(t *testing.T, l *ledger.Ledger, id string) domain.Bond {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "worker", 100))
	_, err := l.CreateBond(ctx, "principal", ledger.CreateParams{
		ID:               id,
		Worker:           "worker",
		TaskDescription:  "ship it",
		CollateralAmount: 100,
		Deadline:         time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = l.StakeCollateral(ctx, "worker", id)
	require.NoError(t, err)
	b, err := l.SubmitProof(ctx, "worker", id, "inline proof content that is long enough")
	require.NoError(t, err)
	return b
}

func TestAgentVotesOnPendingBonds(t *testing.T) {
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	agent := NewAgent(l, approvePolicy{approve: true}, nil, nil, AgentConfig{Identity: "agent-1"}, testLogger())
	require.NoError(t, agent.RunCycle(context.Background()))

	b, err := l.GetBond(context.Background(), "bond-1")
	require.NoError(t, err)
	require.Len(t, b.Votes, 1)
	assert.Equal(t, "agent-1", b.Votes[0].Verifier)
	assert.True(t, b.Votes[0].Approve)
}

func TestAgentDoesNotVoteTwice(t *testing.T) {
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	agent := NewAgent(l, approvePolicy{approve: true}, nil, nil, AgentConfig{Identity: "agent-1"}, testLogger())
	require.NoError(t, agent.RunCycle(context.Background()))
	require.NoError(t, agent.RunCycle(context.Background()))

	b, err := l.GetBond(context.Background(), "bond-1")
	require.NoError(t, err)
	assert.Len(t, b.Votes, 1)
}

func TestAgentSkipsOwnBond(t *testing.T) {
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	agent := NewAgent(l, approvePolicy{approve: true}, nil, nil, AgentConfig{Identity: "worker"}, testLogger())
	require.NoError(t, agent.RunCycle(context.Background()))

	b, err := l.GetBond(context.Background(), "bond-1")
	require.NoError(t, err)
	assert.Empty(t, b.Votes, "the worker never votes on its own bond")
}

func TestAgentFinalizesDecisiveBond(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	// Two human approvals already recorded; the agent's vote completes the
	// quorum and its sweep settles the bond.
	_, err := l.VerifyWork(ctx, "alice", "bond-1", true)
	require.NoError(t, err)
	_, err = l.VerifyWork(ctx, "bob", "bond-1", true)
	require.NoError(t, err)

	agent := NewAgent(l, approvePolicy{approve: true}, nil, nil, AgentConfig{Identity: "agent-1"}, testLogger())
	require.NoError(t, agent.RunCycle(ctx))

	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondCompleted, b.Status)

	balance, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance, "collateral returned to the worker")
}

func TestAgentLeavesUndecidedBondsPending(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	_, err := l.VerifyWork(ctx, "alice", "bond-1", false)
	require.NoError(t, err)

	// One reject plus the agent's approve is two votes, below quorum size.
	agent := NewAgent(l, approvePolicy{approve: true}, nil, nil, AgentConfig{Identity: "agent-1"}, testLogger())
	require.NoError(t, agent.RunCycle(ctx))

	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondPendingVerification, b.Status, "two split votes reach no quorum")
	assert.Len(t, b.Votes, 2)
}

func TestAgentFinalizesRejectedBondToPrincipal(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, testLogger())
	pendingBond(t, l, "bond-1")

	_, err := l.VerifyWork(ctx, "alice", "bond-1", false)
	require.NoError(t, err)
	_, err = l.VerifyWork(ctx, "bob", "bond-1", false)
	require.NoError(t, err)

	agent := NewAgent(l, approvePolicy{approve: false}, nil, nil, AgentConfig{Identity: "agent-1"}, testLogger())
	require.NoError(t, agent.RunCycle(ctx))

	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondSlashed, b.Status)

	balance, err := l.Balance(ctx, "principal")
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance, "collateral forfeited to the principal")
}
