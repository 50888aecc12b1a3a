package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/store/memory"
)

func testLedger() *Ledger {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(memory.NewLedgerStore(), memory.NewAuditStore(), nil, logger)
}

func createParams(id string) CreateParams {
	return CreateParams{
		ID:               id,
		Worker:           "worker",
		TaskDescription:  "deploy the service",
		CollateralAmount: 100,
		Deadline:         time.Now().Add(24 * time.Hour),
	}
}

// stakedBond creates a funded worker and walks a bond to Active.
func stakedBond(t *testing.T, l *Ledger, id string) domain.Bond {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "worker", 100))
	_, err := l.CreateBond(ctx, "principal", createParams(id))
	require.NoError(t, err)
	b, err := l.StakeCollateral(ctx, "worker", id)
	require.NoError(t, err)
	return b
}

// verifiableBond walks a bond to PendingVerification.
func verifiableBond(t *testing.T, l *Ledger, id string) domain.Bond {
	t.Helper()
	stakedBond(t, l, id)
	b, err := l.SubmitProof(context.Background(), "worker", id, "ipfs://proof")
	require.NoError(t, err)
	return b
}

func vote(t *testing.T, l *Ledger, id string, verifier string, approve bool) {
	t.Helper()
	_, err := l.VerifyWork(context.Background(), verifier, id, approve)
	require.NoError(t, err)
}

func TestCreateBond(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	b, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.BondPending, b.Status)
	assert.Equal(t, "principal", b.Principal)
	assert.Equal(t, 0.0, b.VaultBalance)
	assert.Empty(t, b.Votes)
	assert.Nil(t, b.SettledAt)
}

func TestCreateBondValidation(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	p := createParams("bond-1")
	p.CollateralAmount = 0
	_, err := l.CreateBond(ctx, "principal", p)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p = createParams("bond-1")
	p.CollateralAmount = -5
	_, err = l.CreateBond(ctx, "principal", p)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p = createParams("bond-1")
	p.Deadline = time.Now().Add(-time.Minute)
	_, err = l.CreateBond(ctx, "principal", p)
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)
}

func TestCreateBondDuplicateID(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	_, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)
	_, err = l.CreateBond(ctx, "principal", createParams("bond-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestStakeCollateral(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	b := stakedBond(t, l, "bond-1")
	assert.Equal(t, domain.BondActive, b.Status)
	assert.Equal(t, 100.0, b.VaultBalance)

	workerBal, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 0.0, workerBal)

	vaultBal, err := l.Balance(ctx, domain.VaultAccount("bond-1"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, vaultBal)
}

func TestStakeCollateralGuards(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "worker", 100))
	_, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)

	_, err = l.StakeCollateral(ctx, "intruder", "bond-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = l.StakeCollateral(ctx, "worker", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.StakeCollateral(ctx, "worker", "bond-1")
	require.NoError(t, err)

	// Staking twice is an invalid transition and moves no funds.
	_, err = l.StakeCollateral(ctx, "worker", "bond-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	vaultBal, err := l.Balance(ctx, domain.VaultAccount("bond-1"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, vaultBal)
}

func TestStakeCollateralInsufficientFunds(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "worker", 50))
	_, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)

	_, err = l.StakeCollateral(ctx, "worker", "bond-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The failed stake leaves the bond and both accounts untouched.
	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondPending, b.Status)
	workerBal, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 50.0, workerBal)
}

func TestSubmitProof(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	stakedBond(t, l, "bond-1")
	b, err := l.SubmitProof(ctx, "worker", "bond-1", "https://example.com/proof")
	require.NoError(t, err)
	assert.Equal(t, domain.BondPendingVerification, b.Status)
	assert.Equal(t, "https://example.com/proof", b.ProofURI)
	assert.Equal(t, 100.0, b.VaultBalance, "funds stay in custody during verification")
}

func TestSubmitProofGuards(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	stakedBond(t, l, "bond-1")

	_, err := l.SubmitProof(ctx, "worker", "bond-1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyProof)

	_, err = l.SubmitProof(ctx, "principal", "bond-1", "proof")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Resubmission replaces nothing once verification opened.
	_, err = l.SubmitProof(ctx, "worker", "bond-1", "proof one")
	require.NoError(t, err)
	_, err = l.SubmitProof(ctx, "worker", "bond-1", "proof two")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, "proof one", b.ProofURI)
}

func TestVerifyWork(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	b, err := l.VerifyWork(ctx, "alice", "bond-1", true)
	require.NoError(t, err)
	require.Len(t, b.Votes, 1)
	assert.Equal(t, "alice", b.Votes[0].Verifier)
	assert.True(t, b.Votes[0].Approve)
}

func TestVerifyWorkGuards(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	stakedBond(t, l, "bond-1")

	// Voting opens only after a proof exists.
	_, err := l.VerifyWork(ctx, "alice", "bond-1", true)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = l.SubmitProof(ctx, "worker", "bond-1", "proof")
	require.NoError(t, err)

	_, err = l.VerifyWork(ctx, "worker", "bond-1", true)
	assert.ErrorIs(t, err, domain.ErrSelfVote)

	vote(t, l, "bond-1", "alice", true)
	_, err = l.VerifyWork(ctx, "alice", "bond-1", false)
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)

	// The principal may vote like anyone else.
	_, err = l.VerifyWork(ctx, "principal", "bond-1", true)
	assert.NoError(t, err)
}

func TestFinalizeBondApproved(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", true)
	vote(t, l, "bond-1", "bob", true)
	vote(t, l, "bond-1", "carol", false)

	b, err := l.FinalizeBond(ctx, "anyone", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondCompleted, b.Status)
	assert.Equal(t, 0.0, b.VaultBalance)
	require.NotNil(t, b.SettledAt)

	workerBal, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 100.0, workerBal)
}

func TestFinalizeBondRejected(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", false)
	vote(t, l, "bond-1", "bob", false)
	vote(t, l, "bond-1", "carol", true)

	b, err := l.FinalizeBond(ctx, "anyone", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondSlashed, b.Status)
	assert.Equal(t, 0.0, b.VaultBalance)

	principalBal, err := l.Balance(ctx, "principal")
	require.NoError(t, err)
	assert.Equal(t, 100.0, principalBal)
	workerBal, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 0.0, workerBal)
}

func TestFinalizeBondQuorumNotReached(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", true)
	vote(t, l, "bond-1", "bob", true)

	_, err := l.FinalizeBond(ctx, "anyone", "bond-1")
	assert.ErrorIs(t, err, domain.ErrQuorumNotReached)

	b, err := l.GetBond(ctx, "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondPendingVerification, b.Status)
	assert.Equal(t, 100.0, b.VaultBalance)
}

func TestFinalizeBondSplitVoteStaysPending(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", true)
	vote(t, l, "bond-1", "bob", true)
	vote(t, l, "bond-1", "carol", false)
	vote(t, l, "bond-1", "dave", false)

	// 2-2: neither side holds two thirds, no tie-break applies.
	_, err := l.FinalizeBond(ctx, "anyone", "bond-1")
	assert.ErrorIs(t, err, domain.ErrQuorumNotReached)
}

func TestFinalizeBondIdempotenceGuard(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", true)
	vote(t, l, "bond-1", "bob", true)
	vote(t, l, "bond-1", "carol", true)

	_, err := l.FinalizeBond(ctx, "anyone", "bond-1")
	require.NoError(t, err)

	// A second finalize fails and pays nothing out twice.
	_, err = l.FinalizeBond(ctx, "anyone", "bond-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	workerBal, err := l.Balance(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 100.0, workerBal)
}

func TestEmergencySlashBeforeStake(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	_, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)

	// Nothing staked yet: the slash settles the record and moves no funds.
	b, err := l.EmergencySlash(ctx, "principal", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondSlashed, b.Status)
	assert.Equal(t, 0.0, b.VaultBalance)

	principalBal, err := l.Balance(ctx, "principal")
	require.NoError(t, err)
	assert.Equal(t, 0.0, principalBal)
}

func TestEmergencySlashActiveBond(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	stakedBond(t, l, "bond-1")
	b, err := l.EmergencySlash(ctx, "principal", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondSlashed, b.Status)

	principalBal, err := l.Balance(ctx, "principal")
	require.NoError(t, err)
	assert.Equal(t, 100.0, principalBal)
}

func TestEmergencySlashDuringVerification(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")
	vote(t, l, "bond-1", "alice", true)

	// The override ignores recorded votes entirely.
	b, err := l.EmergencySlash(ctx, "principal", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BondSlashed, b.Status)

	principalBal, err := l.Balance(ctx, "principal")
	require.NoError(t, err)
	assert.Equal(t, 100.0, principalBal)
}

func TestEmergencySlashGuards(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	verifiableBond(t, l, "bond-1")

	_, err := l.EmergencySlash(ctx, "worker", "bond-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = l.EmergencySlash(ctx, "principal", "bond-1")
	require.NoError(t, err)

	// Terminal bonds are frozen, even for the principal.
	_, err = l.EmergencySlash(ctx, "principal", "bond-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = l.VerifyWork(ctx, "alice", "bond-1", true)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestFundsConservation(t *testing.T) {
	// Across the whole lifecycle the sum over all accounts never changes.
	l := testLedger()
	ctx := context.Background()

	total := func() float64 {
		var sum float64
		for _, acct := range []string{"worker", "principal", domain.VaultAccount("bond-1")} {
			bal, err := l.Balance(ctx, acct)
			require.NoError(t, err)
			sum += bal
		}
		return sum
	}

	require.NoError(t, l.Deposit(ctx, "worker", 250))
	_, err := l.CreateBond(ctx, "principal", createParams("bond-1"))
	require.NoError(t, err)
	assert.Equal(t, 250.0, total())

	_, err = l.StakeCollateral(ctx, "worker", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, total())

	_, err = l.SubmitProof(ctx, "worker", "bond-1", "proof")
	require.NoError(t, err)
	vote(t, l, "bond-1", "alice", true)
	vote(t, l, "bond-1", "bob", true)
	vote(t, l, "bond-1", "carol", true)
	assert.Equal(t, 250.0, total())

	_, err = l.FinalizeBond(ctx, "anyone", "bond-1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, total())
}

func TestDepositValidation(t *testing.T) {
	l := testLedger()
	assert.ErrorIs(t, l.Deposit(context.Background(), "worker", 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(context.Background(), "worker", -10), domain.ErrInvalidAmount)
}

func TestListBondsFilter(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "worker", 300))
	for _, id := range []string{"bond-1", "bond-2", "bond-3"} {
		_, err := l.CreateBond(ctx, "principal", createParams(id))
		require.NoError(t, err)
	}
	_, err := l.StakeCollateral(ctx, "worker", "bond-2")
	require.NoError(t, err)

	active, err := l.ListBonds(ctx, domain.BondFilter{Status: domain.BondActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bond-2", active[0].ID)

	all, err := l.ListBonds(ctx, domain.BondFilter{Worker: "worker"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
