package domain

import "errors"

// Ledger operation errors. Every operation surfaces exactly one of these
// synchronously; state is never partially applied on error.
var (
	ErrNotFound          = errors.New("bond not found")
	ErrDuplicateID       = errors.New("bond id already exists")
	ErrUnauthorized      = errors.New("caller not authorized for operation")
	ErrInvalidState      = errors.New("operation not valid in current status")
	ErrInvalidAmount     = errors.New("collateral amount must be positive")
	ErrInvalidDeadline   = errors.New("deadline must be in the future")
	ErrEmptyProof        = errors.New("proof uri must not be empty")
	ErrSelfVote          = errors.New("worker cannot verify own bond")
	ErrDuplicateVote     = errors.New("verifier already voted on this bond")
	ErrQuorumNotReached  = errors.New("quorum not yet reached")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
)
