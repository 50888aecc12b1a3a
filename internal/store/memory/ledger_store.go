// Package memory implements the domain store interfaces in process memory.
// It backs the dev operating mode and the test suite; per-bond atomicity is
// provided by a single mutex, which serializes all mutations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/agberohq/agbero/internal/domain"
)

// LedgerStore implements domain.LedgerStore with maps guarded by a mutex.
type LedgerStore struct {
	mu       sync.Mutex
	bonds    map[string]domain.Bond
	accounts map[string]float64
	order    []string // creation order for stable listings
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		bonds:    make(map[string]domain.Bond),
		accounts: make(map[string]float64),
	}
}

// CreateBond inserts a new bond record. It fails with ErrDuplicateID when the
// id is already taken.
func (s *LedgerStore) CreateBond(_ context.Context, b domain.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bonds[b.ID]; ok {
		return domain.ErrDuplicateID
	}
	s.bonds[b.ID] = cloneBond(b)
	s.order = append(s.order, b.ID)
	return nil
}

// GetBond returns a copy of the bond with the given id.
func (s *LedgerStore) GetBond(_ context.Context, id string) (domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bonds[id]
	if !ok {
		return domain.Bond{}, domain.ErrNotFound
	}
	return cloneBond(b), nil
}

// ListBonds returns bonds matching the filter in creation order.
func (s *LedgerStore) ListBonds(_ context.Context, f domain.BondFilter) ([]domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bond
	for _, id := range s.order {
		b := s.bonds[id]
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Worker != "" && b.Worker != f.Worker {
			continue
		}
		if f.Principal != "" && b.Principal != f.Principal {
			continue
		}
		out = append(out, cloneBond(b))
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpdateBond applies fn to the bond under the store mutex. The record and any
// fund movements commit together; if fn returns an error, both are rolled
// back untouched.
func (s *LedgerStore) UpdateBond(ctx context.Context, id string, fn func(b *domain.Bond, funds domain.FundMover) error) (domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.bonds[id]
	if !ok {
		return domain.Bond{}, domain.ErrNotFound
	}

	work := cloneBond(stored)
	mover := &stagedMover{base: s.accounts, staged: make(map[string]float64)}
	if err := fn(&work, mover); err != nil {
		return domain.Bond{}, err
	}

	for account, balance := range mover.staged {
		s.accounts[account] = balance
	}
	s.bonds[id] = cloneBond(work)
	return work, nil
}

// Balance returns the current balance of an account (zero if never seen).
func (s *LedgerStore) Balance(_ context.Context, account string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[account], nil
}

// Deposit credits an account.
func (s *LedgerStore) Deposit(_ context.Context, account string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] += amount
	return nil
}

// ListSettledBefore returns terminal bonds settled strictly before the cutoff.
func (s *LedgerStore) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bond
	for _, id := range s.order {
		b := s.bonds[id]
		if !b.Status.Terminal() || b.SettledAt == nil || !b.SettledAt.Before(before) {
			continue
		}
		out = append(out, cloneBond(b))
	}
	return out, nil
}

// stagedMover buffers transfers against a snapshot of account balances so a
// failed transition leaves the real ledger untouched.
type stagedMover struct {
	base   map[string]float64
	staged map[string]float64
}

func (m *stagedMover) balance(account string) float64 {
	if v, ok := m.staged[account]; ok {
		return v
	}
	return m.base[account]
}

// Transfer moves amount between accounts in the staging area. It fails with
// ErrInsufficientFunds when the source balance is too small.
func (m *stagedMover) Transfer(_ context.Context, from, to string, amount float64) error {
	if m.balance(from) < amount {
		return domain.ErrInsufficientFunds
	}
	m.staged[from] = m.balance(from) - amount
	m.staged[to] = m.balance(to) + amount
	return nil
}

func cloneBond(b domain.Bond) domain.Bond {
	out := b
	out.Votes = append([]domain.Vote(nil), b.Votes...)
	if b.SettledAt != nil {
		t := *b.SettledAt
		out.SettledAt = &t
	}
	return out
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore       = (*LedgerStore)(nil)
	_ domain.SettledBondLister = (*LedgerStore)(nil)
)
