package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agberohq/agbero/internal/domain"
)

// LedgerStore implements domain.LedgerStore backed by PostgreSQL. Per-bond
// atomicity comes from SELECT ... FOR UPDATE inside a transaction: the bond
// row, its votes, and any account movements commit or roll back together.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore on the given client.
func NewLedgerStore(client *Client) *LedgerStore {
	return &LedgerStore{pool: client.Pool()}
}

const bondColumns = `id, principal, worker, task_description, collateral_amount,
	deadline, status, vault_balance, proof_uri, created_at, settled_at`

// CreateBond inserts a new bond row. A primary key collision maps to
// domain.ErrDuplicateID.
func (s *LedgerStore) CreateBond(ctx context.Context, b domain.Bond) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bonds (id, principal, worker, task_description,
			collateral_amount, deadline, status, vault_balance, proof_uri, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Principal, b.Worker, b.TaskDescription,
		b.CollateralAmount, b.Deadline, string(b.Status), b.VaultBalance,
		b.ProofURI, b.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("postgres: insert bond: %w", err)
	}
	return nil
}

// GetBond loads a bond and its votes by id.
func (s *LedgerStore) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+bondColumns+" FROM bonds WHERE id = $1", id)
	b, err := scanBond(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("postgres: get bond: %w", err)
	}

	b.Votes, err = s.loadVotes(ctx, s.pool, id)
	if err != nil {
		return domain.Bond{}, err
	}
	return b, nil
}

// ListBonds enumerates bonds matching the filter in creation order. Votes are
// loaded per bond; listings are expected to stay small.
func (s *LedgerStore) ListBonds(ctx context.Context, f domain.BondFilter) ([]domain.Bond, error) {
	query := "SELECT " + bondColumns + " FROM bonds"
	var conds []string
	var args []any

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Worker != "" {
		args = append(args, f.Worker)
		conds = append(conds, fmt.Sprintf("worker = $%d", len(args)))
	}
	if f.Principal != "" {
		args = append(args, f.Principal)
		conds = append(conds, fmt.Sprintf("principal = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bonds: %w", err)
	}
	defer rows.Close()

	var bonds []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		bonds = append(bonds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bonds: %w", err)
	}

	for i := range bonds {
		bonds[i].Votes, err = s.loadVotes(ctx, s.pool, bonds[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return bonds, nil
}

// UpdateBond locks the bond row, applies fn, and persists the result. New
// votes appended by fn are inserted; fund movements run inside the same
// transaction. Any error from fn rolls everything back.
func (s *LedgerStore) UpdateBond(ctx context.Context, id string, fn func(b *domain.Bond, funds domain.FundMover) error) (domain.Bond, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		"SELECT "+bondColumns+" FROM bonds WHERE id = $1 FOR UPDATE", id)
	b, err := scanBond(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("postgres: lock bond: %w", err)
	}

	b.Votes, err = s.loadVotes(ctx, tx, id)
	if err != nil {
		return domain.Bond{}, err
	}
	prevVotes := len(b.Votes)

	if err := fn(&b, &txMover{tx: tx}); err != nil {
		return domain.Bond{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bonds
		SET status = $2, vault_balance = $3, proof_uri = $4, settled_at = $5
		WHERE id = $1`,
		b.ID, string(b.Status), b.VaultBalance, b.ProofURI, b.SettledAt,
	); err != nil {
		return domain.Bond{}, fmt.Errorf("postgres: update bond: %w", err)
	}

	for _, v := range b.Votes[prevVotes:] {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bond_votes (bond_id, verifier, approve, cast_at)
			VALUES ($1, $2, $3, $4)`,
			b.ID, v.Verifier, v.Approve, v.CastAt,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.Bond{}, domain.ErrDuplicateVote
			}
			return domain.Bond{}, fmt.Errorf("postgres: insert vote: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Bond{}, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return b, nil
}

// Balance returns the balance of an account, zero if the account has never
// been seen.
func (s *LedgerStore) Balance(ctx context.Context, account string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		"SELECT balance FROM accounts WHERE id = $1", account,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get balance: %w", err)
	}
	return balance, nil
}

// Deposit credits an account, creating it on first use.
func (s *LedgerStore) Deposit(ctx context.Context, account string, amount float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		account, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: deposit: %w", err)
	}
	return nil
}

// ListSettledBefore returns terminal bonds settled strictly before the cutoff.
func (s *LedgerStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Bond, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bondColumns+` FROM bonds
		WHERE settled_at IS NOT NULL AND settled_at < $1
		ORDER BY settled_at, id`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bonds: %w", err)
	}
	defer rows.Close()

	var bonds []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		bonds = append(bonds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled bonds: %w", err)
	}

	for i := range bonds {
		bonds[i].Votes, err = s.loadVotes(ctx, s.pool, bonds[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return bonds, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *LedgerStore) loadVotes(ctx context.Context, q queryer, bondID string) ([]domain.Vote, error) {
	rows, err := q.Query(ctx, `
		SELECT verifier, approve, cast_at FROM bond_votes
		WHERE bond_id = $1 ORDER BY seq`,
		bondID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load votes: %w", err)
	}
	defer rows.Close()

	votes := []domain.Vote{}
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.Verifier, &v.Approve, &v.CastAt); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load votes: %w", err)
	}
	return votes, nil
}

func scanBond(row pgx.Row) (domain.Bond, error) {
	var b domain.Bond
	var status string
	err := row.Scan(
		&b.ID, &b.Principal, &b.Worker, &b.TaskDescription,
		&b.CollateralAmount, &b.Deadline, &status, &b.VaultBalance,
		&b.ProofURI, &b.CreatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bond{}, err
	}
	b.Status = domain.BondStatus(status)
	return b, nil
}

// txMover moves funds inside the surrounding transaction. The debit is
// conditional on sufficient balance so overdrafts fail without touching rows.
type txMover struct {
	tx pgx.Tx
}

func (m *txMover) Transfer(ctx context.Context, from, to string, amount float64) error {
	tag, err := m.tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $2
		WHERE id = $1 AND balance >= $2`,
		from, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	if _, err := m.tx.Exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		to, amount,
	); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore       = (*LedgerStore)(nil)
	_ domain.SettledBondLister = (*LedgerStore)(nil)
	_ domain.FundMover         = (*txMover)(nil)
)
