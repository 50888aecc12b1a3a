package domain

import (
	"context"
	"io"
	"time"
)

// BondFilter narrows bond enumeration queries.
type BondFilter struct {
	Status    BondStatus // empty matches all
	Worker    string
	Principal string
	Limit     int
	Offset    int
}

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FundMover moves funds between accounts inside a ledger transition. Transfers
// fail with ErrInsufficientFunds when the source balance is too small and are
// committed atomically with the bond record they accompany.
type FundMover interface {
	Transfer(ctx context.Context, from, to string, amount float64) error
}

// LedgerStore persists bond records and the account ledger backing custody.
//
// UpdateBond applies fn to the named bond under an exclusive per-bond lock;
// record changes and fund movements made through the FundMover commit together
// or not at all. Reads observe fully settled state only.
type LedgerStore interface {
	CreateBond(ctx context.Context, b Bond) error
	GetBond(ctx context.Context, id string) (Bond, error)
	ListBonds(ctx context.Context, f BondFilter) ([]Bond, error)
	UpdateBond(ctx context.Context, id string, fn func(b *Bond, funds FundMover) error) (Bond, error)

	Balance(ctx context.Context, account string) (float64, error)
	Deposit(ctx context.Context, account string, amount float64) error
}

// SettledBondLister provides read access to settled bonds for archival.
type SettledBondLister interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]Bond, error)
}

// AuditEntry is a single row of the append-only activity trail.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists the append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// StreamMessage is one durable message read from the signal bus.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes and consumes ledger events between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides best-effort distributed locks. Acquire returns
// ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter answers whether a request for a key is permitted under the
// configured limit per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ProofCache stores fetched proof content keyed by proof URI.
type ProofCache interface {
	Get(ctx context.Context, uri string) (string, error)
	Set(ctx context.Context, uri, content string) error
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves objects from cold storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
