package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agberohq/agbero/internal/domain"
)

// Archiver copies settled bonds and old audit entries into cold storage as
// JSONL files. Records are never deleted from the primary store here;
// pruning after a verified archive is a separate, explicit step.
type Archiver struct {
	writer domain.BlobWriter
	bonds  domain.SettledBondLister
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, bonds domain.SettledBondLister, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		bonds:  bonds,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettledBonds uploads all bonds settled before the cutoff to
// archive/bonds/YYYY-MM.jsonl and records the archival in the audit log. It
// returns the number of archived records.
func (a *Archiver) ArchiveSettledBonds(ctx context.Context, before time.Time) (int64, error) {
	bonds, err := a.bonds.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bonds query: %w", err)
	}
	if len(bonds) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bonds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bonds marshal: %w", err)
	}

	path := archivePath("bonds", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bonds upload: %w", err)
	}

	count := int64(len(bonds))
	if err := a.audit.Log(ctx, "archive.bonds", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive bonds audit log: %w", err)
	}
	return count, nil
}

// ArchiveAuditLog uploads all audit entries recorded before the cutoff to
// archive/audit/YYYY-MM.jsonl. It returns the number of archived records.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	return int64(len(entries)), nil
}

// Run archives on a fixed interval until the context is cancelled. retention
// controls how far back the cutoff sits behind the current time. Call in a
// goroutine.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			if n, err := a.ArchiveSettledBonds(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "bond archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "bonds archived", slog.Int64("count", n))
			}
			if n, err := a.ArchiveAuditLog(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "audit archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "audit entries archived", slog.Int64("count", n))
			}
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
