package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, rec OpportunityRecord) error
	ListRecent(ctx context.Context, limit int) ([]OpportunityRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]OpportunityRecord, error)
}

// BundleStore persists submission attempts.
type BundleStore interface {
	Insert(ctx context.Context, rec BundleRecord) error
	ListRecent(ctx context.Context, limit int) ([]BundleRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]BundleRecord, error)
	CountSubmitted(ctx context.Context, since time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
