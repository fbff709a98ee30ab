// Package storage defines the contract for the authoritative ledger store.
// The store is the sole owner of durable state; everything in-process is a
// cache of it. This abstraction allows swapping backends (Postgres,
// in-memory, ...) without changing the sync or write paths.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhouse/tally/internal/models"
)

// ListFilter scopes an obligation listing to a kind, a date window and
// optionally a branch. An empty Branch means all branches.
type ListFilter struct {
	Kind models.Kind

	// From and To bound the obligation date window, inclusive. A zero
	// value means that side is unbounded; every implementation must
	// honor this the same way.
	From time.Time
	To   time.Time

	// Branch scopes the query to one branch; empty means all branches.
	Branch string
}

// Identity describes who is operating the current session, used to default
// the handled-by / recorded-by fields on writes.
type Identity struct {
	DisplayName string
}

// Subscription is a handle on a change-notification feed. Closing it stops
// delivery.
type Subscription interface {
	Close() error
}

// Table names carried by change notifications. Notifications are coarse:
// "some row in this table changed", no row-level diff.
const (
	TableObligations = "obligations"
	TablePayments    = "payments"
)

// LedgerStore is the authoritative remote collaborator. Every call can fail
// with a *StoreError; callers must treat the local mirror as stale-but-valid
// when one does.
type LedgerStore interface {
	// ListObligations returns the obligations matching the filter.
	ListObligations(ctx context.Context, f ListFilter) ([]models.Obligation, error)

	// ListPayments returns the payments owned by any of the given
	// obligations, batched in one call.
	ListPayments(ctx context.Context, obligationIDs []string) ([]models.Payment, error)

	// UpsertObligation inserts or updates by primary key, so retried
	// writes are idempotent. The returned record is authoritative.
	UpsertObligation(ctx context.Context, o models.Obligation) (models.Obligation, error)

	// DeleteObligations removes the given obligations and, by cascade,
	// their payments.
	DeleteObligations(ctx context.Context, ids []string) error

	// InsertPayment records a new payment and returns the authoritative
	// record.
	InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error)

	// UpdatePayment applies the patch and returns the updated record.
	UpdatePayment(ctx context.Context, id string, patch models.PaymentPatch) (models.Payment, error)

	// DeletePayment removes one payment. Reports whether a row existed.
	DeletePayment(ctx context.Context, id string) (bool, error)

	// Subscribe registers a callback invoked with the table name whenever
	// any row in that table changes. Delivery stops when the subscription
	// is closed or ctx is done.
	Subscribe(ctx context.Context, onChange func(table string)) (Subscription, error)

	// CurrentIdentity returns who this session writes as.
	CurrentIdentity(ctx context.Context) (Identity, error)

	// Close releases any resources held by the store.
	Close() error
}

// StoreError wraps a failed store call with its operation context. A failed
// write must never partially apply; callers keep their last-known-good
// state.
type StoreError struct {
	Op    string // e.g. "upsert", "list", "delete"
	Table string // obligations or payments
	ID    string // row id when the operation targets one
	Err   error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s %s: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError; a nil cause returns nil so call sites
// can wrap unconditionally.
func NewStoreError(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, ID: id, Err: err}
}
