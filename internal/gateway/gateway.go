// Package gateway is the write path of one ledger. Every mutation
// validates first, writes through to the store, applies the authoritative
// result to the cache, then announces the change to sibling sessions and
// the event stream. Nothing is applied optimistically: a write the store
// rejected never reaches the cache.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhouse/tally/internal/cache"
	"github.com/tallyhouse/tally/internal/events"
	"github.com/tallyhouse/tally/internal/metrics"
	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/recon"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
)

// Notifier announces local mutations to sibling sessions. The sync
// coordinator implements it.
type Notifier interface {
	EmitChange(name, obligationID string)
}

// ValidationError is a caller-side precondition failure. It is raised
// before any I/O; the store is never called and the cache is untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PaymentInput carries the caller-supplied fields of a new payment.
type PaymentInput struct {
	Amount int64
	Date   time.Time // zero means now
	Note   string
}

// Gateway validates and executes mutations for one ledger instance.
type Gateway struct {
	label         string
	kind          models.Kind
	store         storage.LedgerStore
	cache         *cache.ObligationCache
	notifier      Notifier
	publisher     events.Publisher
	requireBranch bool
	now           func() time.Time
}

// Config wires a Gateway.
type Config struct {
	// Label tags logs and metrics ("credits" or "deposits").
	Label string

	// Kind is stamped onto every obligation this gateway writes.
	Kind models.Kind

	Store    storage.LedgerStore
	Cache    *cache.ObligationCache
	Notifier Notifier

	// Publisher may be nil; events are then dropped.
	Publisher events.Publisher

	// RequireBranch rejects writes with an empty branch. Reads are never
	// branch-gated; the asymmetry is deliberate.
	RequireBranch bool
}

// New creates a gateway.
func New(cfg Config) *Gateway {
	pub := cfg.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &Gateway{
		label:         cfg.Label,
		kind:          cfg.Kind,
		store:         cfg.Store,
		cache:         cfg.Cache,
		notifier:      cfg.Notifier,
		publisher:     pub,
		requireBranch: cfg.RequireBranch,
		now:           time.Now,
	}
}

// SaveObligation validates the draft, writes it through and echoes the
// authoritative record locally.
func (g *Gateway) SaveObligation(ctx context.Context, draft models.Obligation) (models.Obligation, error) {
	draft.Kind = g.kind
	if draft.CustomerName == "" {
		return models.Obligation{}, g.invalid("saveObligation", "customer", "name is required")
	}
	if draft.FaceAmount < 0 {
		return models.Obligation{}, g.invalid("saveObligation", "faceAmount", "must not be negative")
	}
	if g.requireBranch && draft.Branch == "" {
		return models.Obligation{}, g.invalid("saveObligation", "branch", "required in a branch-scoped deployment")
	}
	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	if draft.Date.IsZero() {
		draft.Date = g.now()
	}
	if draft.HandledBy == "" {
		if id, err := g.store.CurrentIdentity(ctx); err == nil {
			draft.HandledBy = id.DisplayName
		}
	}

	saved, err := g.store.UpsertObligation(ctx, draft)
	if err != nil {
		return models.Obligation{}, g.storeFailed("saveObligation", err)
	}
	g.cache.UpsertObligation(saved)
	g.emit(signal.ObligationChanged, saved.ID)
	g.publish(events.TopicObligations, events.ObligationSaved{
		Kind:         string(g.kind),
		ObligationID: saved.ID,
		Branch:       saved.Branch,
		FaceAmount:   saved.FaceAmount,
		OccurredAt:   g.now(),
	})
	metrics.MutationsTotal.WithLabelValues(g.label, "saveObligation", "ok").Inc()
	return saved, nil
}

// DeleteObligation removes one obligation and its payments.
func (g *Gateway) DeleteObligation(ctx context.Context, id string) error {
	return g.BulkDeleteObligations(ctx, []string{id})
}

// BulkDeleteObligations removes several obligations at once. The store
// cascades to payments; the cache purge happens here regardless.
func (g *Gateway) BulkDeleteObligations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return g.invalid("deleteObligations", "ids", "at least one id is required")
	}
	if err := g.store.DeleteObligations(ctx, ids); err != nil {
		return g.storeFailed("deleteObligations", err)
	}
	g.cache.RemoveObligations(ids)
	g.emit(signal.ObligationChanged, "")
	g.publish(events.TopicObligations, events.ObligationsDeleted{
		Kind:          string(g.kind),
		ObligationIDs: ids,
		OccurredAt:    g.now(),
	})
	metrics.MutationsTotal.WithLabelValues(g.label, "deleteObligations", "ok").Inc()
	return nil
}

// RecordPayment records a settlement against an obligation. A zero or
// negative amount is rejected before any I/O; the date defaults to now.
func (g *Gateway) RecordPayment(ctx context.Context, obligationID string, in PaymentInput) (models.Payment, error) {
	if obligationID == "" {
		return models.Payment{}, g.invalid("recordPayment", "obligationId", "required")
	}
	if in.Amount <= 0 {
		return models.Payment{}, g.invalid("recordPayment", "amount", "must be positive")
	}
	p := models.Payment{
		ID:           uuid.New().String(),
		ObligationID: obligationID,
		Amount:       in.Amount,
		Date:         in.Date,
		Note:         in.Note,
	}
	if p.Date.IsZero() {
		p.Date = g.now()
	}
	if id, err := g.store.CurrentIdentity(ctx); err == nil {
		p.RecordedBy = id.DisplayName
	}

	saved, err := g.store.InsertPayment(ctx, p)
	if err != nil {
		return models.Payment{}, g.storeFailed("recordPayment", err)
	}
	g.cache.UpsertPayment(saved)
	g.emit(signal.PaymentChanged, obligationID)
	g.publish(events.TopicPayments, events.PaymentRecorded{
		Kind:         string(g.kind),
		ObligationID: obligationID,
		PaymentID:    saved.ID,
		Amount:       saved.Amount,
		OccurredAt:   g.now(),
	})
	metrics.MutationsTotal.WithLabelValues(g.label, "recordPayment", "ok").Inc()
	return saved, nil
}

// UpdatePayment patches one payment.
func (g *Gateway) UpdatePayment(ctx context.Context, obligationID, paymentID string, patch models.PaymentPatch) (models.Payment, error) {
	if patch.Amount != nil && *patch.Amount <= 0 {
		return models.Payment{}, g.invalid("updatePayment", "amount", "must be positive")
	}
	saved, err := g.store.UpdatePayment(ctx, paymentID, patch)
	if err != nil {
		return models.Payment{}, g.storeFailed("updatePayment", err)
	}
	g.cache.UpsertPayment(saved)
	g.emit(signal.PaymentChanged, obligationID)
	g.publish(events.TopicPayments, events.PaymentRecorded{
		Kind:         string(g.kind),
		ObligationID: obligationID,
		PaymentID:    saved.ID,
		Amount:       saved.Amount,
		OccurredAt:   g.now(),
	})
	metrics.MutationsTotal.WithLabelValues(g.label, "updatePayment", "ok").Inc()
	return saved, nil
}

// DeletePayment removes one payment.
func (g *Gateway) DeletePayment(ctx context.Context, obligationID, paymentID string) error {
	existed, err := g.store.DeletePayment(ctx, paymentID)
	if err != nil {
		return g.storeFailed("deletePayment", err)
	}
	g.cache.RemovePayment(paymentID)
	if existed {
		g.emit(signal.PaymentChanged, obligationID)
		g.publish(events.TopicPayments, events.PaymentDeleted{
			Kind:         string(g.kind),
			ObligationID: obligationID,
			PaymentID:    paymentID,
			OccurredAt:   g.now(),
		})
	}
	metrics.MutationsTotal.WithLabelValues(g.label, "deletePayment", "ok").Inc()
	return nil
}

// FetchPayments pulls the authoritative payments of one obligation and
// merges them into the cache.
func (g *Gateway) FetchPayments(ctx context.Context, obligationID string) ([]models.Payment, error) {
	payments, err := g.store.ListPayments(ctx, []string{obligationID})
	if err != nil {
		return nil, g.storeFailed("fetchPayments", err)
	}
	g.cache.ApplyPaymentsSnapshot(payments)
	return g.cache.PaymentsFor(obligationID), nil
}

// RefreshTotalsFor returns the current derived totals for one obligation.
// The cache recomputes totals on every apply, so this is a read, not a
// refetch.
func (g *Gateway) RefreshTotalsFor(obligationID string) (models.Totals, bool) {
	return g.cache.TotalsFor(obligationID)
}

// FetchTotalsOne derives totals for one obligation from an authoritative
// payments fetch. Returns nil without error when the obligation is not in
// the current window; a missing row is not a failure.
func (g *Gateway) FetchTotalsOne(ctx context.Context, obligationID string) (*models.Totals, error) {
	o, ok := g.cache.Obligation(obligationID)
	if !ok {
		return nil, nil
	}
	payments, err := g.store.ListPayments(ctx, []string{obligationID})
	if err != nil {
		return nil, g.storeFailed("fetchTotalsOne", err)
	}
	g.cache.ApplyPaymentsSnapshot(payments)
	t := recon.ComputeTotals(o, payments)
	return &t, nil
}

func (g *Gateway) invalid(op, field, reason string) error {
	metrics.MutationsTotal.WithLabelValues(g.label, op, "invalid").Inc()
	return &ValidationError{Field: field, Reason: reason}
}

func (g *Gateway) storeFailed(op string, err error) error {
	metrics.MutationsTotal.WithLabelValues(g.label, op, "store_error").Inc()
	slog.Error("mutation failed", "ledger", g.label, "op", op, "error", err)
	return err
}

func (g *Gateway) emit(name, obligationID string) {
	if g.notifier != nil {
		g.notifier.EmitChange(name, obligationID)
	}
}

func (g *Gateway) publish(topic string, event any) {
	if err := g.publisher.Publish(topic, event); err != nil {
		// Best-effort stream; a broker outage must not fail the write.
		slog.Warn("event publish failed", "ledger", g.label, "topic", topic, "error", err)
	}
}
