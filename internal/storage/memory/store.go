// Package memory provides an in-memory implementation of
// storage.LedgerStore. It backs local development and tests; it is
// thread-safe and fires coarse table notifications like the real store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/storage"
)

// Store implements storage.LedgerStore with locked maps.
type Store struct {
	mu          sync.Mutex
	obligations map[string]models.Obligation
	payments    map[string]models.Payment
	subscribers map[int]func(table string)
	nextSub     int
	identity    storage.Identity

	// FailWith, when set, makes every call fail with that error. Tests
	// use it to simulate an unreachable store.
	FailWith error
}

// New creates an empty in-memory store writing as the given identity.
func New(identity storage.Identity) *Store {
	return &Store{
		obligations: make(map[string]models.Obligation),
		payments:    make(map[string]models.Payment),
		subscribers: make(map[int]func(table string)),
		identity:    identity,
	}
}

type subscription struct {
	cancel func()
}

func (s *subscription) Close() error {
	s.cancel()
	return nil
}

// ListObligations returns obligations matching the filter, unordered.
func (s *Store) ListObligations(ctx context.Context, f storage.ListFilter) ([]models.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, storage.NewStoreError("list", storage.TableObligations, "", s.FailWith)
	}

	var out []models.Obligation
	for _, o := range s.obligations {
		if o.Kind != f.Kind {
			continue
		}
		if f.Branch != "" && o.Branch != f.Branch {
			continue
		}
		if !f.From.IsZero() && o.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && o.Date.After(f.To) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ListPayments returns the payments owned by any of the given obligations.
func (s *Store) ListPayments(ctx context.Context, obligationIDs []string) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, storage.NewStoreError("list", storage.TablePayments, "", s.FailWith)
	}

	want := make(map[string]bool, len(obligationIDs))
	for _, id := range obligationIDs {
		want[id] = true
	}
	var out []models.Payment
	for _, p := range s.payments {
		if want[p.ObligationID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpsertObligation inserts or replaces by id, generating an id if missing.
func (s *Store) UpsertObligation(ctx context.Context, o models.Obligation) (models.Obligation, error) {
	s.mu.Lock()
	if s.FailWith != nil {
		s.mu.Unlock()
		return models.Obligation{}, storage.NewStoreError("upsert", storage.TableObligations, o.ID, s.FailWith)
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	s.obligations[o.ID] = o
	s.mu.Unlock()

	s.notify(storage.TableObligations)
	return o, nil
}

// DeleteObligations removes obligations and cascades to their payments.
func (s *Store) DeleteObligations(ctx context.Context, ids []string) error {
	s.mu.Lock()
	if s.FailWith != nil {
		s.mu.Unlock()
		return storage.NewStoreError("delete", storage.TableObligations, "", s.FailWith)
	}
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
		delete(s.obligations, id)
	}
	for pid, p := range s.payments {
		if doomed[p.ObligationID] {
			delete(s.payments, pid)
		}
	}
	s.mu.Unlock()

	s.notify(storage.TableObligations)
	s.notify(storage.TablePayments)
	return nil
}

// InsertPayment records a payment, generating id and date when missing.
func (s *Store) InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	s.mu.Lock()
	if s.FailWith != nil {
		s.mu.Unlock()
		return models.Payment{}, storage.NewStoreError("insert", storage.TablePayments, p.ID, s.FailWith)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Date.IsZero() {
		p.Date = time.Now()
	}
	s.payments[p.ID] = p
	s.mu.Unlock()

	s.notify(storage.TablePayments)
	return p, nil
}

// UpdatePayment applies the patch to an existing payment.
func (s *Store) UpdatePayment(ctx context.Context, id string, patch models.PaymentPatch) (models.Payment, error) {
	s.mu.Lock()
	if s.FailWith != nil {
		s.mu.Unlock()
		return models.Payment{}, storage.NewStoreError("update", storage.TablePayments, id, s.FailWith)
	}
	p, ok := s.payments[id]
	if !ok {
		s.mu.Unlock()
		return models.Payment{}, storage.NewStoreError("update", storage.TablePayments, id, storage.ErrNotFound)
	}
	if patch.Amount != nil {
		p.Amount = *patch.Amount
	}
	if patch.Date != nil {
		p.Date = *patch.Date
	}
	if patch.Note != nil {
		p.Note = *patch.Note
	}
	s.payments[id] = p
	s.mu.Unlock()

	s.notify(storage.TablePayments)
	return p, nil
}

// DeletePayment removes one payment, reporting whether it existed.
func (s *Store) DeletePayment(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if s.FailWith != nil {
		s.mu.Unlock()
		return false, storage.NewStoreError("delete", storage.TablePayments, id, s.FailWith)
	}
	_, ok := s.payments[id]
	delete(s.payments, id)
	s.mu.Unlock()

	if ok {
		s.notify(storage.TablePayments)
	}
	return ok, nil
}

// Subscribe registers a table-change callback.
func (s *Store) Subscribe(ctx context.Context, onChange func(table string)) (storage.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = onChange
	return &subscription{cancel: func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}}, nil
}

// CurrentIdentity returns the identity the store was constructed with.
func (s *Store) CurrentIdentity(ctx context.Context) (storage.Identity, error) {
	return s.identity, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func (s *Store) notify(table string) {
	s.mu.Lock()
	subs := make([]func(string), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(table)
	}
}

// Compile-time check: Store implements the ledger contract.
var _ storage.LedgerStore = (*Store)(nil)
