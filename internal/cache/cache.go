// Package cache holds the in-memory, per-session mirror of obligations,
// payments and derived totals. It is never authoritative — on any doubt a
// fetch from the store wins — but it is the single in-process source of
// truth for readers.
//
// All mutation goes through the exported apply/upsert/remove methods so
// the dedup-by-id invariant lives in exactly one place. Payments are keyed
// by payment ID, not nested under obligations, so deduplication is
// structural. Totals are recomputed in full after every change; totals are
// cheap and incremental updates drift.
package cache

import (
	"sort"
	"sync"

	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/recon"
)

// ObligationCache mirrors the current query window of one ledger.
type ObligationCache struct {
	mu          sync.RWMutex
	obligations map[string]models.Obligation
	payments    map[string]models.Payment
	totals      map[string]models.Totals
	loading     bool
	stale       bool
}

// New returns an empty cache in the loading state.
func New() *ObligationCache {
	return &ObligationCache{
		obligations: make(map[string]models.Obligation),
		payments:    make(map[string]models.Payment),
		totals:      make(map[string]models.Totals),
		loading:     true,
	}
}

// ApplyObligationsSnapshot replaces the cached obligation set with the
// result of a window fetch. Payments that no longer reference a cached
// obligation are pruned.
func (c *ObligationCache) ApplyObligationsSnapshot(list []models.Obligation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.obligations = make(map[string]models.Obligation, len(list))
	for _, o := range list {
		c.obligations[o.ID] = o
	}
	for id, p := range c.payments {
		if _, ok := c.obligations[p.ObligationID]; !ok {
			delete(c.payments, id)
		}
	}
	c.recompute()
}

// ApplyPaymentsSnapshot merges payments by ID with upsert semantics.
// Feeding the same list twice yields the same cache state as feeding it
// once.
func (c *ObligationCache) ApplyPaymentsSnapshot(list []models.Payment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range list {
		c.payments[p.ID] = p
	}
	c.recompute()
}

// UpsertObligation applies one authoritative record immediately after a
// successful write-through, so the writer sees its own edit without
// waiting for the next refresh.
func (c *ObligationCache) UpsertObligation(o models.Obligation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obligations[o.ID] = o
	c.recompute()
}

// RemoveObligations drops obligations and purges every payment that
// referenced them; no orphaned payment survives.
func (c *ObligationCache) RemoveObligations(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
		delete(c.obligations, id)
	}
	for pid, p := range c.payments {
		if doomed[p.ObligationID] {
			delete(c.payments, pid)
		}
	}
	c.recompute()
}

// UpsertPayment applies one authoritative payment record.
func (c *ObligationCache) UpsertPayment(p models.Payment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payments[p.ID] = p
	c.recompute()
}

// RemovePayment drops one payment by ID.
func (c *ObligationCache) RemovePayment(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.payments, id)
	c.recompute()
}

// recompute rebuilds the totals map from scratch. Caller holds the lock.
// Invariant: totals[id] == ComputeTotals(obligations[id], its payments)
// for every cached obligation, after every mutation.
func (c *ObligationCache) recompute() {
	byObligation := make(map[string][]models.Payment, len(c.obligations))
	for _, p := range c.payments {
		byObligation[p.ObligationID] = append(byObligation[p.ObligationID], p)
	}
	totals := make(map[string]models.Totals, len(c.obligations))
	for id, o := range c.obligations {
		totals[id] = recon.ComputeTotals(o, byObligation[id])
	}
	c.totals = totals
}

// Rows returns the cached obligations ordered by date, then ID.
func (c *ObligationCache) Rows() []models.Obligation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := make([]models.Obligation, 0, len(c.obligations))
	for _, o := range c.obligations {
		rows = append(rows, o)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// TotalsMap returns a copy of the derived totals keyed by obligation ID.
func (c *ObligationCache) TotalsMap() map[string]models.Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.Totals, len(c.totals))
	for id, t := range c.totals {
		out[id] = t
	}
	return out
}

// TotalsFor returns the totals for one obligation, if cached.
func (c *ObligationCache) TotalsFor(id string) (models.Totals, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.totals[id]
	return t, ok
}

// Obligation returns one cached obligation by ID.
func (c *ObligationCache) Obligation(id string) (models.Obligation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.obligations[id]
	return o, ok
}

// PaymentsFor returns the cached payments of one obligation ordered by
// date, then ID.
func (c *ObligationCache) PaymentsFor(obligationID string) []models.Payment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Payment
	for _, p := range c.payments {
		if p.ObligationID == obligationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Payments returns every cached payment ordered by date, then ID. Used
// when persisting the window snapshot.
func (c *ObligationCache) Payments() []models.Payment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Payment, 0, len(c.payments))
	for _, p := range c.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetLoading marks whether an initial or full fetch is in flight.
func (c *ObligationCache) SetLoading(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = v
}

// Loading reports whether a fetch is in flight.
func (c *ObligationCache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// SetStale marks the cache as serving last-known rows because the store
// is unreachable.
func (c *ObligationCache) SetStale(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = v
}

// Stale reports whether the cached rows are known to be stale.
func (c *ObligationCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}
