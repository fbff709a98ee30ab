// Package syncer keeps an ObligationCache eventually consistent with the
// ledger store and with sibling sessions, without clobbering an in-flight
// edit.
//
// Refresh triggers: session start, a store push notification, a
// cross-session signal, and explicit caller requests. While an edit
// surface is open, triggers are deferred — not dropped — and the deferred
// refresh runs exactly once when the edit closes. The coordinator does not
// resolve conflicts between sessions; the store's last write wins and the
// cache converges to whatever the store holds.
package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tallyhouse/tally/internal/cache"
	"github.com/tallyhouse/tally/internal/metrics"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
)

// Coordinator synchronizes one ledger's cache with the store.
type Coordinator struct {
	label string
	store storage.LedgerStore
	cache *cache.ObligationCache
	bus   *signal.Bus

	mu             sync.Mutex
	filter         storage.ListFilter
	editing        bool
	pendingRefresh bool
	lastEmitted    int64

	// refreshMu serializes fetch+apply rounds so a slow fetch cannot
	// interleave its apply with a later, fresher one.
	refreshMu sync.Mutex

	ctx            context.Context
	cancel         context.CancelFunc
	unsubscribeBus func()
	storeSub       storage.Subscription

	// onRefreshed, when set, is called with the freshly applied window.
	// The ledger wiring uses it to persist the local fallback snapshot.
	onRefreshed func(ctx context.Context, f storage.ListFilter)
}

// New creates a coordinator for one ledger instance. The label tags logs
// and metrics ("credits" or "deposits").
func New(label string, store storage.LedgerStore, c *cache.ObligationCache, bus *signal.Bus, filter storage.ListFilter) *Coordinator {
	return &Coordinator{
		label:  label,
		store:  store,
		cache:  c,
		bus:    bus,
		filter: filter,
	}
}

// SetOnRefreshed registers a hook invoked after each successfully applied
// refresh. Must be called before Start.
func (c *Coordinator) SetOnRefreshed(fn func(ctx context.Context, f storage.ListFilter)) {
	c.onRefreshed = fn
}

// Start performs the initial fetch and subscribes to store pushes and
// cross-session signals. The session lives until ctx is cancelled or Stop
// is called; any fetch completing after that is discarded.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.Refresh(c.ctx); err != nil {
		slog.Warn("initial refresh failed, cache is degraded",
			"ledger", c.label, "error", err)
	}

	sub, err := c.store.Subscribe(c.ctx, func(table string) {
		c.trigger()
	})
	if err != nil {
		// Background sync keeps working off cross-session signals and
		// explicit refreshes; log and carry on.
		slog.Warn("store subscription failed", "ledger", c.label, "error", err)
	} else {
		c.storeSub = sub
	}

	c.unsubscribeBus = c.bus.Subscribe(c.handleSignal)
}

// Stop tears the session down. In-flight fetch results are discarded.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.unsubscribeBus != nil {
		c.unsubscribeBus()
	}
	if c.storeSub != nil {
		c.storeSub.Close()
	}
}

// SetFilter changes the query window and branch scope for subsequent
// refreshes.
func (c *Coordinator) SetFilter(f storage.ListFilter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// Filter returns the current query scope.
func (c *Coordinator) Filter() storage.ListFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// BeginEdit marks an edit surface open. Refresh triggers are deferred
// until EndEdit so a background refresh cannot discard in-progress form
// state.
func (c *Coordinator) BeginEdit() {
	c.mu.Lock()
	c.editing = true
	c.mu.Unlock()
}

// EndEdit closes the edit surface. If any trigger fired while editing, a
// single deferred refresh runs now.
func (c *Coordinator) EndEdit() {
	c.mu.Lock()
	c.editing = false
	pending := c.pendingRefresh
	c.pendingRefresh = false
	c.mu.Unlock()

	if pending {
		go c.refreshSwallow()
	}
}

// TriggerRefresh is the explicit caller-requested refresh. It obeys the
// same quiescence rule as every other trigger.
func (c *Coordinator) TriggerRefresh() {
	c.trigger()
}

// RefreshIfIdle runs a synchronous refresh unless an edit surface is
// open, in which case the refresh is deferred like any other trigger and
// nil is returned.
func (c *Coordinator) RefreshIfIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.editing {
		c.pendingRefresh = true
		c.mu.Unlock()
		metrics.RefreshesDeferred.WithLabelValues(c.label).Inc()
		return nil
	}
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// EmitChange announces a local mutation to sibling sessions. The stamp is
// recorded before publishing so this session recognizes the echo. Per
// coordinator, not process-wide: the credits and deposits ledgers must not
// suppress each other.
func (c *Coordinator) EmitChange(name, obligationID string) {
	stamp := c.bus.NextStamp()
	c.mu.Lock()
	c.lastEmitted = stamp
	c.mu.Unlock()
	c.bus.Publish(signal.Event{Name: name, ObligationID: obligationID, Stamp: stamp})
}

func (c *Coordinator) handleSignal(e signal.Event) {
	c.mu.Lock()
	self := e.Stamp != 0 && e.Stamp == c.lastEmitted
	c.mu.Unlock()
	if self {
		metrics.SelfEchoesIgnored.WithLabelValues(c.label).Inc()
		return
	}
	c.trigger()
}

// trigger requests a refresh, deferring it while an edit is open.
func (c *Coordinator) trigger() {
	c.mu.Lock()
	if c.editing {
		c.pendingRefresh = true
		c.mu.Unlock()
		metrics.RefreshesDeferred.WithLabelValues(c.label).Inc()
		return
	}
	c.mu.Unlock()

	go c.refreshSwallow()
}

// refreshSwallow runs a refresh and swallows its error: background sync
// failures are logged and the cache keeps its stale-but-valid contents.
func (c *Coordinator) refreshSwallow() {
	if err := c.Refresh(c.ctx); err != nil {
		slog.Warn("background refresh failed", "ledger", c.label, "error", err)
	}
}

// Refresh fetches the full query window and applies it to the cache. The
// result is discarded, not applied, when ctx ends before the fetch does.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	filter := c.Filter()

	obligations, err := c.store.ListObligations(ctx, filter)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues(c.label, "error").Inc()
		return err
	}

	ids := make([]string, len(obligations))
	for i, o := range obligations {
		ids[i] = o.ID
	}
	payments, err := c.store.ListPayments(ctx, ids)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues(c.label, "error").Inc()
		return err
	}

	// Liveness check: the session may have been torn down while the
	// fetches were in flight.
	if ctx.Err() != nil {
		metrics.RefreshesTotal.WithLabelValues(c.label, "discarded").Inc()
		return ctx.Err()
	}

	c.cache.ApplyObligationsSnapshot(obligations)
	c.cache.ApplyPaymentsSnapshot(payments)
	c.cache.SetLoading(false)
	c.cache.SetStale(false)
	metrics.RefreshesTotal.WithLabelValues(c.label, "ok").Inc()

	if c.onRefreshed != nil {
		c.onRefreshed(ctx, filter)
	}
	return nil
}
