// Package signal carries cross-session change notifications between ledger
// sessions on the same host: every successful mutation announces itself,
// and every other session treats the announcement as a refresh trigger.
//
// Events are tagged with a logical stamp so a session can recognize and
// skip its own echo. The stamp is remembered by the emitting coordinator,
// not here, so independent ledgers (credits vs. deposits) never suppress
// each other's signals.
package signal

import (
	"sync"
	"sync/atomic"
	"time"
)

// Logical event names, one per concern.
const (
	ObligationChanged = "obligation-changed"
	PaymentChanged    = "payment-changed"
	BranchChanged     = "branch-changed"
)

// Event is one broadcast change notification.
type Event struct {
	// Name is one of the logical event names above.
	Name string

	// ObligationID identifies what changed. Empty means "bulk" — more
	// than one row, refetch everything.
	ObligationID string

	// Stamp is the emitting session's logical clock value.
	Stamp int64
}

// Bus is an in-process broadcast channel. Delivery is synchronous and
// in subscription order; handlers must be fast and must not publish
// re-entrantly.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]func(Event)
	nextID      int
	clock       atomic.Int64
}

// NewBus returns an empty bus with its clock seeded from wall time, so
// stamps from separate processes observing a shared key stay comparable.
func NewBus() *Bus {
	b := &Bus{subscribers: make(map[int]func(Event))}
	b.clock.Store(time.Now().UnixNano())
	return b
}

// NextStamp advances the logical clock and returns the new value. Callers
// record the stamp before publishing so the self-echo check cannot race
// delivery.
func (b *Bus) NextStamp() int64 {
	return b.clock.Add(1)
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}
