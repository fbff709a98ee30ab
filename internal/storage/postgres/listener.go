package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/tallyhouse/tally/internal/storage"
)

// NOTIFY channels raised by row-level triggers in the schema. The payload
// is unused; notifications are coarse by contract.
const (
	channelObligations = "obligations_changed"
	channelPayments    = "payments_changed"
)

type listenerSubscription struct {
	listener *pq.Listener
	cancel   context.CancelFunc
}

func (s *listenerSubscription) Close() error {
	s.cancel()
	return s.listener.Close()
}

// Subscribe opens a LISTEN connection and invokes onChange with the table
// name whenever a row in obligations or payments changes. Delivery stops
// when the returned subscription is closed or ctx is done.
func (s *Store) Subscribe(ctx context.Context, onChange func(table string)) (storage.Subscription, error) {
	listener := pq.NewListener(s.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("ledger listener event", "event", int(ev), "error", err)
		}
	})
	for _, ch := range []string{channelObligations, channelPayments} {
		if err := listener.Listen(ch); err != nil {
			listener.Close()
			return nil, storage.NewStoreError("subscribe", "", "", fmt.Errorf("%w: %w", storage.ErrUnavailable, err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// n is nil when the connection was re-established;
				// treat it as "anything may have changed".
				if n == nil {
					onChange(storage.TableObligations)
					onChange(storage.TablePayments)
					continue
				}
				switch n.Channel {
				case channelObligations:
					onChange(storage.TableObligations)
				case channelPayments:
					onChange(storage.TablePayments)
				}
			}
		}
	}()

	return &listenerSubscription{listener: listener, cancel: cancel}, nil
}
