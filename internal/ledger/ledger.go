// Package ledger composes one complete ledger instance — cache, sync
// coordinator and mutation gateway — for a single obligation kind. The
// daemon runs two: credits and deposits. Each instance keeps its own
// echo-suppression state, so the two never swallow each other's signals.
package ledger

import (
	"context"
	"log/slog"

	"github.com/tallyhouse/tally/internal/cache"
	"github.com/tallyhouse/tally/internal/events"
	"github.com/tallyhouse/tally/internal/gateway"
	"github.com/tallyhouse/tally/internal/metrics"
	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
	"github.com/tallyhouse/tally/internal/storage/sqlite"
	"github.com/tallyhouse/tally/internal/syncer"
)

// Options wires one ledger instance.
type Options struct {
	// Label tags logs and metrics ("credits" or "deposits").
	Label string

	// Kind selects which obligations this ledger owns.
	Kind models.Kind

	Store storage.LedgerStore
	Bus   *signal.Bus

	// Fallback, when set, persists each refreshed window locally and is
	// served when the store is unreachable at startup.
	Fallback *sqlite.Fallback

	// Publisher, when set, receives best-effort mutation events.
	Publisher events.Publisher

	// RequireBranch gates writes (not reads) on a non-empty branch.
	RequireBranch bool

	// Filter is the initial query window.
	Filter storage.ListFilter
}

// Service is one running ledger instance.
type Service struct {
	Label       string
	Kind        models.Kind
	Cache       *cache.ObligationCache
	Coordinator *syncer.Coordinator
	Gateway     *gateway.Gateway

	fallback *sqlite.Fallback
}

// New builds a ledger instance. Call Start to fetch and begin syncing.
func New(opts Options) *Service {
	c := cache.New()
	coord := syncer.New(opts.Label, opts.Store, c, opts.Bus, opts.Filter)
	gw := gateway.New(gateway.Config{
		Label:         opts.Label,
		Kind:          opts.Kind,
		Store:         opts.Store,
		Cache:         c,
		Notifier:      coord,
		Publisher:     opts.Publisher,
		RequireBranch: opts.RequireBranch,
	})

	s := &Service{
		Label:       opts.Label,
		Kind:        opts.Kind,
		Cache:       c,
		Coordinator: coord,
		Gateway:     gw,
		fallback:    opts.Fallback,
	}

	if s.fallback != nil {
		coord.SetOnRefreshed(func(ctx context.Context, f storage.ListFilter) {
			if err := s.fallback.Save(ctx, s.Kind, c.Rows(), c.Payments()); err != nil {
				slog.Warn("snapshot save failed", "ledger", s.Label, "error", err)
			}
		})
	}
	return s
}

// Start performs the initial fetch and subscribes to change feeds. When
// the store is unreachable, the last persisted snapshot is served and the
// cache marked stale instead of hard-failing.
func (s *Service) Start(ctx context.Context) {
	s.Coordinator.Start(ctx)

	if s.Cache.Loading() && s.fallback != nil {
		obligations, payments, err := s.fallback.Load(ctx, s.Kind)
		if err != nil {
			slog.Error("snapshot load failed", "ledger", s.Label, "error", err)
			return
		}
		s.Cache.ApplyObligationsSnapshot(obligations)
		s.Cache.ApplyPaymentsSnapshot(payments)
		s.Cache.SetLoading(false)
		s.Cache.SetStale(true)
		metrics.FallbackLoads.WithLabelValues(s.Label).Inc()
		slog.Info("serving local snapshot, store unreachable",
			"ledger", s.Label, "obligations", len(obligations), "payments", len(payments))
	}
}

// Stop tears the instance down; in-flight fetches are discarded.
func (s *Service) Stop() {
	s.Coordinator.Stop()
}
