// Package metrics exposes the Prometheus instrumentation for the ledger
// daemon. Counters are registered on the default registry and served from
// the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshesTotal counts full-window refreshes per ledger and outcome.
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_refreshes_total",
		Help: "Full-window refreshes, by ledger and result (ok, error, discarded).",
	}, []string{"ledger", "result"})

	// RefreshesDeferred counts refresh triggers deferred because an edit
	// surface was open.
	RefreshesDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_refreshes_deferred_total",
		Help: "Refresh triggers deferred by the quiescence rule.",
	}, []string{"ledger"})

	// SelfEchoesIgnored counts cross-session signals recognized as the
	// session's own emission.
	SelfEchoesIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_self_echoes_ignored_total",
		Help: "Cross-session signals skipped as self-echo.",
	}, []string{"ledger"})

	// MutationsTotal counts gateway write operations.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_mutations_total",
		Help: "Write operations, by ledger, operation and result (ok, invalid, store_error).",
	}, []string{"ledger", "op", "result"})

	// FallbackLoads counts startups served from the local snapshot.
	FallbackLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_fallback_loads_total",
		Help: "Times the local snapshot was served because the store was unreachable.",
	}, []string{"ledger"})
)
