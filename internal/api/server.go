// Package api exposes the caller-facing HTTP surface of the daemon: the
// read models and write operations of both ledgers, plus health and
// metrics endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyhouse/tally/internal/ledger"
)

// Server routes requests to the two ledger instances.
type Server struct {
	credits        *ledger.Service
	deposits       *ledger.Service
	metricsEnabled bool
}

// NewServer creates the API server over the running ledger instances.
func NewServer(credits, deposits *ledger.Service) *Server {
	return &Server{credits: credits, deposits: deposits}
}

// EnableMetrics mounts the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/credits", s.ledgerRoutes(s.credits))
	r.Route("/api/deposits", s.ledgerRoutes(s.deposits))

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func (s *Server) ledgerRoutes(svc *ledger.Service) func(chi.Router) {
	h := &ledgerHandler{svc: svc}
	return func(r chi.Router) {
		r.Get("/obligations", h.handleList)
		r.Post("/obligations", h.handleSaveObligation)
		r.Delete("/obligations/{id}", h.handleDeleteObligation)
		r.Post("/obligations/bulk-delete", h.handleBulkDelete)
		r.Get("/obligations/{id}/payments", h.handleListPayments)
		r.Post("/obligations/{id}/payments", h.handleRecordPayment)
		r.Get("/obligations/{id}/totals", h.handleTotalsOne)
		r.Patch("/payments/{id}", h.handleUpdatePayment)
		r.Delete("/payments/{id}", h.handleDeletePayment)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/editing", h.handleEditing)
	}
}

// requestLogger logs every request with its duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("response encode failed", "error", err)
		}
	}
}
