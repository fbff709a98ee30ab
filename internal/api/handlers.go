package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhouse/tally/internal/gateway"
	"github.com/tallyhouse/tally/internal/ledger"
	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/money"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
)

const dateLayout = "2006-01-02"

type ledgerHandler struct {
	svc *ledger.Service
}

type obligationPayload struct {
	ID            string  `json:"id,omitempty"`
	Branch        string  `json:"branch"`
	Date          string  `json:"date,omitempty"`
	CustomerName  string  `json:"customerName"`
	CustomerPhone string  `json:"customerPhone,omitempty"`
	CustomerEmail string  `json:"customerEmail,omitempty"`
	FaceAmount    float64 `json:"faceAmount"`
	Reference     string  `json:"reference,omitempty"`
	Shift         string  `json:"shift,omitempty"`
	HandledBy     string  `json:"handledBy,omitempty"`
	Note          string  `json:"note,omitempty"`
	EventDate     string  `json:"eventDate,omitempty"`
}

type obligationJSON struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Branch        string `json:"branch"`
	Date          string `json:"date"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	FaceAmount    int64  `json:"faceAmount"`
	Reference     string `json:"reference,omitempty"`
	Shift         string `json:"shift,omitempty"`
	HandledBy     string `json:"handledBy,omitempty"`
	Note          string `json:"note,omitempty"`
	EventDate     string `json:"eventDate,omitempty"`
}

type totalsJSON struct {
	Paid      int64  `json:"paid"`
	Remaining int64  `json:"remaining"`
	Status    string `json:"status"`
}

type paymentJSON struct {
	ID           string `json:"id"`
	ObligationID string `json:"obligationId"`
	Amount       int64  `json:"amount"`
	Date         string `json:"date"`
	Note         string `json:"note,omitempty"`
	RecordedBy   string `json:"recordedBy,omitempty"`
}

func toObligationJSON(o models.Obligation) obligationJSON {
	out := obligationJSON{
		ID:            o.ID,
		Kind:          string(o.Kind),
		Branch:        o.Branch,
		Date:          o.Date.Format(dateLayout),
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		CustomerEmail: o.CustomerEmail,
		FaceAmount:    o.FaceAmount,
		Reference:     o.Reference,
		Shift:         o.Shift,
		HandledBy:     o.HandledBy,
		Note:          o.Note,
	}
	if o.EventDate != nil {
		out.EventDate = o.EventDate.Format(dateLayout)
	}
	return out
}

func toPaymentJSON(p models.Payment) paymentJSON {
	return paymentJSON{
		ID:           p.ID,
		ObligationID: p.ObligationID,
		Amount:       p.Amount,
		Date:         p.Date.Format(time.RFC3339),
		Note:         p.Note,
		RecordedBy:   p.RecordedBy,
	}
}

func toTotalsJSON(t models.Totals) totalsJSON {
	return totalsJSON{Paid: t.Paid, Remaining: t.Remaining, Status: string(t.Status)}
}

// handleList serves the read model: cached rows plus derived totals. When
// the query carries a window or branch, the filter is updated and a
// synchronous refresh attempted first; on failure the stale cache is
// served anyway.
func (h *ledgerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("from") || q.Has("to") || q.Has("branch") {
		f := h.svc.Coordinator.Filter()
		if v := q.Get("from"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid from date")
				return
			}
			f.From = t
		}
		if v := q.Get("to"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid to date")
				return
			}
			// Window end is inclusive of the whole day.
			f.To = t.Add(24*time.Hour - time.Nanosecond)
		}
		branchChanged := false
		if q.Has("branch") {
			branchChanged = q.Get("branch") != f.Branch
			f.Branch = q.Get("branch")
		}
		h.svc.Coordinator.SetFilter(f)
		_ = h.svc.Coordinator.RefreshIfIdle(r.Context())
		if branchChanged {
			h.svc.Coordinator.EmitChange(signal.BranchChanged, "")
		}
	}

	rows := h.svc.Cache.Rows()
	totals := h.svc.Cache.TotalsMap()

	outRows := make([]obligationJSON, len(rows))
	for i, o := range rows {
		outRows[i] = toObligationJSON(o)
	}
	outTotals := make(map[string]totalsJSON, len(totals))
	for id, t := range totals {
		outTotals[id] = toTotalsJSON(t)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rows":    outRows,
		"totals":  outTotals,
		"loading": h.svc.Cache.Loading(),
		"stale":   h.svc.Cache.Stale(),
	})
}

func (h *ledgerHandler) handleSaveObligation(w http.ResponseWriter, r *http.Request) {
	var in obligationPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft := models.Obligation{
		ID:            in.ID,
		Branch:        in.Branch,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		CustomerEmail: in.CustomerEmail,
		FaceAmount:    money.Round(in.FaceAmount),
		Reference:     in.Reference,
		Shift:         in.Shift,
		HandledBy:     in.HandledBy,
		Note:          in.Note,
	}
	if in.Date != "" {
		t, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		draft.Date = t
	}
	if in.EventDate != "" {
		t, err := time.Parse(dateLayout, in.EventDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event date")
			return
		}
		draft.EventDate = &t
	}

	saved, err := h.svc.Gateway.SaveObligation(r.Context(), draft)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationJSON(saved))
}

func (h *ledgerHandler) handleDeleteObligation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Gateway.DeleteObligation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *ledgerHandler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Gateway.BulkDeleteObligations(r.Context(), in.IDs); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(in.IDs)})
}

func (h *ledgerHandler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.Gateway.FetchPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	out := make([]paymentJSON, len(payments))
	for i, p := range payments {
		out[i] = toPaymentJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ledgerHandler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount float64 `json:"amount"`
		Date   string  `json:"date,omitempty"`
		Note   string  `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input := gateway.PaymentInput{Amount: money.Round(in.Amount), Note: in.Note}
	if in.Date != "" {
		t, err := time.Parse(time.RFC3339, in.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		input.Date = t
	}

	saved, err := h.svc.Gateway.RecordPayment(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := map[string]any{"payment": toPaymentJSON(saved)}
	// Totals are only derivable when the obligation is inside the cached
	// window; outside it the field is omitted rather than zero-filled.
	if totals, ok := h.svc.Gateway.RefreshTotalsFor(saved.ObligationID); ok {
		resp["totals"] = toTotalsJSON(totals)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ledgerHandler) handleTotalsOne(w http.ResponseWriter, r *http.Request) {
	totals, err := h.svc.Gateway.FetchTotalsOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if totals == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsJSON(*totals))
}

func (h *ledgerHandler) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ObligationID string   `json:"obligationId"`
		Amount       *float64 `json:"amount,omitempty"`
		Date         *string  `json:"date,omitempty"`
		Note         *string  `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch models.PaymentPatch
	if in.Amount != nil {
		amount := money.Round(*in.Amount)
		patch.Amount = &amount
	}
	if in.Date != nil {
		t, err := time.Parse(time.RFC3339, *in.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		patch.Date = &t
	}
	patch.Note = in.Note

	saved, err := h.svc.Gateway.UpdatePayment(r.Context(), in.ObligationID, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentJSON(saved))
}

func (h *ledgerHandler) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ObligationID string `json:"obligationId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	if err := h.svc.Gateway.DeletePayment(r.Context(), in.ObligationID, chi.URLParam(r, "id")); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *ledgerHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	h.svc.Coordinator.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// handleEditing drives the quiescence flag: while any edit surface is
// open, background refreshes are deferred.
func (h *ledgerHandler) handleEditing(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Open bool `json:"open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.Open {
		h.svc.Coordinator.BeginEdit()
	} else {
		h.svc.Coordinator.EndEdit()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"editing": in.Open})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps gateway errors onto status codes: validation failures
// are the caller's fault, store failures are upstream.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *gateway.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	var serr *storage.StoreError
	if errors.As(err, &serr) {
		writeError(w, http.StatusBadGateway, serr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
