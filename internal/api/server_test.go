package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tallyhouse/tally/internal/ledger"
	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/signal"
	"github.com/tallyhouse/tally/internal/storage"
	"github.com/tallyhouse/tally/internal/storage/memory"
)

func setupTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	bus := signal.NewBus()
	creditStore := memory.New(storage.Identity{DisplayName: "Ana"})
	depositStore := memory.New(storage.Identity{DisplayName: "Ana"})
	from := time.Now().AddDate(0, 0, -31)

	credits := ledger.New(ledger.Options{
		Label: "credits", Kind: models.KindCredit,
		Store: creditStore, Bus: bus,
		RequireBranch: true,
		Filter:        storage.ListFilter{Kind: models.KindCredit, From: from},
	})
	deposits := ledger.New(ledger.Options{
		Label: "deposits", Kind: models.KindDeposit,
		Store: depositStore, Bus: bus,
		Filter: storage.ListFilter{Kind: models.KindDeposit, From: from},
	})

	ctx, cancel := context.WithCancel(context.Background())
	credits.Start(ctx)
	deposits.Start(ctx)

	server := httptest.NewServer(NewServer(credits, deposits).Handler())
	t.Cleanup(func() {
		server.Close()
		credits.Stop()
		deposits.Stop()
		cancel()
	})
	return server, depositStore
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestObligationAndPaymentFlow(t *testing.T) {
	server, _ := setupTestServer(t)

	// Record a deposit obligation.
	resp := postJSON(t, server.URL+"/api/deposits/obligations", map[string]any{
		"customerName": "Sari",
		"faceAmount":   500000,
		"eventDate":    "2026-03-14",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	var saved struct {
		ID        string `json:"id"`
		Kind      string `json:"kind"`
		HandledBy string `json:"handledBy"`
		EventDate string `json:"eventDate"`
	}
	decode(t, resp, &saved)
	if saved.ID == "" || saved.Kind != "deposit" {
		t.Fatalf("saved = %+v", saved)
	}
	if saved.HandledBy != "Ana" {
		t.Errorf("handledBy = %q, want identity default", saved.HandledBy)
	}
	if saved.EventDate != "2026-03-14" {
		t.Errorf("eventDate = %q", saved.EventDate)
	}

	// Record a partial payment; response carries fresh totals.
	resp = postJSON(t, server.URL+"/api/deposits/obligations/"+saved.ID+"/payments", map[string]any{
		"amount": 200000,
		"note":   "cash",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment status = %d", resp.StatusCode)
	}
	var payResp struct {
		Payment paymentJSON `json:"payment"`
		Totals  totalsJSON  `json:"totals"`
	}
	decode(t, resp, &payResp)
	if payResp.Totals.Paid != 200000 || payResp.Totals.Remaining != 300000 || payResp.Totals.Status != "unpaid" {
		t.Errorf("totals = %+v", payResp.Totals)
	}

	// The read model reflects the write immediately.
	var list struct {
		Rows    []obligationJSON      `json:"rows"`
		Totals  map[string]totalsJSON `json:"totals"`
		Loading bool                  `json:"loading"`
		Stale   bool                  `json:"stale"`
	}
	listResp, err := http.Get(server.URL + "/api/deposits/obligations")
	if err != nil {
		t.Fatalf("GET obligations: %v", err)
	}
	decode(t, listResp, &list)
	if len(list.Rows) != 1 || list.Loading || list.Stale {
		t.Fatalf("list = %+v", list)
	}
	if got := list.Totals[saved.ID]; got.Remaining != 300000 {
		t.Errorf("list totals = %+v", got)
	}

	// Settle and check status flips to paid.
	postJSON(t, server.URL+"/api/deposits/obligations/"+saved.ID+"/payments", map[string]any{
		"amount": 300000,
	})
	totalsResp, err := http.Get(server.URL + "/api/deposits/obligations/" + saved.ID + "/totals")
	if err != nil {
		t.Fatalf("GET totals: %v", err)
	}
	var totals totalsJSON
	decode(t, totalsResp, &totals)
	if totals.Status != "paid" || totals.Remaining != 0 {
		t.Errorf("totals = %+v", totals)
	}
}

func TestValidationErrorsReturn400(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		url  string
		body map[string]any
	}{
		{
			name: "missing customer",
			url:  "/api/deposits/obligations",
			body: map[string]any{"faceAmount": 100},
		},
		{
			name: "credits require branch",
			url:  "/api/credits/obligations",
			body: map[string]any{"customerName": "Budi", "faceAmount": 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+tt.url, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestNonPositivePaymentRejected(t *testing.T) {
	server, _ := setupTestServer(t)

	resp := postJSON(t, server.URL+"/api/deposits/obligations", map[string]any{
		"customerName": "Sari", "faceAmount": 1000,
	})
	var saved struct {
		ID string `json:"id"`
	}
	decode(t, resp, &saved)

	bad := postJSON(t, server.URL+"/api/deposits/obligations/"+saved.ID+"/payments", map[string]any{
		"amount": 0,
	})
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", bad.StatusCode)
	}
}

func TestBulkDeleteAndCascade(t *testing.T) {
	server, _ := setupTestServer(t)

	var ids []string
	for i := 0; i < 2; i++ {
		resp := postJSON(t, server.URL+"/api/deposits/obligations", map[string]any{
			"customerName": fmt.Sprintf("Customer %d", i), "faceAmount": 1000,
		})
		var saved struct {
			ID string `json:"id"`
		}
		decode(t, resp, &saved)
		postJSON(t, server.URL+"/api/deposits/obligations/"+saved.ID+"/payments", map[string]any{"amount": 100})
		ids = append(ids, saved.ID)
	}

	resp := postJSON(t, server.URL+"/api/deposits/obligations/bulk-delete", map[string]any{"ids": ids})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk delete status = %d", resp.StatusCode)
	}

	var list struct {
		Rows []obligationJSON `json:"rows"`
	}
	listResp, err := http.Get(server.URL + "/api/deposits/obligations")
	if err != nil {
		t.Fatalf("GET obligations: %v", err)
	}
	decode(t, listResp, &list)
	if len(list.Rows) != 0 {
		t.Errorf("rows after bulk delete = %+v", list.Rows)
	}
}

func TestEditingEndpointTogglesQuiescence(t *testing.T) {
	server, _ := setupTestServer(t)

	open := postJSON(t, server.URL+"/api/deposits/editing", map[string]any{"open": true})
	defer open.Body.Close()
	if open.StatusCode != http.StatusOK {
		t.Fatalf("open status = %d", open.StatusCode)
	}

	// A refresh requested mid-edit is accepted but deferred.
	refresh := postJSON(t, server.URL+"/api/deposits/refresh", map[string]any{})
	defer refresh.Body.Close()
	if refresh.StatusCode != http.StatusAccepted {
		t.Errorf("refresh status = %d, want 202", refresh.StatusCode)
	}

	closed := postJSON(t, server.URL+"/api/deposits/editing", map[string]any{"open": false})
	defer closed.Body.Close()
	if closed.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", closed.StatusCode)
	}
}

func TestPaymentOutsideWindowOmitsTotals(t *testing.T) {
	server, depositStore := setupTestServer(t)

	// Seed an obligation older than the query window straight into the
	// store; the cache never sees it.
	saved, err := depositStore.UpsertObligation(context.Background(), models.Obligation{
		Kind: models.KindDeposit, CustomerName: "Lina",
		FaceAmount: 1000, Date: time.Now().AddDate(0, -3, 0),
	})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}

	resp := postJSON(t, server.URL+"/api/deposits/obligations/"+saved.ID+"/payments", map[string]any{
		"amount": 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment status = %d", resp.StatusCode)
	}
	var body map[string]json.RawMessage
	decode(t, resp, &body)
	if _, ok := body["payment"]; !ok {
		t.Error("response missing payment")
	}
	if raw, ok := body["totals"]; ok {
		t.Errorf("totals present for uncached obligation: %s", raw)
	}
}

func TestUnknownObligationTotalsIsNull(t *testing.T) {
	server, _ := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/credits/obligations/nope/totals")
	if err != nil {
		t.Fatalf("GET totals: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
