package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tallyhouse/tally/internal/models"
)

func newTestFallback(t *testing.T) *Fallback {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "tally-snapshot-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	f, err := Open(filepath.Join(tempDir, "snapshot.db"))
	if err != nil {
		t.Fatalf("Failed to open fallback: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFallbackRoundTrip(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	eventDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	obligations := []models.Obligation{
		{
			ID:           "d1",
			Kind:         models.KindDeposit,
			Branch:       "downtown",
			Date:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			CustomerName: "Sari",
			FaceAmount:   500000,
			HandledBy:    "Ana",
			EventDate:    &eventDate,
		},
	}
	payments := []models.Payment{
		{ID: "p1", ObligationID: "d1", Amount: 200000, Date: time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC), Note: "cash"},
	}

	if err := f.Save(ctx, models.KindDeposit, obligations, payments); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	gotObligations, gotPayments, err := f.Load(ctx, models.KindDeposit)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(gotObligations) != 1 || len(gotPayments) != 1 {
		t.Fatalf("got %d obligations, %d payments, want 1 and 1", len(gotObligations), len(gotPayments))
	}
	o := gotObligations[0]
	if o.ID != "d1" || o.FaceAmount != 500000 || o.CustomerName != "Sari" {
		t.Errorf("obligation round-trip mismatch: %+v", o)
	}
	if o.EventDate == nil || !o.EventDate.Equal(eventDate) {
		t.Errorf("event date round-trip mismatch: %v", o.EventDate)
	}
	p := gotPayments[0]
	if p.ID != "p1" || p.Amount != 200000 || !p.Date.Equal(payments[0].Date) {
		t.Errorf("payment round-trip mismatch: %+v", p)
	}
}

func TestFallbackSaveReplacesKind(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()
	now := time.Now()

	first := []models.Obligation{{ID: "c1", Kind: models.KindCredit, Date: now, CustomerName: "Budi", FaceAmount: 100}}
	firstPayments := []models.Payment{{ID: "p1", ObligationID: "c1", Amount: 50, Date: now}}
	if err := f.Save(ctx, models.KindCredit, first, firstPayments); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	// Other kind survives a replace of the first.
	deposits := []models.Obligation{{ID: "d1", Kind: models.KindDeposit, Date: now, CustomerName: "Sari", FaceAmount: 200}}
	if err := f.Save(ctx, models.KindDeposit, deposits, nil); err != nil {
		t.Fatalf("deposit Save failed: %v", err)
	}

	second := []models.Obligation{{ID: "c2", Kind: models.KindCredit, Date: now, CustomerName: "Citra", FaceAmount: 300}}
	if err := f.Save(ctx, models.KindCredit, second, nil); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	credits, creditPayments, err := f.Load(ctx, models.KindCredit)
	if err != nil {
		t.Fatalf("Load credits failed: %v", err)
	}
	if len(credits) != 1 || credits[0].ID != "c2" {
		t.Errorf("credits = %+v, want only c2", credits)
	}
	// Payments of replaced obligations cascade away.
	if len(creditPayments) != 0 {
		t.Errorf("credit payments = %+v, want none", creditPayments)
	}

	depositsGot, _, err := f.Load(ctx, models.KindDeposit)
	if err != nil {
		t.Fatalf("Load deposits failed: %v", err)
	}
	if len(depositsGot) != 1 || depositsGot[0].ID != "d1" {
		t.Errorf("deposits = %+v, want only d1", depositsGot)
	}
}

func TestFallbackLoadEmpty(t *testing.T) {
	f := newTestFallback(t)

	obligations, payments, err := f.Load(context.Background(), models.KindCredit)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(obligations) != 0 || len(payments) != 0 {
		t.Errorf("expected empty snapshot, got %d obligations, %d payments", len(obligations), len(payments))
	}
}
