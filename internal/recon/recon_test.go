package recon

import (
	"testing"

	"github.com/tallyhouse/tally/internal/models"
)

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name       string
		obligation models.Obligation
		payments   []models.Payment
		want       models.Totals
	}{
		{
			name:       "no payments is fully unpaid",
			obligation: models.Obligation{ID: "c1", FaceAmount: 500000},
			payments:   nil,
			want:       models.Totals{Paid: 0, Remaining: 500000, Status: models.StatusUnpaid},
		},
		{
			name:       "partial payment",
			obligation: models.Obligation{ID: "c1", FaceAmount: 500000},
			payments: []models.Payment{
				{ID: "p1", ObligationID: "c1", Amount: 200000},
			},
			want: models.Totals{Paid: 200000, Remaining: 300000, Status: models.StatusUnpaid},
		},
		{
			name:       "exact settlement",
			obligation: models.Obligation{ID: "c1", FaceAmount: 500000},
			payments: []models.Payment{
				{ID: "p1", ObligationID: "c1", Amount: 200000},
				{ID: "p2", ObligationID: "c1", Amount: 300000},
			},
			want: models.Totals{Paid: 500000, Remaining: 0, Status: models.StatusPaid},
		},
		{
			name:       "duplicate delivery does not double-count",
			obligation: models.Obligation{ID: "c1", FaceAmount: 500000},
			payments: []models.Payment{
				{ID: "p1", ObligationID: "c1", Amount: 200000},
				{ID: "p2", ObligationID: "c1", Amount: 300000},
				{ID: "p1", ObligationID: "c1", Amount: 200000},
			},
			want: models.Totals{Paid: 500000, Remaining: 0, Status: models.StatusPaid},
		},
		{
			name:       "zero face amount is open with no payments",
			obligation: models.Obligation{ID: "d1", FaceAmount: 0},
			payments:   nil,
			want:       models.Totals{Paid: 0, Remaining: 0, Status: models.StatusOpen},
		},
		{
			name:       "zero face amount stays open even when paid",
			obligation: models.Obligation{ID: "d1", FaceAmount: 0},
			payments: []models.Payment{
				{ID: "p1", ObligationID: "d1", Amount: 50000},
			},
			want: models.Totals{Paid: 50000, Remaining: 0, Status: models.StatusOpen},
		},
		{
			name:       "overpayment clamps remaining and reads as paid",
			obligation: models.Obligation{ID: "d2", FaceAmount: 100000},
			payments: []models.Payment{
				{ID: "p1", ObligationID: "d2", Amount: 150000},
			},
			want: models.Totals{Paid: 150000, Remaining: 0, Status: models.StatusPaid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.obligation, tt.payments)
			if got != tt.want {
				t.Errorf("ComputeTotals() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeTotalsRemainingNeverNegative(t *testing.T) {
	o := models.Obligation{ID: "x", FaceAmount: 100}
	payments := []models.Payment{}
	for i := 0; i < 50; i++ {
		payments = append(payments, models.Payment{
			ID:           string(rune('a' + i)),
			ObligationID: "x",
			Amount:       37,
		})
		got := ComputeTotals(o, payments)
		if got.Remaining < 0 {
			t.Fatalf("remaining went negative: %+v after %d payments", got, i+1)
		}
		if got.Remaining == 0 && got.Status != models.StatusPaid {
			t.Fatalf("remaining 0 but status %q", got.Status)
		}
	}
}
