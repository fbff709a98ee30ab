package money

import (
	"math"
	"testing"

	"github.com/tallyhouse/tally/internal/models"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int64
	}{
		{name: "integer passes through", in: 500000, want: 500000},
		{name: "rounds half up", in: 2.5, want: 3},
		{name: "rounds down below half", in: 2.4, want: 2},
		{name: "negative rounds to nearest", in: -2.5, want: -3},
		{name: "NaN is zero", in: math.NaN(), want: 0},
		{name: "positive infinity is zero", in: math.Inf(1), want: 0},
		{name: "negative infinity is zero", in: math.Inf(-1), want: 0},
		{name: "zero", in: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Round(tt.in); got != tt.want {
				t.Errorf("Round(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSumUniqueByPaymentID(t *testing.T) {
	tests := []struct {
		name     string
		payments []models.Payment
		want     int64
	}{
		{
			name:     "empty list sums to zero",
			payments: nil,
			want:     0,
		},
		{
			name: "distinct payments all count",
			payments: []models.Payment{
				{ID: "p1", Amount: 200000},
				{ID: "p2", Amount: 300000},
			},
			want: 500000,
		},
		{
			name: "duplicate delivery counts once",
			payments: []models.Payment{
				{ID: "p1", Amount: 200000},
				{ID: "p2", Amount: 300000},
				{ID: "p1", Amount: 200000},
			},
			want: 500000,
		},
		{
			name: "first occurrence wins on conflicting amounts",
			payments: []models.Payment{
				{ID: "p1", Amount: 100},
				{ID: "p1", Amount: 999},
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SumUniqueByPaymentID(tt.payments); got != tt.want {
				t.Errorf("SumUniqueByPaymentID() = %d, want %d", got, tt.want)
			}
		})
	}
}
