// Package money implements the rounding and aggregation rules for monetary
// integers. All amounts in the ledger are whole currency units; fractional
// input is rounded exactly once, here, at the boundary.
package money

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/tallyhouse/tally/internal/models"
)

// Round converts raw numeric input to whole currency units, rounding to
// the nearest unit. Non-finite input (NaN, ±Inf) is treated as 0.
func Round(n float64) int64 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return decimal.NewFromFloat(n).Round(0).IntPart()
}

// SumUniqueByPaymentID sums payment amounts after deduplicating by payment
// ID, first occurrence wins. This keeps totals idempotent even when the
// same payment is delivered twice by overlapping feeds (initial fetch,
// realtime push, local mutation echo).
func SumUniqueByPaymentID(payments []models.Payment) int64 {
	seen := make(map[string]bool, len(payments))
	var sum int64
	for _, p := range payments {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		sum += p.Amount
	}
	return sum
}
