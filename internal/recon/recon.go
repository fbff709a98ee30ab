// Package recon derives the settlement view for an obligation from its
// recorded payments. Pure computation, no I/O; cheap enough to run on
// every cache change.
package recon

import (
	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/money"
)

// ComputeTotals returns the paid/remaining/status view for one obligation.
//
// Paid deduplicates by payment ID, so overlapping delivery paths cannot
// double-count. Remaining clamps at zero; overpayment is absorbed, not
// flagged. A zero face amount means Open regardless of payments — paid is
// still tracked as informational.
func ComputeTotals(o models.Obligation, payments []models.Payment) models.Totals {
	paid := money.SumUniqueByPaymentID(payments)

	if o.FaceAmount == 0 {
		return models.Totals{Paid: paid, Remaining: 0, Status: models.StatusOpen}
	}

	remaining := o.FaceAmount - paid
	if remaining < 0 {
		remaining = 0
	}

	status := models.StatusUnpaid
	if remaining == 0 {
		status = models.StatusPaid
	}
	return models.Totals{Paid: paid, Remaining: remaining, Status: status}
}
