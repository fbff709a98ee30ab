package models

// Status classifies how settled an obligation is.
type Status string

const (
	// StatusOpen applies only to obligations with a zero face amount.
	StatusOpen Status = "open"

	// StatusUnpaid means some of the face amount is still outstanding.
	StatusUnpaid Status = "unpaid"

	// StatusPaid means nothing remains outstanding.
	StatusPaid Status = "paid"
)

// Totals is the derived settlement view for one Obligation. It is never
// persisted; it is recomputed from the obligation and its payments.
type Totals struct {
	// Paid is the sum of payment amounts, deduplicated by payment ID.
	Paid int64

	// Remaining is max(0, faceAmount - paid). Overpayment clamps to zero
	// and is not flagged.
	Remaining int64

	// Status is Open, Unpaid or Paid per the rules above.
	Status Status
}
