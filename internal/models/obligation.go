package models

import "time"

// Kind discriminates the two obligation ledgers.
type Kind string

const (
	// KindCredit is money a customer owes the restaurant.
	KindCredit Kind = "credit"

	// KindDeposit is money collected up front for a future event.
	KindDeposit Kind = "deposit"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDeposit
}

// Obligation represents a credit or deposit with a face amount owed.
type Obligation struct {
	// ID is the unique identifier for the obligation (UUID format,
	// client-generated).
	ID string

	// Kind is credit or deposit.
	Kind Kind

	// Branch is a free-text site identifier. Empty means unscoped.
	Branch string

	// Date is the calendar date the obligation was recorded.
	Date time.Time

	// CustomerName is required; phone and email are optional contact info.
	CustomerName  string
	CustomerPhone string
	CustomerEmail string

	// FaceAmount is the amount owed, in whole currency units. Never
	// negative. A zero face amount means the obligation is Open with no
	// meaningful paid/remaining distinction.
	FaceAmount int64

	// Reference is free text (invoice number, booking code, ...).
	Reference string

	// Shift is the free-text shift label the obligation was recorded under.
	Shift string

	// HandledBy is the staff name that recorded the obligation.
	HandledBy string

	// Note is free text.
	Note string

	// EventDate is the date of the catered event, deposits only.
	EventDate *time.Time
}

// Payment is a partial or full settlement applied against one Obligation.
// Deleting the Obligation deletes all of its Payments; a Payment is never
// orphaned.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// ObligationID is the owning Obligation.
	ObligationID string

	// Amount is the settled amount in whole currency units, always > 0.
	Amount int64

	// Date is a full timestamp; ordering within a day matters.
	Date time.Time

	// Note is free text; by convention it carries the payment method.
	Note string

	// RecordedBy is the staff name that entered the payment, optional.
	RecordedBy string
}

// PaymentPatch carries the mutable Payment fields for an update. Nil
// fields are left unchanged.
type PaymentPatch struct {
	Amount *int64
	Date   *time.Time
	Note   *string
}
