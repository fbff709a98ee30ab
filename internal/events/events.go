// Package events defines the outbound mutation event stream. Publishing
// is best-effort: a failed publish is logged by the caller and never
// surfaces, the same policy as background sync failures.
package events

import "time"

// Publisher delivers mutation events to an external stream.
type Publisher interface {
	Publish(topic string, event any) error
}

// Nop is the publisher used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }

// Topics, one per record type.
const (
	TopicObligations = "ledger_obligations"
	TopicPayments    = "ledger_payments"
)

// ObligationSaved announces a created or updated obligation.
type ObligationSaved struct {
	Kind         string    `json:"kind"`
	ObligationID string    `json:"obligation_id"`
	Branch       string    `json:"branch"`
	FaceAmount   int64     `json:"face_amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ObligationsDeleted announces removed obligations (and their payments).
type ObligationsDeleted struct {
	Kind          string    `json:"kind"`
	ObligationIDs []string  `json:"obligation_ids"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentRecorded announces a created or updated payment.
type PaymentRecorded struct {
	Kind         string    `json:"kind"`
	ObligationID string    `json:"obligation_id"`
	PaymentID    string    `json:"payment_id"`
	Amount       int64     `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentDeleted announces a removed payment.
type PaymentDeleted struct {
	Kind         string    `json:"kind"`
	ObligationID string    `json:"obligation_id"`
	PaymentID    string    `json:"payment_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Compile-time check: Nop satisfies Publisher.
var _ Publisher = Nop{}
