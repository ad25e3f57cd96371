package models

import "time"

// EventSource distinguishes the three inbound shapes a gateway notification
// can take. All three converge on the same normalized PaymentEvent.
type EventSource string

const (
	SourceWebhook  EventSource = "webhook"
	SourceCallback EventSource = "callback"
	SourcePoll     EventSource = "poll"
)

// Outcome is the claimed (pre-verification) or verified payment result.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// PaymentEvent is the normalized input contract to the payment verifier. It is
// constructed fresh per inbound notification and never persisted.
type PaymentEvent struct {
	Source           EventSource `json:"source"`
	Gateway          string      `json:"gateway"`
	OrderID          string      `json:"order_id"` // internal order id from the merchant reference field
	GatewayOrderID   string      `json:"gateway_order_id"`
	GatewayPaymentID string      `json:"gateway_payment_id"`
	Signature        string      `json:"signature,omitempty"`
	RawBody          []byte      `json:"-"`
	ClaimedOutcome   Outcome     `json:"claimed_outcome"`
}

// OrderEvent is the outbound envelope published to Kafka when an order is
// finalized or cancelled.
type OrderEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortfallEvent feeds the operator reconciliation queue.
type ShortfallEvent struct {
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Requested int       `json:"requested"`
	Applied   int       `json:"applied"`
	Timestamp time.Time `json:"timestamp"`
}
