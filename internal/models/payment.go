package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the status of a payment transaction as
// reported by the mobile money gateway
// Matches PostgreSQL ENUM: transaction_status
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionSuccessful TransactionStatus = "SUCCESSFUL"
	TransactionFailed     TransactionStatus = "FAILED"
)

// PaymentTransaction represents one charge attempt against a booking
// (payment_transactions table)
type PaymentTransaction struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`

	Provider string  `json:"provider" db:"provider"` // "mtn" or "orange"
	Phone    string  `json:"phone" db:"phone"`
	Amount   float64 `json:"amount" db:"amount"`
	Currency string  `json:"currency" db:"currency"`

	// Seats this charge covers (additional seats only when topping up a
	// partially paid booking)
	SeatsPurchased int `json:"seats_purchased" db:"seats_purchased"`

	// Reference used with the gateway for status checks
	ExternalRef string `json:"external_ref" db:"external_ref"`

	// Handle issued by the gateway at init time (Orange payToken).
	// Persisted so status checks survive a process restart.
	ProviderRef string `json:"-" db:"provider_ref"`

	Status        TransactionStatus `json:"status" db:"status"`
	FailureReason *string           `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsTerminal reports whether the transaction has reached a final state
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status == TransactionSuccessful || t.Status == TransactionFailed
}

// ============================================================================
// POLL OUTCOME
// ============================================================================

// PollState classifies a single gateway status check
type PollState string

const (
	PollPending   PollState = "pending"   // Still awaiting subscriber approval
	PollSucceeded PollState = "succeeded" // Gateway confirmed the charge
	PollDeclined  PollState = "declined"  // Gateway rejected the charge
	PollUnknown   PollState = "unknown"   // Status could not be determined
)

// PollOutcome is the classified result of a status check. Declined carries
// the gateway's reason; Unknown carries the cause of the failure to
// determine status. The two are never conflated.
type PollOutcome struct {
	State  PollState
	Reason string // Gateway decline reason (Declined only)
	Cause  error  // Transport or decoding failure (Unknown only)
}

// IsTerminal reports whether polling should stop
func (o PollOutcome) IsTerminal() bool {
	return o.State == PollSucceeded || o.State == PollDeclined
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// CreatePaymentRequest starts a mobile money charge for a booking
type CreatePaymentRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Provider  string `json:"provider" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
}

// CreatePaymentResponse is returned after the charge request is accepted
// by the gateway; the client then polls GET /api/payments/status
type CreatePaymentResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Provider      string    `json:"provider"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Fee           float64   `json:"fee"`
	USSDHint      string    `json:"ussd_hint,omitempty"`
}

// PaymentStatusResponse reports the current transaction status to a
// polling client
type PaymentStatusResponse struct {
	Reference     string            `json:"reference"`
	Status        TransactionStatus `json:"status"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	BookingID     uuid.UUID         `json:"booking_id"`

	// How long the client should keep the confirmation screen up before
	// navigating away, in seconds
	ConfirmationDisplaySeconds int `json:"confirmation_display_seconds"`
}
