package momo

import (
	"context"
	"errors"
)

// StatusState is the normalized gateway transaction state
type StatusState string

const (
	StatusPending    StatusState = "PENDING"
	StatusSuccessful StatusState = "SUCCESSFUL"
	StatusFailed     StatusState = "FAILED"
)

// Status is a normalized gateway status check result. Reason is only set
// for failed transactions and carries the operator's decline code.
type Status struct {
	State  StatusState
	Reason string
}

// PaymentRequest asks the gateway to charge a subscriber
type PaymentRequest struct {
	// Reference is the caller-generated idempotent transaction id; all
	// later status checks use it
	Reference   string
	Amount      float64
	Currency    string
	Phone       string // 9-digit subscriber number, no country code
	Description string
}

// PaymentInit is returned by a successful RequestPayment. ProviderRef is
// the gateway's own handle for the transaction when it issues one; it is
// empty for gateways that accept the caller reference directly.
type PaymentInit struct {
	ProviderRef string
}

// ErrTransactionNotFound is returned by CheckStatus when the gateway has
// no record of the reference
var ErrTransactionNotFound = errors.New("transaction not found at gateway")

// Gateway abstracts a mobile money collection API. RequestPayment pushes
// an approval prompt to the subscriber's handset; CheckStatus reports
// whether the subscriber has approved, declined or not yet responded.
// providerRef is the PaymentInit.ProviderRef from the originating
// request, and must survive process restarts for gateways that need it.
type Gateway interface {
	Provider() Provider
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentInit, error)
	CheckStatus(ctx context.Context, reference, providerRef string) (*Status, error)
}
