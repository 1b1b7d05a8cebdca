// Package services implements the business logic of the payment backend: the
// initiation flow, the callback reconciliation state machine, and read-side
// status projections. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into HTTP status codes is performed at the handler layer.
// Validation errors for phone numbers and amounts originate in the daraja
// package (ErrInvalidPhone, ErrInvalidAmount, ErrAmountExceedsLimit) and pass
// through the services unchanged.
package services

import "errors"

var (
	// ErrPaymentNotFound indicates that no payment exists for the requested
	// checkout request identifier.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrNoTransactions indicates that a phone number has no recorded
	// payments at all (legacy polling mode).
	ErrNoTransactions = errors.New("no transactions for phone")

	// ErrDuplicateCheckoutID is returned when the gateway hands out a
	// checkout request identifier that is already in the ledger. This should
	// not occur in normal operation and indicates a gateway-side anomaly.
	ErrDuplicateCheckoutID = errors.New("duplicate checkout request id")
)
