// Package daraja implements the outbound client for the Safaricom Daraja
// mobile-money gateway: OAuth token caching, phone canonicalization, STK push
// request construction and submission, and the asynchronous result envelope.
//
// This file centralizes the sentinel error values returned by the package so
// callers can classify failures with errors.Is and map them to HTTP results.
package daraja

import "errors"

var (
	// ErrCredentialsUnavailable is returned when the Daraja consumer key or
	// secret is not configured; no network call is attempted.
	ErrCredentialsUnavailable = errors.New("daraja credentials not configured")

	// ErrUpstreamAuth is returned when the OAuth token exchange fails,
	// times out, or yields an unusable response.
	ErrUpstreamAuth = errors.New("daraja token exchange failed")

	// ErrInvalidPhone is returned for inputs that do not match any of the
	// accepted Kenyan subscriber number shapes.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidAmount is returned for zero or negative amounts in a mode
	// where the caller supplies the amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAmountExceedsLimit is returned when a caller-supplied amount is
	// above the configured ceiling.
	ErrAmountExceedsLimit = errors.New("amount exceeds configured limit")

	// ErrSubmission is returned when the STK push submission fails at the
	// network level, times out, or the gateway rejects it.
	ErrSubmission = errors.New("stk push submission failed")
)
