// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, conflict) mirror common HTTP status
//     semantics to aid interoperability.
//   - Domain-specific codes carry the payment error taxonomy: validation
//     failures are client errors with no retry, auth/submission failures are
//     upstream errors the caller may retry later.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidPhone   = "invalid_phone"
	ErrCodeInvalidAmount  = "invalid_amount"
	ErrCodeAmountTooLarge = "amount_exceeds_limit"
	ErrCodeUpstreamAuth   = "upstream_auth_failed"
	ErrCodeSubmitFailed   = "gateway_submission_failed"
	ErrCodeNoTransactions = "no_transactions"
	ErrCodeDuplicatePush  = "duplicate_checkout_id"
	ErrCodeListFailed     = "list_failed"
)
