// Package domain defines the persistence model for mobile-money payments.
// The types here are mapped with GORM and form the core data layer of the
// payment backend.
package domain

import (
	"time"
)

// PaymentState enumerates the lifecycle states of a payment record.
//
// A record is created Pending when the gateway accepts an STK push request,
// and is moved exactly once to Succeeded or Failed when the asynchronous
// result callback is reconciled. Records created directly by a callback with
// no matching pending row (orphans) start in a terminal state.
type PaymentState string

const (
	// StatePending means the STK push was accepted by the gateway and the
	// payer has not yet confirmed or rejected the prompt.
	StatePending PaymentState = "pending"
	// StateSucceeded means the gateway reported a zero result code.
	StateSucceeded PaymentState = "succeeded"
	// StateFailed means the gateway reported a non-zero result code
	// (cancelled, timed out, insufficient funds, ...).
	StateFailed PaymentState = "failed"
)

// Terminal reports whether s is one of the two end states.
func (s PaymentState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Payment represents a single STK push transaction tracked by the service.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CheckoutRequestID: the gateway-issued correlation identifier; unique,
//     and the sole key used to match asynchronous callbacks.
//   - MerchantRequestID: secondary gateway identifier, kept for audit only.
//   - Phone: canonicalized payer number (254XXXXXXXXX); indexed for the
//     legacy status-by-phone polling mode.
//   - Amount: positive amount in KES, currency-agnostic at this layer.
//   - State: pending | succeeded | failed.
//   - Campaign / Template: optional free-form tags supplied at initiation;
//     immutable after creation.
//   - ReceiptNumber: M-Pesa receipt reference, set only on success.
//   - ResultDetail: human-readable outcome text from the callback.
//   - Orphan: true when the record was created directly by a callback that
//     had no antecedent pending row.
//   - ValidUntil: access-window expiry, set only on success.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Payment struct {
	ID                string       `json:"id"                  gorm:"type:char(36);primaryKey"`
	CheckoutRequestID string       `json:"checkout_request_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_checkout"`
	MerchantRequestID string       `json:"merchant_request_id" gorm:"type:varchar(64)"`
	Phone             string       `json:"phone"               gorm:"type:varchar(16);index:idx_payments_phone,priority:1"`
	Amount            float64      `json:"amount"              gorm:"not null"`
	State             PaymentState `json:"state"               gorm:"type:varchar(16);not null;check:state IN ('pending','succeeded','failed')"`
	Campaign          string       `json:"campaign,omitempty"  gorm:"type:varchar(64)"`
	Template          string       `json:"template,omitempty"  gorm:"type:varchar(64)"`
	ReceiptNumber     string       `json:"receipt_number,omitempty" gorm:"type:varchar(32)"`
	ResultDetail      string       `json:"result_detail,omitempty"  gorm:"type:varchar(255)"`
	Orphan            bool         `json:"orphan,omitempty"`
	ValidUntil        *time.Time   `json:"valid_until,omitempty"`
	CreatedAt         time.Time    `json:"created_at" gorm:"index:idx_payments_phone,priority:2"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }
