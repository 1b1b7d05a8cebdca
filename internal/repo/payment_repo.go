// Package repo implements the data persistence layer for the payment ledger,
// backed by GORM. This file provides repository functions for the Payment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the "thin repository" approach: no state-machine logic, only persistence
// and query composition. Transition rules (pending -> terminal exactly once,
// orphan creation, idempotent re-delivery) live in services.PaymentService,
// which also serializes writers on the same checkout id.
//
// Error semantics:
//   - When a payment is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePending inserts a new pending Payment row for a gateway-accepted STK
// push. The row ID is a randomly generated UUID and CreatedAt is set to UTC.
//
// On success it returns the persisted Payment. On failure (including a
// violated unique index on checkout_request_id) it returns a DB error.
func CreatePending(ctx context.Context, db *gorm.DB, checkoutID, merchantID, phone string, amount float64, campaign, template string) (*domain.Payment, error) {
	p := &domain.Payment{
		ID:                uuid.NewString(),
		CheckoutRequestID: checkoutID,
		MerchantRequestID: merchantID,
		Phone:             phone,
		Amount:            amount,
		State:             domain.StatePending,
		Campaign:          campaign,
		Template:          template,
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// CreateOrphan inserts a terminal Payment row for a callback that had no
// antecedent pending record, preserving all available callback detail for
// later audit.
func CreateOrphan(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Orphan = true
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetByCheckoutID fetches a single payment by its gateway correlation
// identifier, or ErrNotFound if missing.
func GetByCheckoutID(ctx context.Context, db *gorm.DB, checkoutID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkTerminal transitions the payment identified by checkoutID out of the
// pending state, stamping the terminal fields in a single update. The WHERE
// clause includes the pending state so a row already moved to a terminal
// state is never touched; in that case ErrNotFound is returned and the caller
// decides whether that is an idempotent re-delivery or a genuine miss.
func MarkTerminal(ctx context.Context, db *gorm.DB, checkoutID string, state domain.PaymentState, receipt, detail string, validUntil *time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("checkout_request_id = ? AND state = ?", checkoutID, domain.StatePending).
		Updates(map[string]any{
			"state":          state,
			"receipt_number": receipt,
			"result_detail":  detail,
			"valid_until":    validUntil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByPhone returns all payments for a canonical phone number, oldest
// first (insertion order). It returns an empty slice when the phone has no
// payments.
func ListByPhone(ctx context.Context, db *gorm.DB, phone string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// LatestByPhone returns the most recently created payment for a phone, or
// ErrNotFound when the phone has none. This backs the legacy polling mode.
func LatestByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at desc").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAll returns every payment, oldest first.
func ListAll(ctx context.Context, db *gorm.DB) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListPage returns one page of payments oldest first, filtered by phone when
// phone is non-empty. Ties on created_at break on id so pages never overlap.
func ListPage(ctx context.Context, db *gorm.DB, phone string, offset, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	q := db.WithContext(ctx).Order("created_at asc, id asc")
	if phone != "" {
		q = q.Where("phone = ?", phone)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountAll returns the total number of payments in the ledger.
func CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Count(&total).Error
	return total, err
}

// CountByPhone returns the number of payments recorded for a phone.
func CountByPhone(ctx context.Context, db *gorm.DB, phone string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("phone = ?", phone).
		Count(&total).Error
	return total, err
}
