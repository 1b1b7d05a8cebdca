// Package services – StatusService
//
// This file implements the read side: projections over the payment ledger by
// checkout request id or by phone number. The service never mutates the
// ledger; it only normalizes lookup keys and maps store misses onto the
// service error taxonomy.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/repo"
)

// StatusService answers status queries against the payment ledger.
// It is safe for concurrent use.
type StatusService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB
}

// NewStatusService constructs a StatusService over the given ledger handle.
func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{DB: db}
}

// ByCheckoutID returns the payment for a gateway correlation id, or
// ErrPaymentNotFound.
func (s *StatusService) ByCheckoutID(ctx context.Context, checkoutID string) (*domain.Payment, error) {
	p, err := repo.GetByCheckoutID(ctx, s.DB, checkoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// LatestByPhone returns the most recently created payment for a phone in any
// accepted input shape (legacy polling mode). ErrNoTransactions signals that
// the phone has no payments; a malformed phone fails with
// daraja.ErrInvalidPhone.
func (s *StatusService) LatestByPhone(ctx context.Context, rawPhone string) (*domain.Payment, error) {
	phone, err := daraja.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	p, err := repo.LatestByPhone(ctx, s.DB, phone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoTransactions
	}
	return p, err
}

// ListByPhone returns all payments for a phone, oldest first.
func (s *StatusService) ListByPhone(ctx context.Context, rawPhone string) ([]domain.Payment, error) {
	phone, err := daraja.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	return repo.ListByPhone(ctx, s.DB, phone)
}

// ListAll returns every payment in the ledger, oldest first.
func (s *StatusService) ListAll(ctx context.Context) ([]domain.Payment, error) {
	return repo.ListAll(ctx, s.DB)
}

// ListPage returns one page of payments, oldest first, optionally filtered by
// phone, along with the total row count for the filter. Paging happens in the
// store, so the ledger is never materialized whole for a listing request.
func (s *StatusService) ListPage(ctx context.Context, rawPhone string, page, pageSize int) ([]domain.Payment, int64, error) {
	phone := ""
	if rawPhone != "" {
		var err error
		if phone, err = daraja.NormalizePhone(rawPhone); err != nil {
			return nil, 0, err
		}
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var (
		total int64
		err   error
	)
	if phone != "" {
		total, err = repo.CountByPhone(ctx, s.DB, phone)
	} else {
		total, err = repo.CountAll(ctx, s.DB)
	}
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Payment{}, 0, nil
	}

	items, err := repo.ListPage(ctx, s.DB, phone, offset, pageSize)
	return items, total, err
}

// Stats returns the row count and newest update instant for a phone filter
// (empty means the whole ledger). It backs conditional listing requests.
func (s *StatusService) Stats(ctx context.Context, phone string) (int64, *time.Time, error) {
	return repo.PaymentsStats(ctx, s.DB, phone)
}
