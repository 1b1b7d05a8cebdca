// Package services – PaymentService
//
// This file implements the write side of the payment ledger: initiating STK
// pushes against the Daraja gateway and reconciling asynchronous result
// callbacks into the ledger.
//
// Reconciliation is the intricate part. The gateway may deliver a callback
// more than once, out of order with respect to the synchronous initiation
// response, or for a checkout id this process never issued. The rules are:
//
//   - pending row exists          -> transition it exactly once
//   - row already terminal        -> idempotent no-op (gateway retries)
//   - no row at all               -> create an orphan terminal row so the
//     notification is never discarded
//
// A service-level mutex serializes ledger writes so create/reconcile ordering
// on the same checkout id is well defined; reads go straight to the store.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
)

// LedgerRepo defines the repository contract required by PaymentService.
// Implementations are responsible for persistence of payment rows; the state
// machine stays here.
type LedgerRepo interface {
	// CreatePending inserts a pending row for a gateway-accepted push.
	CreatePending(ctx context.Context, db *gorm.DB, checkoutID, merchantID, phone string, amount float64, campaign, template string) (*domain.Payment, error)

	// CreateOrphan inserts a terminal row for a callback with no antecedent.
	CreateOrphan(ctx context.Context, db *gorm.DB, p *domain.Payment) error

	// GetByCheckoutID fetches a row by correlation id.
	GetByCheckoutID(ctx context.Context, db *gorm.DB, checkoutID string) (*domain.Payment, error)

	// MarkTerminal transitions a pending row, returning
	// gorm.ErrRecordNotFound when no pending row matched.
	MarkTerminal(ctx context.Context, db *gorm.DB, checkoutID string, state domain.PaymentState, receipt, detail string, validUntil *time.Time) error
}

// StkGateway is the outbound gateway contract required by PaymentService.
// *daraja.Client satisfies it; tests substitute fakes.
type StkGateway interface {
	// BuildRequest assembles a signed STK push payload without touching the
	// network.
	BuildRequest(phone string, amount float64, accountRef, desc string) daraja.STKPushRequest

	// Submit sends the payload to the gateway and returns its synchronous
	// acknowledgment carrying the checkout request id.
	Submit(ctx context.Context, payload daraja.STKPushRequest) (*daraja.STKPushResponse, error)
}

// InitiateResult is the outcome of a successful payment initiation: the
// pending ledger row plus the raw gateway acknowledgment for the client.
type InitiateResult struct {
	Payment  *domain.Payment
	Response *daraja.STKPushResponse
}

// PaymentService coordinates the payment lifecycle. It is constructed once at
// startup and shared by all request handlers; the embedded mutex makes ledger
// writes safe for concurrent use.
type PaymentService struct {
	// DB is the GORM handle for the ledger.
	DB *gorm.DB
	// Repo is the ledger repository used by this service.
	Repo LedgerRepo
	// Gateway submits STK pushes.
	Gateway StkGateway
	// Amounts is the fixed/bounded amount policy.
	Amounts config.AmountConfig
	// AccessWindow is added to the reconciliation time to compute ValidUntil
	// on success.
	AccessWindow time.Duration
	// AccountReference is the merchant-side reference stamped on every push.
	AccountReference string
	// TagMaxLen caps stored campaign/template tags by rune length.
	TagMaxLen int

	// mu serializes ledger writes (create and reconcile).
	mu sync.Mutex

	// now is a clock seam for tests.
	now func() time.Time
}

// NewPaymentService constructs a PaymentService with sane defaults.
func NewPaymentService(db *gorm.DB, r LedgerRepo, gw StkGateway, amounts config.AmountConfig, accessWindow time.Duration) *PaymentService {
	return &PaymentService{
		DB:               db,
		Repo:             r,
		Gateway:          gw,
		Amounts:          amounts,
		AccessWindow:     accessWindow,
		AccountReference: "PERONTIPS",
		TagMaxLen:        64,
		now:              time.Now,
	}
}

// Initiate validates the caller's intent, submits an STK push, and records a
// pending ledger row keyed by the gateway-issued checkout request id.
//
// Validation failures (daraja.ErrInvalidPhone, daraja.ErrInvalidAmount,
// daraja.ErrAmountExceedsLimit) are returned before any outbound call. A
// submission that fails before the gateway returns a checkout id leaves no
// ledger trace. ErrDuplicateCheckoutID signals a gateway-side anomaly: the
// returned id is already present in the ledger.
func (s *PaymentService) Initiate(ctx context.Context, rawPhone string, amount float64, campaign, template string) (*InitiateResult, error) {
	phone, err := daraja.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	charge, err := daraja.ResolveAmount(s.Amounts, amount)
	if err != nil {
		return nil, err
	}
	campaign = s.normalizeTag(campaign)
	template = s.normalizeTag(template)

	payload := s.Gateway.BuildRequest(phone, charge, s.AccountReference, "Flier access payment")
	resp, err := s.Gateway.Submit(ctx, payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Repo.GetByCheckoutID(ctx, s.DB, resp.CheckoutRequestID); err == nil {
		return nil, ErrDuplicateCheckoutID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p, err := s.Repo.CreatePending(ctx, s.DB, resp.CheckoutRequestID, resp.MerchantRequestID, phone, charge, campaign, template)
	if err != nil {
		return nil, err
	}
	paymentsInitiated.Inc()
	return &InitiateResult{Payment: p, Response: resp}, nil
}

// Reconcile merges an asynchronous result callback into the ledger.
//
// It never fails on re-delivery: reconciling a checkout id that is already
// terminal is a no-op returning nil, because the gateway retries callbacks it
// believes were lost. Unknown ids produce orphan terminal rows preserving the
// callback detail.
func (s *PaymentService) Reconcile(ctx context.Context, cb daraja.StkCallback) error {
	if cb.CheckoutRequestID == "" {
		return ErrPaymentNotFound
	}

	state := domain.StateFailed
	receipt := ""
	var validUntil *time.Time
	if cb.Succeeded() {
		state = domain.StateSucceeded
		receipt = cb.ReceiptNumber()
		t := s.now().Add(s.AccessWindow).UTC()
		validUntil = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.Repo.MarkTerminal(ctx, s.DB, cb.CheckoutRequestID, state, receipt, cb.ResultDesc, validUntil)
	if err == nil {
		callbacksReconciled.WithLabelValues(string(state)).Inc()
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// No pending row matched: either an earlier delivery already moved the
	// payment to a terminal state, or the id is unknown to this process.
	existing, getErr := s.Repo.GetByCheckoutID(ctx, s.DB, cb.CheckoutRequestID)
	if getErr == nil && existing.State.Terminal() {
		callbacksReconciled.WithLabelValues("replayed").Inc()
		return nil
	}
	if getErr != nil && !errors.Is(getErr, gorm.ErrRecordNotFound) {
		return getErr
	}

	orphan := &domain.Payment{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		Phone:             cb.PayerPhone(),
		State:             state,
		ReceiptNumber:     receipt,
		ResultDetail:      cb.ResultDesc,
		ValidUntil:        validUntil,
	}
	if amt, ok := cb.Amount(); ok {
		orphan.Amount = amt
	}
	if err := s.Repo.CreateOrphan(ctx, s.DB, orphan); err != nil {
		return err
	}
	callbacksOrphaned.Inc()
	callbacksReconciled.WithLabelValues(string(state)).Inc()
	return nil
}

// normalizeTag trims and collapses whitespace, title-cases the tag for
// consistent display, and clips it to the configured rune length.
func (s *PaymentService) normalizeTag(tag string) string {
	tag = whitespaceRE.ReplaceAllString(strings.TrimSpace(tag), " ")
	if tag == "" {
		return ""
	}
	tag = cases.Title(language.Und, cases.NoLower).String(tag)
	if s.TagMaxLen > 0 {
		r := []rune(tag)
		if len(r) > s.TagMaxLen {
			tag = string(r[:s.TagMaxLen])
		}
	}
	return tag
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
