// Payment HTTP handlers.
//
// This file exposes the payment-initiation endpoint:
//   - POST /payments   (submit an STK push and record a pending payment)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate service errors into the HTTP error taxonomy. All business
// rules (phone shapes, amount policy, ledger transitions) live in the
// services and daraja packages.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/http/middleware"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// PaymentService defines the payment write-side operations consumed by HTTP
// handlers.
//
// Implementations must be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PaymentService interface {
	// Initiate submits an STK push and records a pending payment.
	Initiate(ctx context.Context, rawPhone string, amount float64, campaign, template string) (*services.InitiateResult, error)
	// Reconcile merges an asynchronous gateway callback into the ledger.
	Reconcile(ctx context.Context, cb daraja.StkCallback) error
}

// StatusService defines the read-side projections consumed by HTTP handlers.
type StatusService interface {
	// ByCheckoutID returns the payment for a gateway correlation id.
	ByCheckoutID(ctx context.Context, checkoutID string) (*domain.Payment, error)
	// LatestByPhone returns the newest payment for a phone (legacy mode).
	LatestByPhone(ctx context.Context, rawPhone string) (*domain.Payment, error)
	// ListPage returns one page of payments, oldest first, optionally
	// filtered by phone, plus the total row count for the filter.
	ListPage(ctx context.Context, rawPhone string, page, pageSize int) ([]domain.Payment, int64, error)
	// Stats returns the row count and newest update instant for a phone
	// filter (empty means the whole ledger).
	Stats(ctx context.Context, phone string) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for payments, callbacks, and status
// queries. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	paySvc    PaymentService
	statusSvc StatusService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(paySvc PaymentService, statusSvc StatusService) *Handlers {
	return &Handlers{paySvc: paySvc, statusSvc: statusSvc}
}

//
// DTOs
//

// InitiatePaymentRequest is the JSON payload for starting an STK push.
//
// Amount is optional: in fixed-amount deployments it is ignored, and in
// bounded deployments a zero value falls back to the configured default.
type InitiatePaymentRequest struct {
	// Phone is the payer number in national, subscriber, or international form.
	Phone string `json:"phone" binding:"required" example:"0712345678"`
	// Amount is the KES amount to charge (bounded mode only).
	Amount float64 `json:"amount,omitempty" example:"20"`
	// Campaign optionally tags the flier campaign being paid for.
	Campaign string `json:"campaign,omitempty" example:"back to school"`
	// Template optionally tags the flier template being unlocked.
	Template string `json:"template,omitempty" example:"poster-a4"`
}

// InitiatePaymentResponse echoes the gateway acknowledgment to the client.
// The checkout request id is the handle used for all later status polling.
type InitiatePaymentResponse struct {
	CheckoutRequestID   string `json:"checkout_request_id"`
	MerchantRequestID   string `json:"merchant_request_id"`
	ResponseDescription string `json:"response_description"`
	CustomerMessage     string `json:"customer_message"`
}

//
// Handlers
//

// InitiatePayment godoc
// @ID          initiatePayment
// @Summary     Start an STK push payment
// @Description Submits a Lipa na M-Pesa STK push for the given phone and responds with the gateway correlation id. The payment completes asynchronously; poll the status endpoints.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.InitiatePaymentRequest  true  "Payment intent"
//
// @Success     202  {object}  handlers.InitiatePaymentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid phone or amount"
// @Failure     409  {object}  handlers.ErrorResponse  "Gateway returned a duplicate checkout id"
// @Failure     502  {object}  handlers.ErrorResponse  "Gateway auth or submission failure"
// @Router      /payments [post]
func (h *Handlers) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.paySvc.Initiate(c.Request.Context(), req.Phone, req.Amount, req.Campaign, req.Template)
	if err != nil {
		h.failInitiate(c, err)
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("checkout_request_id", res.Payment.CheckoutRequestID).
		Float64("amount", res.Payment.Amount).
		Msg("stk push accepted")

	ok(c, http.StatusAccepted, InitiatePaymentResponse{
		CheckoutRequestID:   res.Response.CheckoutRequestID,
		MerchantRequestID:   res.Response.MerchantRequestID,
		ResponseDescription: res.Response.ResponseDescription,
		CustomerMessage:     res.Response.CustomerMessage,
	})
}

// failInitiate maps initiation errors onto the HTTP taxonomy. Validation
// failures are client errors; upstream failures surface as 502 so callers
// know a retry may help later.
func (h *Handlers) failInitiate(c *gin.Context, err error) {
	switch {
	case errors.Is(err, daraja.ErrInvalidPhone):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone must be a valid Kenyan subscriber number")
	case errors.Is(err, daraja.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, "amount must be positive")
	case errors.Is(err, daraja.ErrAmountExceedsLimit):
		fail(c, http.StatusBadRequest, ErrCodeAmountTooLarge, "amount exceeds the configured limit")
	case errors.Is(err, daraja.ErrCredentialsUnavailable), errors.Is(err, daraja.ErrUpstreamAuth):
		fail(c, http.StatusBadGateway, ErrCodeUpstreamAuth, "could not authenticate with the payment gateway")
	case errors.Is(err, daraja.ErrSubmission):
		fail(c, http.StatusBadGateway, ErrCodeSubmitFailed, err.Error())
	case errors.Is(err, services.ErrDuplicateCheckoutID):
		fail(c, http.StatusConflict, ErrCodeDuplicatePush, "gateway returned an already-known checkout id")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
