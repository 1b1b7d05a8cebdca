// Status and listing HTTP handlers.
//
// This file exposes the read-side endpoints that callers poll because they
// cannot receive the gateway callback themselves:
//   - GET /payments/status         (?checkout_request_id=...)
//   - GET /payments/status/phone   (?phone=..., legacy: latest record wins)
//   - GET /payments                (listing, optional phone filter, paginated)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/services"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/utils"
)

//
// DTOs
//

// PaymentStatus is the projection returned by the status endpoints.
type PaymentStatus struct {
	CheckoutRequestID string     `json:"checkout_request_id"`
	State             string     `json:"state"`
	Phone             string     `json:"phone"`
	Amount            float64    `json:"amount"`
	Campaign          string     `json:"campaign,omitempty"`
	Template          string     `json:"template,omitempty"`
	ReceiptNumber     string     `json:"receipt_number,omitempty"`
	ResultDetail      string     `json:"result_detail,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPaymentsResponse wraps a page of payments and pagination information.
type ListPaymentsResponse struct {
	Payments   []domain.Payment `json:"payments"`
	Pagination Pagination       `json:"pagination"`
}

// projectStatus maps a ledger row onto the public status shape.
func projectStatus(p *domain.Payment) PaymentStatus {
	return PaymentStatus{
		CheckoutRequestID: p.CheckoutRequestID,
		State:             string(p.State),
		Phone:             p.Phone,
		Amount:            p.Amount,
		Campaign:          p.Campaign,
		Template:          p.Template,
		ReceiptNumber:     p.ReceiptNumber,
		ResultDetail:      p.ResultDetail,
		ValidUntil:        p.ValidUntil,
		CreatedAt:         p.CreatedAt,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// PaymentStatusByID godoc
// @ID          paymentStatusByID
// @Summary     Payment status by checkout request id
// @Description Returns the projected state of a payment identified by the gateway correlation id.
// @Tags        Status
// @Produce     json
//
// @Param       checkout_request_id  query  string  true  "Gateway checkout request id"
//
// @Success     200  {object}  handlers.PaymentStatus
// @Failure     400  {object}  handlers.ErrorResponse  "Missing id"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown id"
// @Router      /payments/status [get]
func (h *Handlers) PaymentStatusByID(c *gin.Context) {
	id := strings.TrimSpace(c.Query("checkout_request_id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "checkout_request_id is required")
		return
	}

	p, err := h.statusSvc.ByCheckoutID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, projectStatus(p))
}

// PaymentStatusByPhone godoc
// @ID          paymentStatusByPhone
// @Summary     Latest payment status by phone (legacy)
// @Description Returns the most recently created payment for a phone number. Kept for clients predating checkout-id polling.
// @Tags        Status
// @Produce     json
//
// @Param       phone  query  string  true  "Payer phone in any accepted shape"
//
// @Success     200  {object}  handlers.PaymentStatus
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid phone"
// @Failure     404  {object}  handlers.ErrorResponse  "No transactions for phone"
// @Router      /payments/status/phone [get]
func (h *Handlers) PaymentStatusByPhone(c *gin.Context) {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone is required")
		return
	}

	p, err := h.statusSvc.LatestByPhone(c.Request.Context(), phone)
	if err != nil {
		switch {
		case errors.Is(err, daraja.ErrInvalidPhone):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone must be a valid Kenyan subscriber number")
		case errors.Is(err, services.ErrNoTransactions):
			fail(c, http.StatusNotFound, ErrCodeNoTransactions, "no transactions for phone")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, projectStatus(p))
}

// ListPayments godoc
// @ID          listPayments
// @Summary     List payments (paginated)
// @Description Returns payments oldest first, optionally filtered by phone. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Status
// @Produce     json
//
// @Param       phone          query   string  false "Filter by payer phone"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListPaymentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid phone"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /payments [get]
func (h *Handlers) ListPayments(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	rawPhone := strings.TrimSpace(c.Query("phone"))
	phone := ""
	if rawPhone != "" {
		var err error
		if phone, err = daraja.NormalizePhone(rawPhone); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone must be a valid Kenyan subscriber number")
			return
		}
	}

	// ETag pre-check (best effort; on a stats error the full listing below
	// still answers the request).
	if count, maxTS, err := h.statusSvc.Stats(ctx, phone); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"payments:%s:%d:%d"`, phone, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.statusSvc.ListPage(ctx, phone, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListPaymentsResponse{
		Payments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
