package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/services"
)

// ---------- service stubs ----------

// stubPaySvc is a flexible PaymentService stub; unset hooks return benign
// defaults so each test only wires what it asserts on.
type stubPaySvc struct {
	initiate  func(ctx context.Context, phone string, amount float64, campaign, template string) (*services.InitiateResult, error)
	reconcile func(ctx context.Context, cb daraja.StkCallback) error
}

func (s stubPaySvc) Initiate(ctx context.Context, phone string, amount float64, campaign, template string) (*services.InitiateResult, error) {
	if s.initiate != nil {
		return s.initiate(ctx, phone, amount, campaign, template)
	}
	return &services.InitiateResult{
		Payment:  &domain.Payment{CheckoutRequestID: "ws_CO_1", Phone: "254712345678", Amount: 20, State: domain.StatePending},
		Response: &daraja.STKPushResponse{CheckoutRequestID: "ws_CO_1", MerchantRequestID: "m-1", ResponseDescription: "Success", CustomerMessage: "Check your phone"},
	}, nil
}

func (s stubPaySvc) Reconcile(ctx context.Context, cb daraja.StkCallback) error {
	if s.reconcile != nil {
		return s.reconcile(ctx, cb)
	}
	return nil
}

// stubStatusSvc is a flexible StatusService stub. The default stats hook
// errors so the ETag pre-check is skipped unless a test wires it.
type stubStatusSvc struct {
	byID     func(ctx context.Context, id string) (*domain.Payment, error)
	latest   func(ctx context.Context, phone string) (*domain.Payment, error)
	listPage func(ctx context.Context, phone string, page, pageSize int) ([]domain.Payment, int64, error)
	stats    func(ctx context.Context, phone string) (int64, *time.Time, error)
}

func (s stubStatusSvc) ByCheckoutID(ctx context.Context, id string) (*domain.Payment, error) {
	if s.byID != nil {
		return s.byID(ctx, id)
	}
	return nil, services.ErrPaymentNotFound
}

func (s stubStatusSvc) LatestByPhone(ctx context.Context, phone string) (*domain.Payment, error) {
	if s.latest != nil {
		return s.latest(ctx, phone)
	}
	return nil, services.ErrNoTransactions
}

func (s stubStatusSvc) ListPage(ctx context.Context, phone string, page, pageSize int) ([]domain.Payment, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, phone, page, pageSize)
	}
	return nil, 0, nil
}

func (s stubStatusSvc) Stats(ctx context.Context, phone string) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx, phone)
	}
	return 0, nil, errors.New("stats unavailable")
}

// ---------- harness ----------

func newPaymentRouter(pay PaymentService, status StatusService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(pay, status)
	r := gin.New()
	r.POST("/payments", h.InitiatePayment)
	r.POST("/payments/callback", h.GatewayCallback)
	r.GET("/payments/status", h.PaymentStatusByID)
	r.GET("/payments/status/phone", h.PaymentStatusByPhone)
	r.GET("/payments", h.ListPayments)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

// ---------- tests ----------

func TestInitiatePayment_Success(t *testing.T) {
	var gotPhone, gotCampaign string
	var gotAmount float64
	r := newPaymentRouter(stubPaySvc{
		initiate: func(_ context.Context, phone string, amount float64, campaign, _ string) (*services.InitiateResult, error) {
			gotPhone, gotAmount, gotCampaign = phone, amount, campaign
			return &services.InitiateResult{
				Payment: &domain.Payment{CheckoutRequestID: "ws_CO_42", Phone: "254712345678", Amount: amount},
				Response: &daraja.STKPushResponse{
					CheckoutRequestID:   "ws_CO_42",
					MerchantRequestID:   "29115-34620561-1",
					ResponseDescription: "Success. Request accepted for processing",
					CustomerMessage:     "Success. Request accepted for processing",
				},
			}, nil
		},
	}, stubStatusSvc{})

	w := doJSON(t, r, http.MethodPost, "/payments",
		`{"phone":"0712345678","amount":20,"campaign":"march derby"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	var resp InitiatePaymentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CheckoutRequestID != "ws_CO_42" || resp.MerchantRequestID != "29115-34620561-1" {
		t.Fatalf("unexpected response ids: %+v", resp)
	}
	if gotPhone != "0712345678" || gotAmount != 20 || gotCampaign != "march derby" {
		t.Fatalf("service received phone=%q amount=%v campaign=%q", gotPhone, gotAmount, gotCampaign)
	}
}

func TestInitiatePayment_InvalidJSON(t *testing.T) {
	r := newPaymentRouter(stubPaySvc{}, stubStatusSvc{})

	w := doJSON(t, r, http.MethodPost, "/payments", `{"phone":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if e := decodeErr(t, w); e.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q, want %q", e.Code, ErrCodeBadRequest)
	}
}

func TestInitiatePayment_MissingPhone(t *testing.T) {
	r := newPaymentRouter(stubPaySvc{
		initiate: func(context.Context, string, float64, string, string) (*services.InitiateResult, error) {
			t.Fatal("service must not be called for a payload failing binding")
			return nil, nil
		},
	}, stubStatusSvc{})

	w := doJSON(t, r, http.MethodPost, "/payments", `{"amount":20}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestInitiatePayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid phone", daraja.ErrInvalidPhone, http.StatusBadRequest, ErrCodeInvalidPhone},
		{"invalid amount", daraja.ErrInvalidAmount, http.StatusBadRequest, ErrCodeInvalidAmount},
		{"amount too large", daraja.ErrAmountExceedsLimit, http.StatusBadRequest, ErrCodeAmountTooLarge},
		{"credentials unavailable", daraja.ErrCredentialsUnavailable, http.StatusBadGateway, ErrCodeUpstreamAuth},
		{"upstream auth", daraja.ErrUpstreamAuth, http.StatusBadGateway, ErrCodeUpstreamAuth},
		{"submission failed", daraja.ErrSubmission, http.StatusBadGateway, ErrCodeSubmitFailed},
		{"duplicate checkout id", services.ErrDuplicateCheckoutID, http.StatusConflict, ErrCodeDuplicatePush},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newPaymentRouter(stubPaySvc{
				initiate: func(context.Context, string, float64, string, string) (*services.InitiateResult, error) {
					return nil, tc.err
				},
			}, stubStatusSvc{})

			w := doJSON(t, r, http.MethodPost, "/payments", `{"phone":"0712345678"}`)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if e := decodeErr(t, w); e.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", e.Code, tc.wantCode)
			}
		})
	}
}

func TestInitiatePayment_WrappedErrorsStillMap(t *testing.T) {
	wrapped := fmt.Errorf("%w: gateway said no", daraja.ErrSubmission)
	r := newPaymentRouter(stubPaySvc{
		initiate: func(context.Context, string, float64, string, string) (*services.InitiateResult, error) {
			return nil, wrapped
		},
	}, stubStatusSvc{})

	w := doJSON(t, r, http.MethodPost, "/payments", `{"phone":"0712345678"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	e := decodeErr(t, w)
	if e.Code != ErrCodeSubmitFailed {
		t.Fatalf("code = %q, want %q", e.Code, ErrCodeSubmitFailed)
	}
	if !strings.Contains(e.Message, "gateway said no") {
		t.Fatalf("message %q should carry the submission detail", e.Message)
	}
}
