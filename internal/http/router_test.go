package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/daraja"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/repo"
)

// fakeStkGateway satisfies services.StkGateway without any network traffic.
// Every Submit hands out a fresh checkout id unless a canned response or
// error is injected.
type fakeStkGateway struct {
	submits int
	resp    *daraja.STKPushResponse
	err     error
	last    daraja.STKPushRequest
}

func (f *fakeStkGateway) BuildRequest(phone string, amount float64, accountRef, desc string) daraja.STKPushRequest {
	return daraja.STKPushRequest{
		BusinessShortCode: "174379",
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strings.TrimSuffix(fmt.Sprintf("%.2f", amount), ".00"),
		PartyA:            phone,
		PartyB:            "174379",
		PhoneNumber:       phone,
		AccountReference:  accountRef,
		TransactionDesc:   desc,
	}
}

func (f *fakeStkGateway) Submit(_ context.Context, payload daraja.STKPushRequest) (*daraja.STKPushResponse, error) {
	f.submits++
	f.last = payload
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	id := fmt.Sprintf("ws_CO_router_%d", f.submits)
	return &daraja.STKPushResponse{
		MerchantRequestID:   fmt.Sprintf("m-%d", f.submits),
		CheckoutRequestID:   id,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func newTestApp(t *testing.T, gw *fakeStkGateway) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		APIBasePath:  "/api/v1",
		AccessWindow: 12 * time.Hour,
		Amount:       config.AmountConfig{Value: 20, Ceiling: 150000},
		RateRPS:      1000,
		RateBurst:    1000,
		OTEL:         config.OTELConfig{ServiceName: "payments-test"},
	}

	r := gin.New()
	RegisterRoutes(r, db, gw, cfg)
	return r, db
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func successCallbackJSON(checkoutID, receipt string) string {
	return fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "m-1",
      "CheckoutRequestID": %q,
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 20.0},
          {"Name": "MpesaReceiptNumber", "Value": %q},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`, checkoutID, receipt)
}

func TestRouter_InitiateRecordsPending(t *testing.T) {
	gw := &fakeStkGateway{}
	r, db := newTestApp(t, gw)

	w := postJSON(r, "/api/v1/payments", `{"phone":"0712345678","amount":20}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("response is missing X-Request-ID")
	}

	var resp struct {
		CheckoutRequestID string `json:"checkout_request_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CheckoutRequestID == "" {
		t.Fatalf("no checkout id in %s", w.Body.String())
	}
	if gw.last.PhoneNumber != "254712345678" {
		t.Fatalf("gateway saw phone %q, want canonical form", gw.last.PhoneNumber)
	}

	var p domain.Payment
	if err := db.Where("checkout_request_id = ?", resp.CheckoutRequestID).First(&p).Error; err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if p.State != domain.StatePending || p.Phone != "254712345678" || p.Amount != 20 {
		t.Fatalf("row = %+v", p)
	}
}

func TestRouter_SuccessCallbackGrantsAccessWindow(t *testing.T) {
	gw := &fakeStkGateway{}
	r, db := newTestApp(t, gw)

	w := postJSON(r, "/api/v1/payments", `{"phone":"0712345678"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("initiate: %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		CheckoutRequestID string `json:"checkout_request_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	before := time.Now()
	cw := postJSON(r, "/api/v1/payments/callback", successCallbackJSON(resp.CheckoutRequestID, "ABC123XYZ9"))
	if cw.Code != http.StatusOK {
		t.Fatalf("callback: %d (%s)", cw.Code, cw.Body.String())
	}
	var ack daraja.Ack
	if err := json.Unmarshal(cw.Body.Bytes(), &ack); err != nil || ack.ResultCode != 0 {
		t.Fatalf("ack = %+v (err %v)", ack, err)
	}

	var p domain.Payment
	if err := db.Where("checkout_request_id = ?", resp.CheckoutRequestID).First(&p).Error; err != nil {
		t.Fatalf("row: %v", err)
	}
	if p.State != domain.StateSucceeded || p.ReceiptNumber != "ABC123XYZ9" {
		t.Fatalf("row = %+v", p)
	}
	if p.ValidUntil == nil {
		t.Fatal("valid_until not set on success")
	}
	lo := before.Add(12 * time.Hour).Add(-time.Minute)
	hi := time.Now().Add(12 * time.Hour).Add(time.Minute)
	if p.ValidUntil.Before(lo) || p.ValidUntil.After(hi) {
		t.Fatalf("valid_until = %v, want about 12h from now", p.ValidUntil)
	}

	// A redelivered callback is absorbed without disturbing the row.
	rw := postJSON(r, "/api/v1/payments/callback", successCallbackJSON(resp.CheckoutRequestID, "ABC123XYZ9"))
	if rw.Code != http.StatusOK {
		t.Fatalf("redelivery: %d", rw.Code)
	}
	var again domain.Payment
	if err := db.Where("checkout_request_id = ?", resp.CheckoutRequestID).First(&again).Error; err != nil {
		t.Fatalf("row after redelivery: %v", err)
	}
	if !again.ValidUntil.Equal(*p.ValidUntil) || again.ReceiptNumber != p.ReceiptNumber {
		t.Fatalf("redelivery mutated the row: %+v vs %+v", again, p)
	}
}

func TestRouter_UnknownCallbackCreatesOrphan(t *testing.T) {
	r, db := newTestApp(t, &fakeStkGateway{})

	w := postJSON(r, "/api/v1/payments/callback", successCallbackJSON("ws_CO_ZZZ999", "ORPHAN0RCP"))
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d (%s)", w.Code, w.Body.String())
	}

	var p domain.Payment
	if err := db.Where("checkout_request_id = ?", "ws_CO_ZZZ999").First(&p).Error; err != nil {
		t.Fatalf("orphan row missing: %v", err)
	}
	if !p.Orphan || !p.State.Terminal() {
		t.Fatalf("row = %+v, want terminal orphan", p)
	}
	if p.Phone != "254712345678" || p.Amount != 20 {
		t.Fatalf("orphan did not preserve callback metadata: %+v", p)
	}
}

func TestRouter_StatusByPhoneNoTransactions(t *testing.T) {
	r, _ := newTestApp(t, &fakeStkGateway{})

	w := get(r, "/api/v1/payments/status/phone?phone=0799999999")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %s)", w.Code, w.Body.String())
	}
	var e struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Code != "no_transactions" {
		t.Fatalf("code = %q, want no_transactions", e.Code)
	}
}

func TestRouter_FallbacksAndHealth(t *testing.T) {
	r, _ := newTestApp(t, &fakeStkGateway{})

	t.Run("health", func(t *testing.T) {
		w := get(r, "/health")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
			t.Fatalf("health: %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		w := get(r, "/api/v1/nope")
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
		if !strings.Contains(w.Body.String(), "not_found") {
			t.Fatalf("body = %s", w.Body.String())
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		w := postJSON(r, "/api/v1/payments/status", `{}`)
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", w.Code)
		}
		if !strings.Contains(w.Body.String(), "method_not_allowed") {
			t.Fatalf("body = %s", w.Body.String())
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		w := get(r, "/metrics")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	})

	t.Run("security headers applied", func(t *testing.T) {
		w := get(r, "/health")
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("X-Content-Type-Options = %q", got)
		}
		if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
			t.Fatalf("Cache-Control = %q", got)
		}
	})
}

func TestRouter_BodyLimitRejectsHugePayload(t *testing.T) {
	r, _ := newTestApp(t, &fakeStkGateway{})

	big := fmt.Sprintf(`{"phone":"0712345678","campaign":%q}`, strings.Repeat("x", 300<<10))
	w := postJSON(r, "/api/v1/payments", big)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an oversized body", w.Code)
	}
}
