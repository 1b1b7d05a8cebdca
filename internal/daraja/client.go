// STK push request construction and submission.
package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
)

// STKPushRequest is the signed payload Daraja expects for a Lipa na M-Pesa
// online (STK push) submission. Field names follow the wire format.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous acknowledgment returned by the gateway.
// CheckoutRequestID is the correlation identifier later echoed by the
// asynchronous result callback.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Client submits STK push requests to the Daraja gateway. It holds the shared
// token cache and a bounded HTTP client and is safe for concurrent use.
type Client struct {
	cfg    config.DarajaConfig
	tokens *TokenCache
	hc     *http.Client

	// now is a clock seam for tests.
	now func() time.Time
}

// NewClient constructs a Client sharing the given token cache. The submission
// HTTP client is bounded by cfg.StkTimeout.
func NewClient(cfg config.DarajaConfig, tokens *TokenCache) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		hc:     &http.Client{Timeout: cfg.StkTimeout},
		now:    time.Now,
	}
}

// BuildRequest assembles the signed STK push payload for a canonical phone
// and resolved amount. The password embeds the request timestamp and is
// recomputed here on every call. The method performs no I/O.
func (c *Client) BuildRequest(phone string, amount float64, accountRef, desc string) STKPushRequest {
	ts := Timestamp(c.now())
	return STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.FormatFloat(amount, 'f', -1, 64),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   desc,
	}
}

// Submit sends an STK push request to the gateway using a bearer token from
// the shared cache and returns the synchronous acknowledgment.
//
// Token acquisition failures keep their own error class
// (ErrCredentialsUnavailable, ErrUpstreamAuth); everything after that is
// reported as ErrSubmission with gateway detail where available. A failed
// submission leaves no ledger trace; the caller only records a pending
// transaction once a CheckoutRequestID has been returned.
func (c *Client) Submit(ctx context.Context, payload STKPushRequest) (*STKPushResponse, error) {
	bearer, err := c.tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrSubmission, err)
	}

	url := c.cfg.BaseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: gateway status %d: %s", ErrSubmission, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSubmission, err)
	}
	if out.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: response missing CheckoutRequestID", ErrSubmission)
	}
	return &out, nil
}
