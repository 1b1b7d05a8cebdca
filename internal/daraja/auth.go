// OAuth token acquisition and caching.
package daraja

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
)

// expiryMargin is subtracted from the gateway's stated validity window so a
// token is never used right at its edge (the gateway clock wins races).
const expiryMargin = 60 * time.Second

// token pairs a bearer credential with its conservative expiry instant.
// A token value is never mutated; refresh replaces the whole struct.
type token struct {
	value     string
	expiresAt time.Time
}

// valid reports whether the token can still be served at instant now.
func (t token) valid(now time.Time) bool {
	return t.value != "" && now.Before(t.expiresAt)
}

// TokenCache caches the short-lived Daraja bearer credential shared by all
// payment submissions in the process.
//
// Acquire returns the cached token while it is inside its validity window and
// performs a credential exchange otherwise. Concurrent callers may race to
// refresh; a redundant exchange is harmless because the stored token is
// replaced atomically under the mutex. The cache is safe for concurrent use.
type TokenCache struct {
	cfg config.DarajaConfig
	hc  *http.Client

	mu  sync.Mutex
	tok token

	// now is a clock seam for tests.
	now func() time.Time
}

// NewTokenCache constructs a TokenCache for the given gateway settings. The
// underlying HTTP client is bounded by cfg.AuthTimeout.
func NewTokenCache(cfg config.DarajaConfig) *TokenCache {
	return &TokenCache{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.AuthTimeout},
		now: time.Now,
	}
}

// Acquire returns a bearer token usable for gateway calls.
//
// It fails with ErrCredentialsUnavailable when the consumer key or secret is
// not configured, and with ErrUpstreamAuth when the exchange call errors,
// times out, or returns an unusable body.
func (tc *TokenCache) Acquire(ctx context.Context) (string, error) {
	if tc.cfg.ConsumerKey == "" || tc.cfg.ConsumerSecret == "" {
		return "", ErrCredentialsUnavailable
	}

	now := tc.now()
	tc.mu.Lock()
	if tc.tok.valid(now) {
		v := tc.tok.value
		tc.mu.Unlock()
		return v, nil
	}
	tc.mu.Unlock()

	// Exchange outside the lock. Two concurrent refreshes are acceptable;
	// whichever finishes last wins the cache slot.
	fresh, err := tc.exchange(ctx)
	if err != nil {
		return "", err
	}

	tc.mu.Lock()
	tc.tok = fresh
	tc.mu.Unlock()
	return fresh.value, nil
}

// exchange performs the client-credentials call against the gateway's OAuth
// endpoint and returns a replacement token with a conservative expiry.
func (tc *TokenCache) exchange(ctx context.Context) (token, error) {
	url := tc.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return token{}, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	req.SetBasicAuth(tc.cfg.ConsumerKey, tc.cfg.ConsumerSecret)

	resp, err := tc.hc.Do(req)
	if err != nil {
		return token{}, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return token{}, fmt.Errorf("%w: unexpected status %d", ErrUpstreamAuth, resp.StatusCode)
	}

	// Daraja serializes expires_in as a string ("3599"); json.Number covers
	// both that and a plain number.
	var body struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return token{}, fmt.Errorf("%w: decode response: %v", ErrUpstreamAuth, err)
	}
	if body.AccessToken == "" {
		return token{}, fmt.Errorf("%w: empty access_token", ErrUpstreamAuth)
	}

	ttlSecs, err := body.ExpiresIn.Int64()
	if err != nil || ttlSecs <= 0 {
		ttlSecs = 3599
	}
	raw := time.Duration(ttlSecs) * time.Second
	ttl := raw - expiryMargin
	if ttl <= 0 {
		// The margin does not fit in a short-lived window; keep half of it
		// so the token is still replaced well before the gateway's edge.
		ttl = raw / 2
	}

	return token{value: body.AccessToken, expiresAt: tc.now().Add(ttl)}, nil
}
