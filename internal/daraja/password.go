// STK push password and timestamp computation, plus the amount policy.
package daraja

import (
	"encoding/base64"
	"time"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
)

// timestampLayout is the fixed numeric format Daraja requires: YYYYMMDDHHmmss.
const timestampLayout = "20060102150405"

// Timestamp formats t at second granularity in the gateway's numeric layout.
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Password computes the Lipa na M-Pesa online password for a request issued
// at the given timestamp: base64(shortcode + passkey + timestamp).
//
// The value embeds the timestamp and must be recomputed for every request;
// it is never cached.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// ResolveAmount applies the configured amount policy to a caller-requested
// amount and returns the amount to charge.
//
// In fixed mode the caller's value is ignored and the configured amount is
// always charged. In bounded mode a zero request falls back to the configured
// default, negative requests fail with ErrInvalidAmount, and requests above
// the ceiling fail with ErrAmountExceedsLimit.
func ResolveAmount(policy config.AmountConfig, requested float64) (float64, error) {
	if policy.Fixed {
		return policy.Value, nil
	}
	if requested == 0 {
		return policy.Value, nil
	}
	if requested < 0 {
		return 0, ErrInvalidAmount
	}
	if requested > policy.Ceiling {
		return 0, ErrAmountExceedsLimit
	}
	return requested, nil
}
