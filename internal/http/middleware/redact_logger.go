// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, a structured HTTP logger that scrubs
// payer identifiers from request metadata before emitting logs. Subscriber
// numbers (MSISDNs) appear in the query string of the status endpoints and in
// almost every request body this service handles, so the access log must never
// echo them back verbatim.
//
// Design goals:
//   - Default-safe: never logs request or response bodies
//   - Redacts MSISDNs, mobile-money receipt numbers, and UUIDs
//   - Masks sensitive headers (Authorization, Cookie, Set-Cookie, plus custom)
//   - Produces structured JSON logs via zerolog
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that logs HTTP requests with
// sensitive values scrubbed.
//
// Logs method, route path, query string, status, response size, latency, and
// request headers, with regex-based substitution applied to:
//
//   - UUID-like identifiers (redacted first so the phone pattern cannot match
//     a UUID's digit runs)
//   - Subscriber numbers in local (07XXXXXXXX) or international
//     (2547XXXXXXXX, with or without a leading +) form
//   - Mobile-money receipt numbers (10-character uppercase alphanumerics)
//
// Log level is INFO by default, WARN for 4xx, ERROR for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	// Kenyan MSISDN shapes accepted by the API: 2547XXXXXXXX / +2547XXXXXXXX /
	// 07XXXXXXXX / 7XXXXXXXX, with optional separators.
	msisdnRE := regexp.MustCompile(`\+?\b(?:254|0)?[17]\d{2}[ .-]?\d{3}[ .-]?\d{3}\b`)
	// Gateway receipt numbers, e.g. "NLJ7RT61SV".
	receiptRE := regexp.MustCompile(`\b[A-Z][A-Z0-9]{9}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := s
		// Order matters: UUID → phone → receipt (phone is the loosest).
		out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
		out = msisdnRE.ReplaceAllString(out, "[REDACTED:phone]")
		out = receiptRE.ReplaceAllString(out, "[REDACTED:receipt]")
		return out
	}

	// Header mask set (case-insensitive).
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			keyLower := strings.ToLower(k)
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[keyLower]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(val)
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", size).
			Dur("latency", latency).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
