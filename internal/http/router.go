// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - One configurable CORS posture instead of per-deployment router forks
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/PeterNgeno/perontips-fliers-backend/internal/config"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/domain"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/http/handlers"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/http/middleware"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/repo"
	"github.com/PeterNgeno/perontips-fliers-backend/internal/services"
)

// ledgerRepoShim adapts the repository free functions to the
// services.LedgerRepo interface expected by the PaymentService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type ledgerRepoShim struct{}

// CreatePending proxies repo.CreatePending.
func (ledgerRepoShim) CreatePending(ctx context.Context, db *gorm.DB, checkoutID, merchantID, phone string, amount float64, campaign, template string) (*domain.Payment, error) {
	return repo.CreatePending(ctx, db, checkoutID, merchantID, phone, amount, campaign, template)
}

// CreateOrphan proxies repo.CreateOrphan.
func (ledgerRepoShim) CreateOrphan(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return repo.CreateOrphan(ctx, db, p)
}

// GetByCheckoutID proxies repo.GetByCheckoutID.
func (ledgerRepoShim) GetByCheckoutID(ctx context.Context, db *gorm.DB, checkoutID string) (*domain.Payment, error) {
	return repo.GetByCheckoutID(ctx, db, checkoutID)
}

// MarkTerminal proxies repo.MarkTerminal.
func (ledgerRepoShim) MarkTerminal(ctx context.Context, db *gorm.DB, checkoutID string, state domain.PaymentState, receipt, detail string, validUntil *time.Time) error {
	return repo.MarkTerminal(ctx, db, checkoutID, state, receipt, detail, validUntil)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with payer-number scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP; the callback route is exempt so gateway
//     redeliveries are never throttled into another retry cycle)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw services.StkGateway, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction; payer numbers travel in query
	// strings here, so the phone scrubbing is load-bearing.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (256 KiB; callback envelopes are small)
	r.Use(limitBody(256 << 10))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	limited := rl.Handler()

	// 8) CORS posture (allow all if none configured; web clients poll status
	// from several campaign sites, which is why the allowlist is env-driven)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true, // payment statuses must never be cached by proxies
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/gateway
	paySvc := services.NewPaymentService(db, ledgerRepoShim{}, gw, cfg.Amount, cfg.AccessWindow)
	statusSvc := services.NewStatusService(db)
	h := handlers.New(paySvc, statusSvc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Initiation
		api.POST("/payments", limited, h.InitiatePayment)

		// Gateway callback: never rate limited, never gzip-compressed.
		api.POST("/payments/callback", h.GatewayCallback)

		// Status polling and listing (gzip pays off on long listings)
		zipped := gzip.Gzip(gzip.DefaultCompression)
		api.GET("/payments/status", limited, zipped, h.PaymentStatusByID)
		api.GET("/payments/status/phone", limited, zipped, h.PaymentStatusByPhone)
		api.GET("/payments", limited, zipped, h.ListPayments)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
