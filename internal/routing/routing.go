package routing

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tremolo/internal/handlers"
	"tremolo/internal/middleware"
	"tremolo/internal/moderation"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers *handlers.Handler
	Identity moderation.IdentityProvider
	Logger   zerolog.Logger

	// SecureCookies sets the Secure flag on the CSRF cookie
	SecureCookies bool
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Session routes
	mux.HandleFunc("GET /auth/me", h.HandleMe)
	mux.HandleFunc("POST /auth/logout", h.HandleLogout)
	mux.HandleFunc("POST /auth/logout-all", h.HandleLogoutAll)

	// Report intake and triage queue
	mux.HandleFunc("POST /api/reports", h.HandleSubmitReport)
	mux.HandleFunc("GET /api/reports/{id}", h.HandleGetReport)
	mux.HandleFunc("POST /api/flags", h.HandleFlagContent)
	mux.HandleFunc("GET /api/queue", h.HandleQueue)

	// Moderation actions and reversal
	mux.HandleFunc("POST /api/actions", h.HandleTakeAction)
	mux.HandleFunc("GET /api/actions/{id}", h.HandleGetAction)
	mux.HandleFunc("POST /api/actions/{id}/revoke", h.HandleRevokeAction)
	mux.HandleFunc("POST /api/actions/{id}/reapply", h.HandleReapplyAction)

	// Reversal integrity verification
	mux.HandleFunc("GET /api/actions/{id}/immutability", h.HandleVerifyImmutability)
	mux.HandleFunc("POST /api/actions/{id}/tamper-probe", h.HandleTamperProbe)

	// Per-user moderation state
	mux.HandleFunc("POST /api/users/{id}/lift-suspension", h.HandleLiftSuspension)
	mux.HandleFunc("POST /api/users/{id}/remove-ban", h.HandleRemoveBan)
	mux.HandleFunc("GET /api/users/{id}/restrictions", h.HandleUserRestrictions)
	mux.HandleFunc("DELETE /api/users/{id}/restrictions/{type}", h.HandleRemoveRestriction)
	mux.HandleFunc("GET /api/users/{id}/history", h.HandleUserHistory)
	mux.HandleFunc("GET /api/users/{id}/capabilities/{capability}", h.HandleCapability)

	// Derived metrics
	mux.HandleFunc("GET /api/stats/sla", h.HandleSLACompliance)
	mux.HandleFunc("GET /api/stats/reversal-rates", h.HandleReversalRates)
	mux.HandleFunc("GET /api/stats/time-to-reversal", h.HandleTimeToReversal)
	mux.HandleFunc("GET /api/stats/reversal-patterns", h.HandleReversalPatterns)
	mux.HandleFunc("GET /api/stats/summary", h.HandleStatsSummary)

	// Security audit surface
	mux.HandleFunc("GET /api/audit-log", h.HandleAuditLog)
	mux.HandleFunc("GET /api/security/suspicious", h.HandleSuspiciousActivity)

	// In-app notifications
	mux.HandleFunc("GET /api/notifications", h.HandleListNotifications)
	mux.HandleFunc("POST /api/notifications/read", h.HandleMarkNotificationsRead)

	// Operational endpoints
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware in order (outermost first, innermost last)
	var handler http.Handler = mux

	// 1. Limit request body size (innermost - runs first on request)
	handler = middleware.LimitBodyMiddleware(handler)

	// 2. Resolve the session token into the request context
	handler = middleware.AuthMiddleware(cfg.Identity)(handler)

	// 3. CSRF protection for cookie-authenticated writes
	csrfConfig := middleware.DefaultCSRFConfig()
	csrfConfig.SecureCookie = cfg.SecureCookies
	handler = middleware.CSRFMiddleware(csrfConfig)(handler)

	// 4. Apply rate limiting
	rateLimitConfig := middleware.NewDefaultRateLimitConfig()
	handler = middleware.RateLimitMiddleware(rateLimitConfig)(handler)

	// 5. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 6. Apply logging middleware
	handler = middleware.LoggingMiddleware(cfg.Logger)(handler)

	// 7. Server spans (outermost - wraps everything), so engine spans
	// started inside handlers nest under the request span
	handler = otelhttp.NewHandler(handler, "tremolo.http")

	return handler
}
