package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type contextKey string

const cspNonceKey contextKey = "csp-nonce"

// generateNonce returns a fresh base64 nonce for the CSP header.
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSPNonceFromContext returns the CSP nonce for the current request, or an
// empty string if none is set.
func CSPNonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(cspNonceKey).(string)
	return nonce
}

// SecurityHeadersMiddleware sets standard security headers on every
// response and makes a per-request CSP nonce available in the context.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := generateNonce()
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-eval' 'nonce-"+nonce+"'; frame-ancestors 'none'")

		ctx := context.WithValue(r.Context(), cspNonceKey, nonce)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// visitor tracks request counts for one client within the current window.
type visitor struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// RateLimiter is a fixed-window per-IP rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	cleanup  time.Duration
}

// NewRateLimiter creates a rate limiter allowing rate requests per window.
// Stale visitor entries are dropped after the cleanup interval.
func NewRateLimiter(rate int, window, cleanup time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		cleanup:  cleanup,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the client identified by ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok || now.Sub(v.windowStart) > rl.window {
		rl.visitors[ip] = &visitor{count: 1, windowStart: now, lastSeen: now}
		return true
	}

	v.lastSeen = now
	if v.count >= rl.rate {
		return false
	}
	v.count++
	return true
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.cleanup)
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitConfig groups the limiters applied to different route classes.
type RateLimitConfig struct {
	AuthLimiter   *RateLimiter
	APILimiter    *RateLimiter
	GlobalLimiter *RateLimiter
}

// NewDefaultRateLimitConfig returns production limits: tight on auth
// endpoints, looser on the API, and a broad global ceiling.
func NewDefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		AuthLimiter:   NewRateLimiter(10, time.Minute, 5*time.Minute),
		APILimiter:    NewRateLimiter(120, time.Minute, 5*time.Minute),
		GlobalLimiter: NewRateLimiter(300, time.Minute, 5*time.Minute),
	}
}

// RateLimitMiddleware applies per-IP rate limiting, selecting the limiter
// by route class.
func RateLimitMiddleware(config *RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)

			var limiter *RateLimiter
			switch {
			case strings.HasPrefix(r.URL.Path, "/auth/") || r.URL.Path == "/login":
				limiter = config.AuthLimiter
			case strings.HasPrefix(r.URL.Path, "/api/"):
				limiter = config.APILimiter
			default:
				limiter = config.GlobalLimiter
			}

			if !limiter.Allow(ip) {
				log.Warn().
					Str("client_ip", ip).
					Str("path", r.URL.Path).
					Msg("request rate limited")
				w.Header().Set("Retry-After", "60")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// maxBodyBytes caps request bodies at 1 MiB. Moderation payloads are small.
const maxBodyBytes = 1 << 20

// LimitBodyMiddleware caps the readable request body size.
func LimitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
