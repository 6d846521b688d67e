// Package handlers exposes the moderation engine as a JSON HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tremolo/internal/capcache"
	"tremolo/internal/database/boltstore"
	"tremolo/internal/database/sqlitestore"
	"tremolo/internal/middleware"
	"tremolo/internal/moderation"
	"tremolo/internal/roles"
)

// Config holds handler configuration options
type Config struct {
	// SecureCookies sets the Secure flag on session cookies
	// Should be true in production (HTTPS), false for local development (HTTP)
	SecureCookies bool

	// PublicURL is the public-facing URL for the server (e.g., https://tremolo.fm)
	PublicURL string
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	service  *moderation.Service
	roles    *roles.Service
	sessions *boltstore.SessionStore
	config   Config

	// Notification dependencies (optional)
	notifications *sqlitestore.NotificationStore

	// Capability verdict cache (optional)
	capabilities *capcache.Cache
}

// NewHandler creates a new Handler with all required dependencies.
// This constructor pattern ensures the Handler is always fully initialized.
func NewHandler(
	service *moderation.Service,
	roleService *roles.Service,
	sessions *boltstore.SessionStore,
	config Config,
) *Handler {
	return &Handler{
		service:  service,
		roles:    roleService,
		sessions: sessions,
		config:   config,
	}
}

// SetNotifications configures the handler with the notification store
func (h *Handler) SetNotifications(store *sqlitestore.NotificationStore) {
	h.notifications = store
}

// SetCapabilityCache configures the capability verdict cache. The same cache
// must be wired into the engine so moderation changes invalidate it.
func (h *Handler) SetCapabilityCache(cache *capcache.Cache) {
	h.capabilities = cache
}

// actor resolves the engine actor from the authenticated request context.
// An anonymous request yields an empty actor; the engine rejects it.
func actor(r *http.Request) moderation.Actor {
	return moderation.Actor{ID: middleware.AuthenticatedUser(r.Context())}
}

// isJSONRequest checks if the request Content-Type is JSON
func isJSONRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.Contains(contentType, "application/json")
}

// decodeRequest decodes either JSON or form data into the target based on
// Content-Type. The parseForm function is called when the request is
// form-encoded (not JSON).
func decodeRequest(r *http.Request, target interface{}, parseForm func() error) error {
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(target); err != nil {
			return err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return err
		}
		if err := parseForm(); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// writeError maps an engine error to its HTTP status and writes the JSON
// error envelope. Unknown errors are reported as internal without leaking
// their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := moderation.KindOf(err)
	status := statusForKind(kind)

	detail := errorDetail{Code: string(kind)}
	if kind != "" {
		detail.Message = messageOf(err)
		detail.Context = moderation.ContextOf(err)
	} else {
		detail.Code = "INTERNAL_ERROR"
		detail.Message = "internal server error"
	}

	if status >= 500 {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func statusForKind(kind moderation.Kind) int {
	switch kind {
	case moderation.KindValidation, moderation.KindInvalidAction:
		return http.StatusBadRequest
	case moderation.KindUnauthorized:
		return http.StatusUnauthorized
	case moderation.KindInsufficientPermissions:
		return http.StatusForbidden
	case moderation.KindNotFound:
		return http.StatusNotFound
	case moderation.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// messageOf returns the engine error message without the kind prefix that
// Error() prepends.
func messageOf(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx != -1 {
		return msg[idx+2:]
	}
	return msg
}

// parseWindow reads a duration query parameter, defaulting when absent or
// malformed. Windows are capped at 90 days to bound the stats scans.
func parseWindow(r *http.Request, def time.Duration) time.Duration {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return def
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return def
	}
	if max := 90 * 24 * time.Hour; window > max {
		return max
	}
	return window
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
