package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"tremolo/internal/middleware"
	"tremolo/internal/moderation"
)

// Session issuance belongs to the upstream account system; this service
// only resolves and revokes tokens.

// HandleMe returns the resolved caller and their active staff roles.
// GET /auth/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUser(r.Context())
	if userID == "" {
		writeError(w, r, moderation.NewError(moderation.KindUnauthorized, "authentication required"))
		return
	}

	activeRoles, err := h.roles.ActiveRoles(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve roles")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if activeRoles == nil {
		activeRoles = []moderation.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"roles":   activeRoles,
	})
}

// HandleLogout revokes the presented session token and clears the cookie.
// POST /auth/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUser(r.Context())
	if userID == "" {
		writeError(w, r, moderation.NewError(moderation.KindUnauthorized, "authentication required"))
		return
	}

	if token := sessionTokenFromRequest(r); token != "" {
		if err := h.sessions.DeleteSession(r.Context(), token); err != nil {
			log.Error().Err(err).Msg("Failed to delete session")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleLogoutAll revokes every session belonging to the caller.
// POST /auth/logout-all
func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.AuthenticatedUser(r.Context())
	if userID == "" {
		writeError(w, r, moderation.NewError(moderation.KindUnauthorized, "authentication required"))
		return
	}

	if err := h.sessions.DeleteAllSessionsForUser(r.Context(), userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to delete sessions")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func sessionTokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	if c, err := r.Cookie("session_token"); err == nil {
		return c.Value
	}
	return ""
}
