package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tremolo/internal/middleware"
	"tremolo/internal/moderation"
)

// HandleListNotifications returns the caller's notifications, newest first,
// with cursor pagination.
// GET /api/notifications
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		http.Error(w, "notifications unavailable", http.StatusServiceUnavailable)
		return
	}
	userID := middleware.AuthenticatedUser(r.Context())
	if userID == "" {
		writeError(w, r, moderation.NewError(moderation.KindUnauthorized, "authentication required"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, r, moderation.NewError(moderation.KindValidation, "limit must be 1-100"))
			return
		}
		limit = n
	}

	notifications, next, err := h.notifications.List(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list notifications")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []*moderation.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"next_cursor":   next,
		"unread_count":  h.notifications.UnreadCount(r.Context(), userID),
	})
}

// HandleMarkNotificationsRead marks all of the caller's notifications read.
// POST /api/notifications/read
func (h *Handler) HandleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		http.Error(w, "notifications unavailable", http.StatusServiceUnavailable)
		return
	}
	userID := middleware.AuthenticatedUser(r.Context())
	if userID == "" {
		writeError(w, r, moderation.NewError(moderation.KindUnauthorized, "authentication required"))
		return
	}

	if err := h.notifications.MarkAllRead(r.Context(), userID, time.Now()); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to mark notifications read")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
