package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tremolo/internal/moderation"
)

// HandleAuditLog lists security events newest-first with cursor pagination.
// Admin only.
// GET /api/audit-log
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, r, moderation.NewError(moderation.KindValidation, "limit must be 1-200"))
			return
		}
		limit = n
	}

	events, next, err := h.service.AuditLog(r.Context(), actor(r), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*moderation.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":      events,
		"next_cursor": next,
	})
}

// HandleSuspiciousActivity scans recent actions for reversal clusters and
// action bursts. Admin only.
// GET /api/security/suspicious
func (h *Handler) HandleSuspiciousActivity(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.SuspiciousActivity(r.Context(), actor(r), parseWindow(r, 24*time.Hour))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if found == nil {
		found = []moderation.SuspiciousActor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suspicious": found})
}
