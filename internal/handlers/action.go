package handlers

import (
	"net/http"
	"strconv"

	"tremolo/internal/moderation"
	"tremolo/internal/tracing"
)

// ActionRequest is the take-action payload.
type ActionRequest struct {
	TargetUserID    string `json:"target_user_id"`
	ActionType      string `json:"action_type"`
	TargetType      string `json:"target_type"`
	TargetID        string `json:"target_id"`
	Reason          string `json:"reason"`
	DurationDays    *int   `json:"duration_days"`
	RelatedReportID string `json:"related_report_id"`
	InternalNotes   string `json:"internal_notes"`
	RestrictionType string `json:"restriction_type"`
	ResolutionNotes string `json:"resolution_notes"`
}

// HandleTakeAction executes a moderation decision.
// POST /api/actions
func (h *Handler) HandleTakeAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := decodeRequest(r, &req, func() error {
		req.TargetUserID = r.FormValue("target_user_id")
		req.ActionType = r.FormValue("action_type")
		req.TargetType = r.FormValue("target_type")
		req.TargetID = r.FormValue("target_id")
		req.Reason = r.FormValue("reason")
		req.RelatedReportID = r.FormValue("related_report_id")
		req.InternalNotes = r.FormValue("internal_notes")
		req.RestrictionType = r.FormValue("restriction_type")
		req.ResolutionNotes = r.FormValue("resolution_notes")
		if raw := r.FormValue("duration_days"); raw != "" {
			days, err := strconv.Atoi(raw)
			if err != nil {
				return err
			}
			req.DurationDays = &days
		}
		return nil
	}); err != nil {
		writeError(w, r, moderation.NewError(moderation.KindValidation, "invalid request body"))
		return
	}

	who := actor(r)
	ctx, span := tracing.ModerationSpan(r.Context(), "take_action", who.ID)
	defer span.End()

	result, err := h.service.TakeModerationAction(ctx, who, moderation.ActionInput{
		TargetUserID:    req.TargetUserID,
		ActionType:      moderation.ActionType(req.ActionType),
		TargetType:      moderation.ReportType(req.TargetType),
		TargetID:        req.TargetID,
		Reason:          req.Reason,
		DurationDays:    req.DurationDays,
		RelatedReportID: req.RelatedReportID,
		InternalNotes:   req.InternalNotes,
		RestrictionType: moderation.RestrictionType(req.RestrictionType),
		ResolutionNotes: req.ResolutionNotes,
	})
	if err != nil {
		tracing.EndWithError(span, err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleGetAction returns one action with its state change history.
// GET /api/actions/{id}
func (h *Handler) HandleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := h.service.GetAction(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// reasonRequest carries the mandatory reason for reversal operations.
type reasonRequest struct {
	Reason string `json:"reason"`
}

func decodeReason(r *http.Request) (string, error) {
	var req reasonRequest
	err := decodeRequest(r, &req, func() error {
		req.Reason = r.FormValue("reason")
		return nil
	})
	if err != nil {
		return "", moderation.NewError(moderation.KindValidation, "invalid request body")
	}
	return req.Reason, nil
}

// HandleRevokeAction reverses an action by id.
// POST /api/actions/{id}/revoke
func (h *Handler) HandleRevokeAction(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	who := actor(r)
	ctx, span := tracing.ModerationSpan(r.Context(), "revoke_action", who.ID)
	defer span.End()

	action, err := h.service.RevokeAction(ctx, who, r.PathValue("id"), reason)
	if err != nil {
		tracing.EndWithError(span, err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// HandleReapplyAction re-executes a previously reversed action.
// POST /api/actions/{id}/reapply
func (h *Handler) HandleReapplyAction(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	action, err := h.service.ReapplyAction(r.Context(), actor(r), r.PathValue("id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// HandleLiftSuspension reverses the active suspension on a user.
// POST /api/users/{id}/lift-suspension
func (h *Handler) HandleLiftSuspension(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	action, err := h.service.LiftSuspension(r.Context(), actor(r), r.PathValue("id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// HandleRemoveBan reverses a permanent suspension. Admin only.
// POST /api/users/{id}/remove-ban
func (h *Handler) HandleRemoveBan(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	action, err := h.service.RemoveBan(r.Context(), actor(r), r.PathValue("id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// HandleRemoveRestriction deactivates an active restriction, reversing its
// originating action when one is linked.
// DELETE /api/users/{id}/restrictions/{type}
func (h *Handler) HandleRemoveRestriction(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	action, err := h.service.RemoveUserRestriction(r.Context(), actor(r),
		r.PathValue("id"), moderation.RestrictionType(r.PathValue("type")), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if action == nil {
		// The restriction was deactivated without a linked action to reverse.
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// HandleUserRestrictions lists the active restrictions on a user.
// GET /api/users/{id}/restrictions
func (h *Handler) HandleUserRestrictions(w http.ResponseWriter, r *http.Request) {
	restrictions, err := h.service.UserRestrictions(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if restrictions == nil {
		restrictions = []*moderation.Restriction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"restrictions": restrictions})
}

// HandleUserHistory lists every action taken against a user, newest first.
// GET /api/users/{id}/history
func (h *Handler) HandleUserHistory(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.UserModerationHistory(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []*moderation.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// HandleCapability reports whether a user currently holds a capability.
// Verdicts are cached with a short TTL; the engine invalidates the cache
// whenever a user's standing changes.
// GET /api/users/{id}/capabilities/{capability}
func (h *Handler) HandleCapability(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	capability := moderation.Capability(r.PathValue("capability"))

	allowed, cached := false, false
	if h.capabilities != nil {
		allowed, cached = h.capabilities.Allowed(userID, capability)
	}
	if !cached {
		var err error
		allowed, err = h.service.CanUserPerformAction(r.Context(), userID, capability)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if h.capabilities != nil {
			h.capabilities.Store(userID, capability, allowed)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"capability": string(capability),
		"allowed":    allowed,
	})
}
