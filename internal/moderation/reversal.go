package moderation

import (
	"context"

	"github.com/rs/zerolog/log"

	"tremolo/internal/metrics"
)

// RevokeAction reverses an action by id: authorization, already-reversed
// rejection, type-specific compensation, the revocation update, a reversed
// state-change entry, a reversal notification threading the original
// notification id, a security event, and cache invalidation. Reason is
// mandatory. Self-reversals are permitted and logged distinctly.
func (s *Service) RevokeAction(ctx context.Context, actor Actor, actionID, reason string) (*Action, error) {
	if err := ValidateUUID("action_id", actionID); err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	handler := actionHandlers[action.ActionType]
	if handler == nil {
		return nil, NewError(KindInvalidAction, "unknown action type").With("action_type", string(action.ActionType))
	}

	if handler.adminOnly {
		if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
			return nil, err
		}
	} else {
		if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
			return nil, err
		}
	}
	if err := s.guard.VerifyNotAdminTarget(ctx, actor, action.TargetUserID); err != nil {
		return nil, err
	}

	return s.reverse(ctx, actor, action, handler, reason)
}

// LiftSuspension reverses the active suspension on a user. Moderator or
// admin, subject to admin-target protection.
func (s *Service) LiftSuspension(ctx context.Context, actor Actor, userID, reason string) (*Action, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("user_id", userID); err != nil {
		return nil, err
	}
	if err := s.guard.VerifyNotAdminTarget(ctx, actor, userID); err != nil {
		return nil, err
	}

	action, err := s.findActiveSuspension(ctx, userID, ActionUserSuspended)
	if err != nil {
		return nil, err
	}
	return s.reverse(ctx, actor, action, actionHandlers[ActionUserSuspended], reason)
}

// RemoveBan reverses a permanent suspension. Admin only; the underlying
// suspension must have no expiry.
func (s *Service) RemoveBan(ctx context.Context, actor Actor, userID, reason string) (*Action, error) {
	if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("user_id", userID); err != nil {
		return nil, err
	}

	action, err := s.findActiveSuspension(ctx, userID, ActionUserBanned)
	if err != nil {
		return nil, err
	}
	if action.ExpiresAt != nil {
		return nil, validationError("user_id", "user is suspended, not banned; use lift-suspension")
	}
	return s.reverse(ctx, actor, action, actionHandlers[ActionUserBanned], reason)
}

// RemoveUserRestriction deactivates an active restriction and reverses its
// originating action when one is linked.
func (s *Service) RemoveUserRestriction(ctx context.Context, actor Actor, userID string, t RestrictionType, reason string) (*Action, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("user_id", userID); err != nil {
		return nil, err
	}
	if err := ValidateRestrictionType(t); err != nil {
		return nil, err
	}
	if err := s.guard.VerifyNotAdminTarget(ctx, actor, userID); err != nil {
		return nil, err
	}

	restriction, err := s.store.FindActiveRestriction(ctx, userID, t)
	if err != nil {
		return nil, wrapUnexpected(err, "find restriction")
	}
	if restriction == nil {
		return nil, NewError(KindNotFound, "no active "+string(t)+" restriction for user").With("user_id", userID)
	}

	if restriction.RelatedActionID != "" {
		action, err := s.loadAction(ctx, restriction.RelatedActionID)
		if err == nil && !action.Reversed() {
			return s.reverse(ctx, actor, action, actionHandlers[action.ActionType], reason)
		}
		// A missing or already-reversed originating action still leaves the
		// restriction itself to deactivate.
		log.Warn().
			Str("restriction_id", restriction.ID).
			Str("action_id", restriction.RelatedActionID).
			Msg("moderation: restriction's originating action unavailable for reversal")
	}

	clean, err := sanitizeRequired("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeactivateRestriction(ctx, restriction.ID); err != nil {
		return nil, wrapUnexpected(err, "deactivate restriction")
	}
	s.security.Record(ctx, EventModerationActionReversed, actor.ID, map[string]any{
		"restriction_id": restriction.ID,
		"reason":         clean,
	})
	s.invalidateUser(ctx, userID)
	return nil, nil
}

// findActiveSuspension locates the non-revoked suspension/ban action for a
// user, cross-checking the user row's suspension state.
func (s *Service) findActiveSuspension(ctx context.Context, userID string, t ActionType) (*Action, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, wrapUnexpected(err, "get user")
	}
	if user == nil {
		return nil, NewError(KindNotFound, "user not found").With("user_id", userID)
	}
	if !user.Suspended {
		return nil, validationError("user_id", "user is not suspended")
	}
	action, err := s.store.FindActiveActionByType(ctx, userID, t)
	if err != nil {
		return nil, wrapUnexpected(err, "find action")
	}
	if action == nil {
		return nil, NewError(KindNotFound, "no active "+string(t)+" action for user").With("user_id", userID)
	}
	return action, nil
}

func (s *Service) loadAction(ctx context.Context, actionID string) (*Action, error) {
	action, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, wrapUnexpected(err, "get action")
	}
	if action == nil {
		return nil, NewError(KindNotFound, "action not found").With("action_id", actionID)
	}
	return action, nil
}

// reverse is the shared reversal protocol. Steps after the revocation
// update (notification, security event, cache) are best-effort.
func (s *Service) reverse(ctx context.Context, actor Actor, action *Action, handler *actionHandler, reason string) (*Action, error) {
	clean, err := sanitizeRequired("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	if action.Reversed() {
		return nil, validationError("action_id", "action already revoked").
			With("action_id", action.ID).
			With("revoked_at", *action.RevokedAt)
	}

	// Type-specific compensation before the revocation update, so a failed
	// compensation leaves the action applied.
	if handler.compensate != nil {
		if err := handler.compensate(s, ctx, action); err != nil {
			return nil, err
		}
	}

	now := s.now()
	isSelf := action.ModeratorID == actor.ID
	if err := s.store.MarkActionRevoked(ctx, action.ID, actor.ID, now, clean, isSelf); err != nil {
		return nil, wrapUnexpected(err, "mark action revoked")
	}
	action.RevokedAt = &now
	action.RevokedBy = actor.ID
	action.Metadata.ReversalReason = clean
	action.Metadata.IsSelfReversal = isSelf

	// Synthesize the original applied entry if the history is empty, then
	// append the reversal.
	changes, err := s.store.ListStateChanges(ctx, action.ID)
	if err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to read state changes")
	}
	if len(changes) == 0 {
		if err := s.store.AppendStateChange(ctx, action.ID, StateChangeEntry{
			Timestamp: action.CreatedAt,
			Action:    StateApplied,
			ByUserID:  action.ModeratorID,
			Reason:    action.Reason,
		}); err != nil {
			log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to synthesize applied entry")
		}
	}
	if err := s.store.AppendStateChange(ctx, action.ID, StateChangeEntry{
		Timestamp:    now,
		Action:       StateReversed,
		ByUserID:     actor.ID,
		Reason:       clean,
		IsSelfAction: isSelf,
	}); err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to append reversed entry")
	}

	s.dispatchReversalNotification(ctx, action, clean)

	eventType := EventModerationActionReversed
	if isSelf {
		eventType = EventSelfReversal
	}
	s.security.Record(ctx, eventType, actor.ID, map[string]any{
		"action_id":        action.ID,
		"action_type":      string(action.ActionType),
		"target_user_id":   action.TargetUserID,
		"is_self_reversal": isSelf,
	})
	metrics.ActionsReversed.WithLabelValues(string(action.ActionType)).Inc()
	s.invalidateUser(ctx, action.TargetUserID)

	log.Info().
		Str("action_id", action.ID).
		Str("action_type", string(action.ActionType)).
		Str("revoked_by", actor.ID).
		Bool("self_reversal", isSelf).
		Msg("moderation: action reversed")

	return action, nil
}

// ReapplyAction appends a reapplied entry and re-executes the side effects
// of a previously reversed action. The action row stays in its reversed
// database state; reapplication lives in the history.
func (s *Service) ReapplyAction(ctx context.Context, actor Actor, actionID, reason string) (*Action, error) {
	if err := ValidateUUID("action_id", actionID); err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	handler := actionHandlers[action.ActionType]
	if handler == nil {
		return nil, NewError(KindInvalidAction, "unknown action type").With("action_type", string(action.ActionType))
	}
	if handler.adminOnly {
		if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
			return nil, err
		}
	} else {
		if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
			return nil, err
		}
	}
	if err := s.guard.VerifyNotAdminTarget(ctx, actor, action.TargetUserID); err != nil {
		return nil, err
	}
	clean, err := sanitizeRequired("reason", reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	if !action.Reversed() {
		return nil, validationError("action_id", "action is not reversed")
	}

	if err := handler.execute(s, ctx, action, ActionInput{}); err != nil {
		return nil, err
	}
	if err := s.store.AppendStateChange(ctx, action.ID, StateChangeEntry{
		Timestamp:    s.now(),
		Action:       StateReapplied,
		ByUserID:     actor.ID,
		Reason:       clean,
		IsSelfAction: action.ModeratorID == actor.ID,
	}); err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to append reapplied entry")
	}
	s.invalidateUser(ctx, action.TargetUserID)
	return action, nil
}

// dispatchReversalNotification sends the reversal message, threading the
// original notification id when known. Best-effort.
func (s *Service) dispatchReversalNotification(ctx context.Context, action *Action, reason string) {
	if s.notifier == nil || action.TargetUserID == "" {
		return
	}
	title, message := reversalNotification(action, reason)
	if title == "" {
		return
	}
	_, err := s.notifier.SendReversal(ctx, action.TargetUserID, title, truncateNotification(message), map[string]any{
		"action_id":   action.ID,
		"action_type": string(action.ActionType),
	}, action.NotificationID)
	if err != nil {
		metrics.NotificationFailures.Inc()
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: reversal notification failed")
	}
}

// reversalNotification renders the per-variant reversal message.
func reversalNotification(action *Action, reason string) (string, string) {
	switch action.ActionType {
	case ActionUserSuspended:
		return "Suspension lifted", "Your suspension has been lifted: " + reason
	case ActionUserBanned:
		return "Ban removed", "Your permanent suspension has been removed: " + reason
	case ActionRestrictionApplied:
		return "Restriction removed", "The " + string(action.Metadata.RestrictionType) + " restriction on your account has been removed: " + reason
	case ActionUserWarned:
		return "Warning withdrawn", "A previous warning has been withdrawn: " + reason
	case ActionContentRemoved:
		// Content is not restored; the reversal is recorded for audit only.
		return "Moderation decision updated", "A moderation decision affecting your content was marked as reversed: " + reason
	default:
		return "", ""
	}
}
