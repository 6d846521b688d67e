package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tremolo/internal/metrics"
)

// ActionInput carries a moderation decision.
type ActionInput struct {
	TargetUserID    string
	ActionType      ActionType
	TargetType      ReportType // content actions only
	TargetID        string
	Reason          string
	DurationDays    *int // nil = permanent
	RelatedReportID string
	InternalNotes   string
	RestrictionType RestrictionType // restriction_applied only
	ResolutionNotes string
}

// ActionResult is the outcome of TakeModerationAction. NotificationSent is
// the soft-failure signal: false means the action applied but the user
// notification did not go out.
type ActionResult struct {
	Action           *Action `json:"action"`
	NotificationSent bool    `json:"notification_sent"`
}

// actionHandler executes the side effects for one action variant. The
// dispatch map is the closed variant set: executor, compensator, and
// notification template are looked up together so a new variant cannot be
// added without deciding all three.
type actionHandler struct {
	// execute performs the side effects. For suspension and ban the Action
	// row already exists (created first to obtain an id and avoid duplicate
	// rows on retry); for everything else it is persisted after.
	execute func(s *Service, ctx context.Context, action *Action, in ActionInput) error
	// compensate undoes the side effects on reversal; nil means no
	// compensation exists (content removal is irreversible).
	compensate func(s *Service, ctx context.Context, action *Action) error
	// notification renders the user-facing message.
	notification func(action *Action) (title, message string)
	// persistFirst: create the Action row before executing side effects.
	persistFirst bool
	// reportStatus the related report resolves to.
	reportStatus ReportStatus
	// adminOnly restricts both applying and reversing to admins.
	adminOnly bool
}

var actionHandlers = map[ActionType]*actionHandler{
	ActionContentRemoved: {
		execute: func(s *Service, ctx context.Context, action *Action, in ActionInput) error {
			if s.content == nil {
				return NewError(KindInvalidAction, "content removal is not available")
			}
			affected, err := s.content.Delete(ctx, action.TargetType, action.TargetID)
			if err != nil {
				return wrapUnexpected(err, "delete content")
			}
			// Zero affected rows means the content was already gone; the
			// removal still stands for audit purposes.
			log.Info().
				Str("action_id", action.ID).
				Str("target_type", string(action.TargetType)).
				Str("target_id", action.TargetID).
				Int64("affected", affected).
				Msg("moderation: content removed")
			return nil
		},
		compensate: nil, // deletion is permanent; reversal is audit-only
		notification: func(a *Action) (string, string) {
			return "Content removed",
				fmt.Sprintf("Your %s was removed for violating community guidelines: %s", a.TargetType, a.Reason)
		},
		reportStatus: ReportStatusResolved,
	},
	ActionContentApproved: {
		execute: func(s *Service, ctx context.Context, action *Action, in ActionInput) error {
			return nil // approval has no side effect
		},
		compensate: func(s *Service, ctx context.Context, action *Action) error {
			return nil
		},
		notification: func(a *Action) (string, string) {
			return "", "" // no user-facing message for approvals
		},
		reportStatus: ReportStatusDismissed,
	},
	ActionUserWarned: {
		execute: func(s *Service, ctx context.Context, action *Action, in ActionInput) error {
			return nil // warning is notification-only
		},
		compensate: func(s *Service, ctx context.Context, action *Action) error {
			return nil
		},
		notification: func(a *Action) (string, string) {
			return "Warning", "You have received a warning from the moderation team: " + a.Reason
		},
		reportStatus: ReportStatusResolved,
	},
	ActionUserSuspended: {
		persistFirst: true,
		execute:      executeSuspension,
		compensate:   compensateSuspension,
		notification: func(a *Action) (string, string) {
			if a.ExpiresAt != nil {
				return "Account suspended",
					fmt.Sprintf("Your account is suspended until %s: %s", a.ExpiresAt.UTC().Format(time.RFC3339), a.Reason)
			}
			return "Account suspended", "Your account has been suspended: " + a.Reason
		},
		reportStatus: ReportStatusResolved,
	},
	ActionUserBanned: {
		persistFirst: true,
		adminOnly:    true,
		execute:      executeSuspension, // ban is a suspension with no expiry
		compensate:   compensateSuspension,
		notification: func(a *Action) (string, string) {
			return "Account permanently suspended", "Your account has been permanently suspended: " + a.Reason
		},
		reportStatus: ReportStatusResolved,
	},
	ActionRestrictionApplied: {
		execute: func(s *Service, ctx context.Context, action *Action, in ActionInput) error {
			return s.applyRestriction(ctx, action, action.Metadata.RestrictionType)
		},
		compensate: func(s *Service, ctx context.Context, action *Action) error {
			return s.deactivateRestrictionFor(ctx, action.TargetUserID, action.Metadata.RestrictionType)
		},
		notification: func(a *Action) (string, string) {
			return "Account restricted",
				fmt.Sprintf("A restriction (%s) was applied to your account: %s", a.Metadata.RestrictionType, a.Reason)
		},
		reportStatus: ReportStatusResolved,
	},
}

// TakeModerationAction authorizes, validates, executes, persists, and
// notifies a moderation decision, resolving the related report exactly once.
// Notification and audit failures never fail the action.
func (s *Service) TakeModerationAction(ctx context.Context, actor Actor, in ActionInput) (*ActionResult, error) {
	handler, ok := actionHandlers[in.ActionType]
	if !ok {
		return nil, NewError(KindInvalidAction, "unknown action type").With("action_type", string(in.ActionType))
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

	action, err := s.buildAction(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	if err := s.guard.VerifyNotAdminTarget(ctx, actor, action.TargetUserID); err != nil {
		return nil, err
	}
	if err := s.checkActionRateLimit(ctx, actor); err != nil {
		return nil, err
	}

	// Suspension and ban persist the row first so retries find the existing
	// action instead of creating a second one mid-side-effect.
	if handler.persistFirst {
		if prior, err := s.store.FindActiveActionByType(ctx, action.TargetUserID, action.ActionType); err != nil {
			return nil, wrapUnexpected(err, "find active action")
		} else if prior != nil {
			return nil, validationError("target_user_id", "an active "+string(action.ActionType)+" already exists").
				With("action_id", prior.ID)
		}
		if err := s.store.CreateAction(ctx, action); err != nil {
			return nil, wrapUnexpected(err, "create action")
		}
		if err := handler.execute(s, ctx, action, in); err != nil {
			return nil, err
		}
	} else {
		if err := handler.execute(s, ctx, action, in); err != nil {
			return nil, err
		}
		if err := s.store.CreateAction(ctx, action); err != nil {
			return nil, wrapUnexpected(err, "create action")
		}
	}

	if err := s.store.AppendStateChange(ctx, action.ID, StateChangeEntry{
		Timestamp: action.CreatedAt,
		Action:    StateApplied,
		ByUserID:  actor.ID,
		Reason:    action.Reason,
	}); err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to append applied state change")
	}

	// Resolve the related report exactly once.
	if action.RelatedReportID != "" {
		notes := in.ResolutionNotes
		if notes == "" {
			notes = action.Reason
		}
		if err := s.store.ResolveReport(ctx, action.RelatedReportID, handler.reportStatus, actor.ID, action.CreatedAt, notes, action.ActionType); err != nil {
			log.Error().Err(err).
				Str("report_id", action.RelatedReportID).
				Str("action_id", action.ID).
				Msg("moderation: failed to resolve related report")
		}
	}

	sent := s.dispatchActionNotification(ctx, action, handler)
	action.NotificationSent = sent

	s.security.Record(ctx, EventModerationActionTaken, actor.ID, map[string]any{
		"action_id":      action.ID,
		"action_type":    string(action.ActionType),
		"target_user_id": action.TargetUserID,
	})
	metrics.ActionsTaken.WithLabelValues(string(action.ActionType)).Inc()
	s.invalidateUser(ctx, action.TargetUserID)

	log.Info().
		Str("action_id", action.ID).
		Str("action_type", string(action.ActionType)).
		Str("moderator", actor.ID).
		Str("target_user", action.TargetUserID).
		Msg("moderation: action taken")

	return &ActionResult{Action: action, NotificationSent: sent}, nil
}

func (s *Service) buildAction(ctx context.Context, actor Actor, in ActionInput) (*Action, error) {
	reason, err := sanitizeRequired("reason", in.Reason, MaxReasonLength)
	if err != nil {
		return nil, err
	}
	notes, err := sanitizeOptional("internal_notes", in.InternalNotes, MaxInternalNotesLength)
	if err != nil {
		return nil, err
	}

	targetUserID := in.TargetUserID
	isContentAction := in.ActionType == ActionContentRemoved || in.ActionType == ActionContentApproved
	if isContentAction {
		if err := ValidateReportType(in.TargetType); err != nil {
			return nil, err
		}
		if err := ValidateUUID("target_id", in.TargetID); err != nil {
			return nil, err
		}
		if targetUserID == "" {
			owner, err := s.resolveReportedUser(ctx, in.TargetType, in.TargetID)
			if err != nil {
				return nil, err
			}
			targetUserID = owner
		}
	}
	if targetUserID != "" {
		if err := ValidateUUID("target_user_id", targetUserID); err != nil {
			return nil, err
		}
	} else if !isContentAction {
		return nil, validationError("target_user_id", "target_user_id is required")
	}

	if in.RelatedReportID != "" {
		if err := ValidateUUID("related_report_id", in.RelatedReportID); err != nil {
			return nil, err
		}
	}
	if in.DurationDays != nil && *in.DurationDays <= 0 {
		return nil, validationError("duration_days", "duration_days must be positive")
	}
	if in.ActionType == ActionUserBanned && in.DurationDays != nil {
		return nil, validationError("duration_days", "a ban is permanent; use user_suspended for a timed suspension")
	}

	var metadata ActionMetadata
	if in.ActionType == ActionRestrictionApplied {
		if err := ValidateRestrictionType(in.RestrictionType); err != nil {
			return nil, err
		}
		metadata.RestrictionType = in.RestrictionType
	}

	now := s.now()
	action := &Action{
		ID:              uuid.NewString(),
		ModeratorID:     actor.ID,
		TargetUserID:    targetUserID,
		ActionType:      in.ActionType,
		Reason:          reason,
		DurationDays:    in.DurationDays,
		RelatedReportID: in.RelatedReportID,
		InternalNotes:   notes,
		CreatedAt:       now,
		Metadata:        metadata,
	}
	if isContentAction {
		action.TargetType = in.TargetType
		action.TargetID = in.TargetID
	}
	if in.DurationDays != nil {
		expires := now.Add(time.Duration(*in.DurationDays) * 24 * time.Hour)
		action.ExpiresAt = &expires
	}
	return action, nil
}

// executeSuspension writes the suspension fields on the user row and creates
// the mirrored suspended restriction. Used by both user_suspended and
// user_banned (nil expiry).
func executeSuspension(s *Service, ctx context.Context, action *Action, in ActionInput) error {
	if err := s.store.SetUserSuspension(ctx, action.TargetUserID, action.ExpiresAt, action.Reason, true); err != nil {
		return wrapUnexpected(err, "suspend user")
	}
	return s.applyRestriction(ctx, action, RestrictionSuspended)
}

// compensateSuspension clears the suspension fields and deactivates the
// suspended restriction.
func compensateSuspension(s *Service, ctx context.Context, action *Action) error {
	if err := s.store.SetUserSuspension(ctx, action.TargetUserID, nil, "", false); err != nil {
		return wrapUnexpected(err, "clear suspension")
	}
	return s.deactivateRestrictionFor(ctx, action.TargetUserID, RestrictionSuspended)
}

// applyRestriction creates an active restriction linked to the action. An
// existing active restriction of the same type fails validation, naming the
// existing restriction's expiry; the store's unique index closes the
// check-then-insert race and surfaces as the same conflict.
func (s *Service) applyRestriction(ctx context.Context, action *Action, t RestrictionType) error {
	existing, err := s.store.FindActiveRestriction(ctx, action.TargetUserID, t)
	if err != nil {
		return wrapUnexpected(err, "find restriction")
	}
	if existing != nil {
		return restrictionConflict(existing)
	}

	r := &Restriction{
		ID:              uuid.NewString(),
		UserID:          action.TargetUserID,
		RestrictionType: t,
		ExpiresAt:       action.ExpiresAt,
		IsActive:        true,
		Reason:          action.Reason,
		AppliedBy:       action.ModeratorID,
		RelatedActionID: action.ID,
		CreatedAt:       action.CreatedAt,
	}
	if err := s.store.CreateRestriction(ctx, r); err != nil {
		var conflict *RestrictionConflictError
		if errors.As(err, &conflict) {
			return restrictionConflict(conflict.Existing)
		}
		return wrapUnexpected(err, "create restriction")
	}
	return nil
}

func restrictionConflict(existing *Restriction) error {
	e := validationError("restriction_type", "an active "+string(existing.RestrictionType)+" restriction already exists; remove it first").
		With("restriction_id", existing.ID)
	if existing.ExpiresAt != nil {
		return e.With("expires_at", *existing.ExpiresAt)
	}
	return e.With("expires_at", "permanent")
}

// deactivateRestrictionFor deactivates the active restriction of the given
// type; a missing restriction is not an error during compensation.
func (s *Service) deactivateRestrictionFor(ctx context.Context, userID string, t RestrictionType) error {
	existing, err := s.store.FindActiveRestriction(ctx, userID, t)
	if err != nil {
		return wrapUnexpected(err, "find restriction")
	}
	if existing == nil {
		return nil
	}
	if err := s.store.DeactivateRestriction(ctx, existing.ID); err != nil {
		return wrapUnexpected(err, "deactivate restriction")
	}
	return nil
}

// dispatchActionNotification sends the user-facing message for an action.
// Best-effort: failures are logged and counted, never surfaced.
func (s *Service) dispatchActionNotification(ctx context.Context, action *Action, handler *actionHandler) bool {
	if s.notifier == nil || action.TargetUserID == "" {
		return false
	}
	title, message := handler.notification(action)
	if title == "" && message == "" {
		return false
	}
	message = truncateNotification(message)
	id, err := s.notifier.Send(ctx, action.TargetUserID, title, message, map[string]any{
		"action_id":   action.ID,
		"action_type": string(action.ActionType),
	})
	if err != nil {
		metrics.NotificationFailures.Inc()
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: action notification failed")
		return false
	}
	action.NotificationID = id
	if err := s.store.SetActionNotification(ctx, action.ID, id); err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("moderation: failed to record notification id")
	}
	return true
}

// GetAction fetches one action with its full state change history.
// Moderator or admin only.
func (s *Service) GetAction(ctx context.Context, actor Actor, id string) (*Action, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("action_id", id); err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, id)
	if err != nil {
		return nil, err
	}
	changes, err := s.store.ListStateChanges(ctx, action.ID)
	if err != nil {
		return nil, wrapUnexpected(err, "list state changes")
	}
	action.Metadata.StateChanges = changes
	return action, nil
}

// UserModerationHistory lists every action ever taken against a user,
// newest first, reversed actions included. Moderator or admin only.
func (s *Service) UserModerationHistory(ctx context.Context, actor Actor, userID string) ([]*Action, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("user_id", userID); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActionsByTarget(ctx, userID)
	if err != nil {
		return nil, wrapUnexpected(err, "list actions by target")
	}
	return actions, nil
}

// UserRestrictions lists the currently active restrictions on a user.
// Moderator or admin only.
func (s *Service) UserRestrictions(ctx context.Context, actor Actor, userID string) ([]*Restriction, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("user_id", userID); err != nil {
		return nil, err
	}
	restrictions, err := s.store.ListActiveRestrictions(ctx, userID)
	if err != nil {
		return nil, wrapUnexpected(err, "list restrictions")
	}
	return restrictions, nil
}

func truncateNotification(message string) string {
	runes := []rune(message)
	if len(runes) > MaxNotificationLength {
		return string(runes[:MaxNotificationLength])
	}
	return message
}
