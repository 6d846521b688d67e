// Package moderation implements the moderation lifecycle engine: report
// intake, the triage queue, moderator actions, the reversal/audit state
// machine, and the derived moderation metrics.
package moderation

import "time"

// ReportType identifies what kind of content (or user) a report targets.
type ReportType string

const (
	ReportTypePost    ReportType = "post"
	ReportTypeComment ReportType = "comment"
	ReportTypeTrack   ReportType = "track"
	ReportTypeUser    ReportType = "user"
)

// ValidReportTypes is the closed set of accepted report types.
var ValidReportTypes = map[ReportType]bool{
	ReportTypePost:    true,
	ReportTypeComment: true,
	ReportTypeTrack:   true,
	ReportTypeUser:    true,
}

// ReportReason classifies why content was reported.
type ReportReason string

const (
	ReasonSpam                 ReportReason = "spam"
	ReasonHarassment           ReportReason = "harassment"
	ReasonHateSpeech           ReportReason = "hate_speech"
	ReasonInappropriateContent ReportReason = "inappropriate_content"
	ReasonCopyrightViolation   ReportReason = "copyright_violation"
	ReasonImpersonation        ReportReason = "impersonation"
	ReasonSelfHarm             ReportReason = "self_harm"
	ReasonOther                ReportReason = "other"
)

// ValidReportReasons is the closed set of accepted report reasons.
var ValidReportReasons = map[ReportReason]bool{
	ReasonSpam:                 true,
	ReasonHarassment:           true,
	ReasonHateSpeech:           true,
	ReasonInappropriateContent: true,
	ReasonCopyrightViolation:   true,
	ReasonImpersonation:        true,
	ReasonSelfHarm:             true,
	ReasonOther:                true,
}

// ReportStatus tracks a report through triage.
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusUnderReview ReportStatus = "under_review"
	ReportStatusResolved    ReportStatus = "resolved"
	ReportStatusDismissed   ReportStatus = "dismissed"
)

// Report is a user- or moderator-submitted claim that content or a user
// violates policy. Immutable once created except for the resolution fields,
// which are set exactly once by TakeModerationAction.
type Report struct {
	ID               string       `json:"id"`
	ReporterID       string       `json:"reporter_id"`
	ReportedUserID   string       `json:"reported_user_id,omitempty"` // resolved owner of the target
	ReportType       ReportType   `json:"report_type"`
	TargetID         string       `json:"target_id"`
	Reason           ReportReason `json:"reason"`
	Description      string       `json:"description,omitempty"`
	Status           ReportStatus `json:"status"`
	Priority         int          `json:"priority"` // 1 (most urgent) .. 5
	ModeratorFlagged bool         `json:"moderator_flagged"`
	CreatedAt        time.Time    `json:"created_at"`

	// Resolution fields, set exactly once.
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ActionTaken     ActionType `json:"action_taken,omitempty"`
}

// ActionType is the closed set of moderation action variants. Every consumer
// (executor, reversal compensator, notification templates) dispatches off
// this set; an unknown value fails InvalidAction before any side effect.
type ActionType string

const (
	ActionContentRemoved     ActionType = "content_removed"
	ActionContentApproved    ActionType = "content_approved"
	ActionUserWarned         ActionType = "user_warned"
	ActionUserSuspended      ActionType = "user_suspended"
	ActionUserBanned         ActionType = "user_banned"
	ActionRestrictionApplied ActionType = "restriction_applied"
)

// ValidActionTypes is the closed set of accepted action types.
var ValidActionTypes = map[ActionType]bool{
	ActionContentRemoved:     true,
	ActionContentApproved:    true,
	ActionUserWarned:         true,
	ActionUserSuspended:      true,
	ActionUserBanned:         true,
	ActionRestrictionApplied: true,
}

// Action is a moderator or admin decision with a recorded effect and an
// optional reversal. Rows are append-only: the only mutation path is the
// reversal update, which never touches created_at, reason, or the target
// fields.
type Action struct {
	ID           string     `json:"id"`
	ModeratorID  string     `json:"moderator_id"`
	TargetUserID string     `json:"target_user_id"`
	ActionType   ActionType `json:"action_type"`
	TargetType   ReportType `json:"target_type,omitempty"` // content actions only
	TargetID     string     `json:"target_id,omitempty"`
	Reason       string     `json:"reason"`
	DurationDays *int       `json:"duration_days,omitempty"` // nil = permanent
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`    // created_at + duration_days
	RelatedReportID  string `json:"related_report_id,omitempty"`
	InternalNotes    string `json:"internal_notes,omitempty"`
	NotificationSent bool   `json:"notification_sent"`
	NotificationID   string `json:"notification_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"` // both null or both set
	RevokedBy        string     `json:"revoked_by,omitempty"`

	Metadata ActionMetadata `json:"metadata"`
}

// ActionMetadata carries the reversal bookkeeping for an action. The state
// change log is an owned ordered sequence persisted in its own append-only
// table, never a mutable blob.
type ActionMetadata struct {
	ReversalReason  string             `json:"reversal_reason,omitempty"`
	IsSelfReversal  bool               `json:"is_self_reversal,omitempty"`
	RestrictionType RestrictionType    `json:"restriction_type,omitempty"`
	StateChanges    []StateChangeEntry `json:"state_changes,omitempty"`
}

// Reversed reports whether the action has been reversed.
func (a *Action) Reversed() bool {
	return a.RevokedAt != nil
}

// StateChangeAction is the per-entry transition recorded in an action's
// state change log.
type StateChangeAction string

const (
	StateApplied   StateChangeAction = "applied"
	StateReversed  StateChangeAction = "reversed"
	StateReapplied StateChangeAction = "reapplied"
)

// StateChangeEntry is one entry in an action's strictly time-ordered,
// append-only state change log. The first entry for any action is the
// synthesized "applied" by the acting moderator if absent.
type StateChangeEntry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       StateChangeAction `json:"action"`
	ByUserID     string            `json:"by_user_id"`
	Reason       string            `json:"reason,omitempty"`
	IsSelfAction bool              `json:"is_self_action"`
}

// RestrictionType identifies a capability limitation placed on a user.
type RestrictionType string

const (
	RestrictionPostingDisabled    RestrictionType = "posting_disabled"
	RestrictionCommentingDisabled RestrictionType = "commenting_disabled"
	RestrictionUploadDisabled     RestrictionType = "upload_disabled"
	RestrictionSuspended          RestrictionType = "suspended"
)

// ValidRestrictionTypes is the closed set of accepted restriction types.
var ValidRestrictionTypes = map[RestrictionType]bool{
	RestrictionPostingDisabled:    true,
	RestrictionCommentingDisabled: true,
	RestrictionUploadDisabled:     true,
	RestrictionSuspended:          true,
}

// Restriction is an active limitation on a user's capabilities. At most one
// active restriction may exist per (user_id, restriction_type); the store
// enforces this with a partial unique index. Restrictions are deactivated,
// never physically deleted.
type Restriction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	RestrictionType RestrictionType `json:"restriction_type"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"` // nil = permanent
	IsActive        bool            `json:"is_active"`
	Reason          string          `json:"reason"`
	AppliedBy       string          `json:"applied_by"`
	RelatedActionID string          `json:"related_action_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Expired reports whether the restriction's expiry has passed at the given
// instant. A nil expiry never expires.
func (r *Restriction) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// SecurityEventType classifies entries in the security audit stream.
type SecurityEventType string

const (
	EventDuplicateReportAttempt           SecurityEventType = "duplicate_report_attempt"
	EventRateLimitExceeded                SecurityEventType = "rate_limit_exceeded"
	EventModerationRateLimitExceeded      SecurityEventType = "moderation_action_rate_limit_exceeded"
	EventUnauthorizedActionOnAdminTarget  SecurityEventType = "unauthorized_action_on_admin_target"
	EventSelfReversal                     SecurityEventType = "self_reversal"
	EventImmutabilityViolationDetected    SecurityEventType = "reversal_immutability_violation_detected"
	EventReversalTamperAttemptSucceeded   SecurityEventType = "reversal_tamper_attempt_succeeded"
	EventSuspiciousReversalPattern        SecurityEventType = "suspicious_reversal_pattern"
	EventSuspiciousActionBurst            SecurityEventType = "suspicious_action_burst"
	EventModerationActionTaken            SecurityEventType = "moderation_action_taken"
	EventModerationActionReversed         SecurityEventType = "moderation_action_reversed"
)

// SecurityEvent is one entry in the append-only security audit stream.
type SecurityEvent struct {
	ID        string            `json:"id"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// User carries the profile fields the engine reads and writes: suspension
// state lives on the user row, mirrored by a suspended Restriction.
type User struct {
	ID               string     `json:"id"`
	SuspendedUntil   *time.Time `json:"suspended_until,omitempty"` // nil = not suspended; set with no expiry on ban
	Suspended        bool       `json:"suspended"`
	SuspensionReason string     `json:"suspension_reason,omitempty"`
}

// Capability names a user action the content-serving layer gates on.
type Capability string

const (
	CapabilityPost    Capability = "post"
	CapabilityComment Capability = "comment"
	CapabilityUpload  Capability = "upload"
)

// capabilityRestrictions maps a capability to the restriction types that
// block it. Suspension blocks everything.
var capabilityRestrictions = map[Capability][]RestrictionType{
	CapabilityPost:    {RestrictionPostingDisabled, RestrictionSuspended},
	CapabilityComment: {RestrictionCommentingDisabled, RestrictionSuspended},
	CapabilityUpload:  {RestrictionUploadDisabled, RestrictionSuspended},
}

// Notification is a user-facing message recorded by the dispatcher.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	RelatedID string         `json:"related_id,omitempty"` // original notification on reversals
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`
}
