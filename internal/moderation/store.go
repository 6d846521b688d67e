package moderation

import (
	"context"
	"time"
)

// QueueFilter narrows the moderation queue. Zero values mean "no filter".
type QueueFilter struct {
	Status           ReportStatus
	Priority         int
	ModeratorFlagged *bool
	ReportType       ReportType
	CreatedAfter     time.Time
	CreatedBefore    time.Time
	Limit            int
	Offset           int
}

// Store defines the persistence interface for the engine.
// Implementations must be safe for concurrent use. Methods return plain
// errors; the engine wraps them into its own error kinds at the boundary.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	// ListQueue returns reports ordered by the triage contract:
	// moderator_flagged desc, priority asc, created_at asc, id asc.
	ListQueue(ctx context.Context, filter QueueFilter) ([]*Report, error)
	// ResolveReport sets the resolution fields exactly once; it must fail if
	// the report is already resolved or dismissed.
	ResolveReport(ctx context.Context, id string, status ReportStatus, reviewedBy string, reviewedAt time.Time, notes string, actionTaken ActionType) error
	// FindRecentReport returns the most recent report by the reporter for the
	// same (type, target) created after since, or nil.
	FindRecentReport(ctx context.Context, reporterID string, reportType ReportType, targetID string, since time.Time) (*Report, error)
	CountReportsBy(ctx context.Context, reporterID string, since time.Time) (int, error)
	ListReportsSince(ctx context.Context, since time.Time) ([]*Report, error)

	// Actions
	CreateAction(ctx context.Context, action *Action) error
	GetAction(ctx context.Context, id string) (*Action, error)
	// MarkActionRevoked sets revoked_at/revoked_by and the reversal metadata.
	// It must not touch created_at, reason, or the target fields, and must
	// fail if the action is already revoked.
	MarkActionRevoked(ctx context.Context, id string, revokedBy string, revokedAt time.Time, reversalReason string, isSelfReversal bool) error
	SetActionNotification(ctx context.Context, id string, notificationID string) error
	CountActionsBy(ctx context.Context, moderatorID string, since time.Time) (int, error)
	ListActionsSince(ctx context.Context, since time.Time) ([]*Action, error)
	ListActionsByTarget(ctx context.Context, targetUserID string) ([]*Action, error)
	// FindActiveActionByType returns the most recent non-revoked action of
	// the given type against the target user, or nil.
	FindActiveActionByType(ctx context.Context, targetUserID string, actionType ActionType) (*Action, error)

	// State change log (append-only child table of actions)
	AppendStateChange(ctx context.Context, actionID string, entry StateChangeEntry) error
	ListStateChanges(ctx context.Context, actionID string) ([]StateChangeEntry, error)

	// Restrictions
	CreateRestriction(ctx context.Context, r *Restriction) error
	// FindActiveRestriction returns the active restriction of the given type
	// for the user, or nil.
	FindActiveRestriction(ctx context.Context, userID string, t RestrictionType) (*Restriction, error)
	ListActiveRestrictions(ctx context.Context, userID string) ([]*Restriction, error)
	DeactivateRestriction(ctx context.Context, id string) error

	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserSuspension(ctx context.Context, id string, until *time.Time, reason string, suspended bool) error

	// Security events (append-only)
	AppendSecurityEvent(ctx context.Context, event *SecurityEvent) error
	ListSecurityEvents(ctx context.Context, limit int, cursor string) ([]*SecurityEvent, string, error)
}

// RestrictionConflictError is returned by CreateRestriction when the store's
// uniqueness constraint rejects a second active restriction of the same type
// for a user. The engine translates it into a ValidationError naming the
// existing restriction's expiry.
type RestrictionConflictError struct {
	Existing *Restriction
}

func (e *RestrictionConflictError) Error() string {
	return "active restriction already exists: " + string(e.Existing.RestrictionType)
}

// IdentityProvider resolves the calling session to an actor.
type IdentityProvider interface {
	// CurrentUser returns the authenticated user id for the session token,
	// or an error if the session is missing or expired.
	CurrentUser(ctx context.Context, token string) (string, error)
}

// RoleProvider resolves a user's active role grants. Absence of any role
// yields an empty slice, never an error.
type RoleProvider interface {
	ActiveRoles(ctx context.Context, userID string) ([]Role, error)
}

// Role is a role grant name.
type Role string

const (
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Notifier delivers user-facing messages. Delivery is best-effort: a failure
// must never fail the governing moderation action.
type Notifier interface {
	Send(ctx context.Context, userID, title, message string, data map[string]any) (string, error)
	// SendReversal additionally threads the original notification id.
	SendReversal(ctx context.Context, userID, title, message string, data map[string]any, relatedNotificationID string) (string, error)
}

// Alerter delivers admin alerts. Fire-and-forget; outcomes are logged by the
// implementation, never surfaced.
type Alerter interface {
	Alert(ctx context.Context, eventType string, severity string, details map[string]any)
}

// ContentDeleter permanently removes a content row. Idempotent: deleting
// already-absent content returns zero affected rows, not an error.
type ContentDeleter interface {
	Delete(ctx context.Context, contentType ReportType, contentID string) (int64, error)
	// OwnerOf resolves the owning user of a piece of content; empty string if
	// the content is gone or unowned.
	OwnerOf(ctx context.Context, contentType ReportType, contentID string) (string, error)
}

// CacheInvalidator drops downstream read caches for a user after their
// capabilities change. Implementations may be no-ops.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}
