package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tremolo/internal/metrics"
)

// Abuse-deterrence limits. Counts are recomputed from the store on each
// call; there is no persistent counter state. Not linearizable under
// concurrency, which is acceptable for deterrence (see SubmitReport).
const (
	ReportRateLimit       = 10
	ReportRateWindow      = 24 * time.Hour
	ActionRateLimit       = 100
	ActionRateWindow      = time.Hour
	DuplicateReportWindow = 24 * time.Hour
)

// Service is the moderation lifecycle engine. All public operations are
// short synchronous units of work over the shared store; the only shared
// mutable resource is the store itself.
type Service struct {
	store    Store
	guard    *Guard
	security *SecurityLog
	notifier Notifier
	alerter  Alerter
	content  ContentDeleter
	cache    CacheInvalidator
	now      func() time.Time
}

// Options configures optional collaborators and the clock.
type Options struct {
	Notifier Notifier
	Alerter  Alerter
	Content  ContentDeleter
	Cache    CacheInvalidator
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NewService creates the engine over its collaborators. Store and roles are
// mandatory; everything in Options degrades to a logged no-op when nil.
func NewService(store Store, roles RoleProvider, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	security := NewSecurityLog(store, now)
	return &Service{
		store:    store,
		guard:    NewGuard(roles, security),
		security: security,
		notifier: opts.Notifier,
		alerter:  opts.Alerter,
		content:  opts.Content,
		cache:    opts.Cache,
		now:      now,
	}
}

// Guard exposes the authorization guard for transport-layer checks.
func (s *Service) Guard() *Guard { return s.guard }

// SubmitReportInput carries a user-submitted report.
type SubmitReportInput struct {
	ReportType  ReportType
	TargetID    string
	Reason      ReportReason
	Description string
}

// SubmitReport validates, deduplicates, rate-limits, prioritizes, and
// persists a report. Check order: self-report, duplicate, rate limit.
// Duplicate detection is check-then-insert: two concurrent submissions can
// both pass the window query. The store cannot express time-windowed
// uniqueness, so this window stays advisory.
func (s *Service) SubmitReport(ctx context.Context, actor Actor, in SubmitReportInput) (*Report, error) {
	if err := s.guard.VerifyAuthenticated(actor); err != nil {
		return nil, err
	}
	report, err := s.buildReport(ctx, actor, in, false)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, wrapUnexpected(err, "create report")
	}
	metrics.ReportsSubmitted.WithLabelValues(string(report.Reason)).Inc()
	log.Info().
		Str("report_id", report.ID).
		Str("reporter", report.ReporterID).
		Str("report_type", string(report.ReportType)).
		Int("priority", report.Priority).
		Msg("moderation: report submitted")
	return report, nil
}

// FlagContent files a moderator-initiated report. It shares intake
// validation with SubmitReport but floors the priority at P2 and marks the
// report moderator_flagged so the queue surfaces it first.
func (s *Service) FlagContent(ctx context.Context, actor Actor, in SubmitReportInput) (*Report, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	report, err := s.buildReport(ctx, actor, in, true)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, wrapUnexpected(err, "create report")
	}
	metrics.ReportsSubmitted.WithLabelValues(string(report.Reason)).Inc()
	log.Info().
		Str("report_id", report.ID).
		Str("moderator", report.ReporterID).
		Int("priority", report.Priority).
		Msg("moderation: content flagged by moderator")
	return report, nil
}

func (s *Service) buildReport(ctx context.Context, actor Actor, in SubmitReportInput, flagged bool) (*Report, error) {
	if err := ValidateReportType(in.ReportType); err != nil {
		return nil, err
	}
	if err := ValidateUUID("target_id", in.TargetID); err != nil {
		return nil, err
	}
	description, err := sanitizeOptional("description", in.Description, MaxDescriptionLength)
	if err != nil {
		return nil, err
	}
	if err := ValidateReportReason(in.Reason, description); err != nil {
		return nil, err
	}

	// Resolve the owning user of the target so admin-target protection and
	// later actions know who is being reported.
	reportedUserID, err := s.resolveReportedUser(ctx, in.ReportType, in.TargetID)
	if err != nil {
		return nil, err
	}

	// 1. Self-report check.
	if reportedUserID != "" && reportedUserID == actor.ID {
		return nil, validationError("target_id", "cannot report your own content")
	}

	// 2. Duplicate suppression before rate limiting, so repeat reporters see
	// the duplicate message rather than a rate-limit error.
	prior, err := s.store.FindRecentReport(ctx, actor.ID, in.ReportType, in.TargetID, s.now().Add(-DuplicateReportWindow))
	if err != nil {
		return nil, wrapUnexpected(err, "duplicate check")
	}
	if prior != nil {
		s.security.Record(ctx, EventDuplicateReportAttempt, actor.ID, map[string]any{
			"report_type":        string(in.ReportType),
			"target_id":          in.TargetID,
			"original_report_id": prior.ID,
		})
		return nil, validationError("target_id", "already reported").
			With("original_created_at", prior.CreatedAt)
	}

	// 3. Rate limit over the trailing window.
	count, err := s.store.CountReportsBy(ctx, actor.ID, s.now().Add(-ReportRateWindow))
	if err != nil {
		return nil, wrapUnexpected(err, "rate limit check")
	}
	if count >= ReportRateLimit {
		s.security.Record(ctx, EventRateLimitExceeded, actor.ID, map[string]any{
			"count": count,
			"limit": ReportRateLimit,
		})
		return nil, (&Error{
			Kind:    KindRateLimitExceeded,
			Message: "report rate limit exceeded",
			Context: map[string]any{"count": count, "limit": ReportRateLimit},
		})
	}

	// 4. Admin-target protection: ordinary users may report anyone; the
	// protection bites when a moderator flags an admin's content.
	if flagged {
		if err := s.guard.VerifyNotAdminTarget(ctx, actor, reportedUserID); err != nil {
			return nil, err
		}
	}

	priority := PriorityForReason(in.Reason)
	if flagged {
		priority = PriorityForModeratorFlag(in.Reason)
	}

	return &Report{
		ID:               uuid.NewString(),
		ReporterID:       actor.ID,
		ReportedUserID:   reportedUserID,
		ReportType:       in.ReportType,
		TargetID:         in.TargetID,
		Reason:           in.Reason,
		Description:      description,
		Status:           ReportStatusPending,
		Priority:         priority,
		ModeratorFlagged: flagged,
		CreatedAt:        s.now(),
	}, nil
}

// resolveReportedUser finds the owner of the reported target. User reports
// target the user directly; content reports resolve through the content
// layer. A vanished target resolves to empty, not an error.
func (s *Service) resolveReportedUser(ctx context.Context, t ReportType, targetID string) (string, error) {
	if t == ReportTypeUser {
		return targetID, nil
	}
	if s.content == nil {
		return "", nil
	}
	owner, err := s.content.OwnerOf(ctx, t, targetID)
	if err != nil {
		return "", wrapUnexpected(err, "resolve content owner")
	}
	return owner, nil
}

// Queue returns the moderation queue: moderator-flagged reports first, then
// by ascending priority, then oldest first, with id as the stable tie-break.
// Moderator or admin only.
func (s *Service) Queue(ctx context.Context, actor Actor, filter QueueFilter) ([]*Report, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	reports, err := s.store.ListQueue(ctx, filter)
	if err != nil {
		return nil, wrapUnexpected(err, "list queue")
	}
	return reports, nil
}

// GetReport fetches one report. Moderator or admin only.
func (s *Service) GetReport(ctx context.Context, actor Actor, id string) (*Report, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("report_id", id); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, wrapUnexpected(err, "get report")
	}
	if report == nil {
		return nil, NewError(KindNotFound, "report not found").With("report_id", id)
	}
	return report, nil
}

// CanUserPerformAction reports whether a user currently holds the
// capability, consulting active restrictions and treating expiry as
// read-time computed: an expired restriction no longer blocks even before
// it is deactivated.
func (s *Service) CanUserPerformAction(ctx context.Context, userID string, capability Capability) (bool, error) {
	blocking, ok := capabilityRestrictions[capability]
	if !ok {
		return false, validationError("capability", "unknown capability").With("value", string(capability))
	}
	restrictions, err := s.store.ListActiveRestrictions(ctx, userID)
	if err != nil {
		return false, wrapUnexpected(err, "list restrictions")
	}
	now := s.now()
	for _, r := range restrictions {
		if r.Expired(now) {
			continue
		}
		for _, t := range blocking {
			if r.RestrictionType == t {
				return false, nil
			}
		}
	}
	return true, nil
}

// checkActionRateLimit enforces the per-moderator action budget before any
// side effects run.
func (s *Service) checkActionRateLimit(ctx context.Context, actor Actor) error {
	count, err := s.store.CountActionsBy(ctx, actor.ID, s.now().Add(-ActionRateWindow))
	if err != nil {
		return wrapUnexpected(err, "action rate limit check")
	}
	if count >= ActionRateLimit {
		s.security.Record(ctx, EventModerationRateLimitExceeded, actor.ID, map[string]any{
			"count": count,
			"limit": ActionRateLimit,
		})
		return &Error{
			Kind:    KindRateLimitExceeded,
			Message: "moderation action rate limit exceeded",
			Context: map[string]any{"count": count, "limit": ActionRateLimit},
		}
	}
	return nil
}

// invalidateUser drops downstream caches for a user; no-op without a cache.
func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.InvalidateUser(ctx, userID)
	}
}

// alert fires an admin alert if an alerter is wired. Fire-and-forget.
func (s *Service) alert(ctx context.Context, eventType, severity string, details map[string]any) {
	if s.alerter != nil {
		s.alerter.Alert(ctx, eventType, severity, details)
	}
}
