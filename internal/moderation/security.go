package moderation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tremolo/internal/metrics"
)

// SecurityLog writes the append-only security audit stream. Failures are
// logged and swallowed so audit problems never block moderation work.
type SecurityLog struct {
	store Store
	now   func() time.Time
}

// NewSecurityLog creates a security log over the store.
func NewSecurityLog(store Store, now func() time.Time) *SecurityLog {
	if now == nil {
		now = time.Now
	}
	return &SecurityLog{store: store, now: now}
}

// Record appends a security event. Best-effort.
func (l *SecurityLog) Record(ctx context.Context, eventType SecurityEventType, userID string, details map[string]any) {
	event := &SecurityEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		UserID:    userID,
		Details:   details,
		CreatedAt: l.now(),
	}
	if err := l.store.AppendSecurityEvent(ctx, event); err != nil {
		log.Error().Err(err).
			Str("event_type", string(eventType)).
			Str("user_id", userID).
			Msg("moderation: failed to append security event")
		return
	}
	metrics.SecurityEventsTotal.WithLabelValues(string(eventType)).Inc()
}

// SuspiciousActor describes an anomaly surfaced by detection.
type SuspiciousActor struct {
	UserID  string         `json:"user_id"`
	Pattern string         `json:"pattern"`
	Count   int            `json:"count"`
	Details map[string]any `json:"details,omitempty"`
}

// Detection thresholds. Reversal clusters point at either bad initial calls
// or reversal abuse; action bursts point at a compromised or scripted
// moderator account.
const (
	suspiciousReversalThreshold = 3
	suspiciousBurstThreshold    = 30
	suspiciousBurstWindow       = 10 * time.Minute
)

// SuspiciousActivity scans recent actions for anomalies: moderators whose
// actions were reversed at least suspiciousReversalThreshold times in the
// window, and moderators issuing bursts of actions faster than a human
// plausibly triages. Detection never raises; store failures yield an empty
// result after logging and alerting is left to the caller.
func (s *Service) SuspiciousActivity(ctx context.Context, actor Actor, window time.Duration) ([]SuspiciousActor, error) {
	if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
		return nil, err
	}

	actions, err := s.store.ListActionsSince(ctx, s.now().Add(-window))
	if err != nil {
		log.Error().Err(err).Msg("moderation: suspicious-activity scan failed to read actions")
		return nil, nil
	}

	var found []SuspiciousActor

	// Reversal clusters per moderator.
	reversedBy := make(map[string]int)
	for _, a := range actions {
		if a.Reversed() {
			reversedBy[a.ModeratorID]++
		}
	}
	for moderatorID, n := range reversedBy {
		if n >= suspiciousReversalThreshold {
			found = append(found, SuspiciousActor{
				UserID:  moderatorID,
				Pattern: "reversal_cluster",
				Count:   n,
				Details: map[string]any{"window": window.String()},
			})
			s.security.Record(ctx, EventSuspiciousReversalPattern, moderatorID, map[string]any{
				"reversed_count": n,
				"window":         window.String(),
			})
		}
	}

	// Rapid-fire bursts: more than suspiciousBurstThreshold actions by one
	// moderator inside any suspiciousBurstWindow slice.
	byModerator := make(map[string][]time.Time)
	for _, a := range actions {
		byModerator[a.ModeratorID] = append(byModerator[a.ModeratorID], a.CreatedAt)
	}
	for moderatorID, times := range byModerator {
		if n := maxWithinWindow(times, suspiciousBurstWindow); n > suspiciousBurstThreshold {
			found = append(found, SuspiciousActor{
				UserID:  moderatorID,
				Pattern: "action_burst",
				Count:   n,
				Details: map[string]any{"burst_window": suspiciousBurstWindow.String()},
			})
			s.security.Record(ctx, EventSuspiciousActionBurst, moderatorID, map[string]any{
				"action_count": n,
				"burst_window": suspiciousBurstWindow.String(),
			})
		}
	}

	return found, nil
}

// maxWithinWindow returns the largest number of timestamps falling inside
// any sliding window of the given width. Input order does not matter.
func maxWithinWindow(times []time.Time, window time.Duration) int {
	if len(times) == 0 {
		return 0
	}
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sortTimes(sorted)

	best, lo := 0, 0
	for hi := range sorted {
		for sorted[hi].Sub(sorted[lo]) > window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}

func sortTimes(ts []time.Time) {
	// Insertion sort; windows are small enough that this beats pulling in a
	// comparator allocation per scan.
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// AuditLog lists security events newest-first with cursor pagination.
// Admin only.
func (s *Service) AuditLog(ctx context.Context, actor Actor, limit int, cursor string) ([]*SecurityEvent, string, error) {
	if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 50
	}
	events, next, err := s.store.ListSecurityEvents(ctx, limit, cursor)
	if err != nil {
		return nil, "", wrapUnexpected(err, "list security events")
	}
	return events, next, nil
}
