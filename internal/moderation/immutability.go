package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ImmutabilityReport enumerates violations of the reversal-field invariants
// for one action.
type ImmutabilityReport struct {
	ActionID   string   `json:"action_id"`
	Immutable  bool     `json:"immutable"`
	Violations []string `json:"violations,omitempty"`
}

// VerifyReversalImmutability checks the reversal-field invariants:
// revoked_at and revoked_by are both null or both set; a set revoked_at is
// not in the future and not before created_at; a revoked action carries a
// non-empty reversal reason. Violations are enumerated individually; any
// finding raises a security event and an admin alert but never an error to
// the caller beyond lookup failures.
func (s *Service) VerifyReversalImmutability(ctx context.Context, actor Actor, actionID string) (*ImmutabilityReport, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("action_id", actionID); err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, actionID)
	if err != nil {
		return nil, err
	}

	report := &ImmutabilityReport{ActionID: action.ID, Immutable: true}
	addViolation := func(v string) {
		report.Immutable = false
		report.Violations = append(report.Violations, v)
	}

	switch {
	case action.RevokedAt == nil && action.RevokedBy != "":
		addViolation("revoked_by is set while revoked_at is null")
	case action.RevokedAt != nil && action.RevokedBy == "":
		addViolation("revoked_at is set while revoked_by is null")
	}
	if action.RevokedAt != nil {
		if action.RevokedAt.After(s.now()) {
			addViolation("revoked_at is in the future")
		}
		if action.RevokedAt.Before(action.CreatedAt) {
			addViolation("revoked_at precedes created_at")
		}
		if action.Metadata.ReversalReason == "" {
			addViolation("reversal_reason is empty on a revoked action")
		}
	}

	if !report.Immutable {
		log.Error().
			Str("action_id", action.ID).
			Strs("violations", report.Violations).
			Msg("moderation: reversal immutability violation detected")
		s.security.Record(ctx, EventImmutabilityViolationDetected, action.ModeratorID, map[string]any{
			"action_id":  action.ID,
			"violations": report.Violations,
		})
		s.alert(ctx, string(EventImmutabilityViolationDetected), "critical", map[string]any{
			"action_id":  action.ID,
			"violations": report.Violations,
		})
	}
	return report, nil
}

// TamperProbeResult records the outcome of a tamper-resistance probe.
type TamperProbeResult struct {
	ActionID string `json:"action_id"`
	// Rejected is true when the persistence layer refused every direct
	// mutation of already-reversed fields, as it must.
	Rejected bool     `json:"rejected"`
	Failures []string `json:"failures,omitempty"`
}

// TamperProber is implemented by stores that can attempt direct mutation of
// reversal fields for verification. A store without the probe cannot be
// verified this way.
type TamperProber interface {
	// AttemptRevocationOverwrite tries to overwrite revoked_at/revoked_by on
	// an already-revoked action, bypassing the engine. It reports whether
	// the store rejected the mutation.
	AttemptRevocationOverwrite(ctx context.Context, actionID string, revokedBy string, revokedAt time.Time) (rejected bool, err error)
}

// VerifyReversalTamperResistance attempts a direct mutation of an already-
// reversed action to confirm the persistence layer rejects it. A successful
// mutation is a critical security event with admin notification. Admin only.
func (s *Service) VerifyReversalTamperResistance(ctx context.Context, actor Actor, actionID string) (*TamperProbeResult, error) {
	if err := s.guard.VerifyAdminRole(ctx, actor); err != nil {
		return nil, err
	}
	if err := ValidateUUID("action_id", actionID); err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !action.Reversed() {
		return nil, validationError("action_id", "action is not reversed; nothing to probe")
	}

	prober, ok := s.store.(TamperProber)
	if !ok {
		return nil, NewError(KindInvalidAction, "store does not support tamper probing")
	}

	result := &TamperProbeResult{ActionID: action.ID, Rejected: true}
	rejected, err := prober.AttemptRevocationOverwrite(ctx, action.ID, actor.ID, s.now())
	if err != nil {
		return nil, wrapUnexpected(err, "tamper probe")
	}
	if !rejected {
		result.Rejected = false
		result.Failures = append(result.Failures, "revocation fields accepted a direct overwrite")
		log.Error().
			Str("action_id", action.ID).
			Msg("moderation: tamper probe succeeded in mutating reversal fields")
		s.security.Record(ctx, EventReversalTamperAttemptSucceeded, actor.ID, map[string]any{
			"action_id": action.ID,
		})
		s.alert(ctx, string(EventReversalTamperAttemptSucceeded), "critical", map[string]any{
			"action_id": action.ID,
		})
	}
	return result, nil
}
