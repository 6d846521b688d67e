package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tremolo/internal/moderation"
)

// ModerationStore implements moderation.Store using SQLite. It shares the
// database connection with the other stores in this package.
type ModerationStore struct {
	db *sql.DB
}

// NewModerationStore creates a ModerationStore backed by the given database.
// The database must already have the schema applied.
func NewModerationStore(db *sql.DB) *ModerationStore {
	return &ModerationStore{db: db}
}

// Ensure ModerationStore implements the interfaces at compile time.
var (
	_ moderation.Store        = (*ModerationStore)(nil)
	_ moderation.TamperProber = (*ModerationStore)(nil)
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fmtNullTime renders a nullable timestamp for binding.
func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ========== Reports ==========

func (s *ModerationStore) CreateReport(ctx context.Context, report *moderation.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports
			(id, reporter_id, reported_user_id, report_type, target_id, reason, description,
			 status, priority, moderator_flagged, created_at, reviewed_by, reviewed_at,
			 resolution_notes, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, report.ReporterID, report.ReportedUserID, string(report.ReportType), report.TargetID,
		string(report.Reason), report.Description, string(report.Status), report.Priority,
		boolInt(report.ModeratorFlagged), fmtTime(report.CreatedAt), report.ReviewedBy,
		fmtNullTime(report.ReviewedAt), report.ResolutionNotes, string(report.ActionTaken))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

const reportColumns = `id, reporter_id, reported_user_id, report_type, target_id, reason, description,
	status, priority, moderator_flagged, created_at, reviewed_by, reviewed_at, resolution_notes, action_taken`

func scanReport(row interface{ Scan(...any) error }) (*moderation.Report, error) {
	var r moderation.Report
	var flagged int
	var createdAtStr string
	var reviewedAtStr sql.NullString
	err := row.Scan(&r.ID, &r.ReporterID, &r.ReportedUserID, &r.ReportType, &r.TargetID,
		&r.Reason, &r.Description, &r.Status, &r.Priority, &flagged,
		&createdAtStr, &r.ReviewedBy, &reviewedAtStr, &r.ResolutionNotes, &r.ActionTaken)
	if err != nil {
		return nil, err
	}
	r.ModeratorFlagged = flagged == 1
	r.CreatedAt = parseTime(createdAtStr)
	r.ReviewedAt = parseNullTime(reviewedAtStr)
	return &r, nil
}

func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ModerationStore) ListQueue(ctx context.Context, filter moderation.QueueFilter) ([]*moderation.Report, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != 0 {
		clauses = append(clauses, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.ModeratorFlagged != nil {
		clauses = append(clauses, "moderator_flagged = ?")
		args = append(args, boolInt(*filter.ModeratorFlagged))
	}
	if filter.ReportType != "" {
		clauses = append(clauses, "report_type = ?")
		args = append(args, string(filter.ReportType))
	}
	if !filter.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at > ?")
		args = append(args, fmtTime(filter.CreatedAfter))
	}
	if !filter.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, fmtTime(filter.CreatedBefore))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY moderator_flagged DESC, priority ASC, created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*moderation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *ModerationStore) ResolveReport(ctx context.Context, id string, status moderation.ReportStatus, reviewedBy string, reviewedAt time.Time, notes string, actionTaken moderation.ActionType) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = ?, reviewed_by = ?, reviewed_at = ?, resolution_notes = ?, action_taken = ?
		WHERE id = ? AND status IN ('pending', 'under_review')
	`, string(status), reviewedBy, fmtTime(reviewedAt), notes, string(actionTaken), id)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("report not found or already resolved: %s", id)
	}
	return nil
}

func (s *ModerationStore) FindRecentReport(ctx context.Context, reporterID string, reportType moderation.ReportType, targetID string, since time.Time) (*moderation.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE reporter_id = ? AND report_type = ? AND target_id = ? AND created_at > ?
		ORDER BY created_at DESC LIMIT 1
	`, reporterID, string(reportType), targetID, fmtTime(since))
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ModerationStore) CountReportsBy(ctx context.Context, reporterID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports WHERE reporter_id = ? AND created_at > ?
	`, reporterID, fmtTime(since)).Scan(&count)
	return count, err
}

func (s *ModerationStore) ListReportsSince(ctx context.Context, since time.Time) ([]*moderation.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports WHERE created_at > ? ORDER BY created_at ASC
	`, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*moderation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ========== Actions ==========

const actionColumns = `id, moderator_id, target_user_id, action_type, target_type, target_id, reason,
	duration_days, expires_at, related_report_id, internal_notes, notification_id, created_at,
	revoked_at, revoked_by, reversal_reason, is_self_reversal, restriction_type`

func (s *ModerationStore) CreateAction(ctx context.Context, action *moderation.Action) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions
			(id, moderator_id, target_user_id, action_type, target_type, target_id, reason,
			 duration_days, expires_at, related_report_id, internal_notes, notification_id, created_at,
			 revoked_at, revoked_by, reversal_reason, is_self_reversal, restriction_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, action.ID, action.ModeratorID, action.TargetUserID, string(action.ActionType),
		string(action.TargetType), action.TargetID, action.Reason, action.DurationDays,
		fmtNullTime(action.ExpiresAt), action.RelatedReportID, action.InternalNotes,
		action.NotificationID, fmtTime(action.CreatedAt), fmtNullTime(action.RevokedAt),
		action.RevokedBy, action.Metadata.ReversalReason, boolInt(action.Metadata.IsSelfReversal),
		string(action.Metadata.RestrictionType))
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func scanAction(row interface{ Scan(...any) error }) (*moderation.Action, error) {
	var a moderation.Action
	var durationDays sql.NullInt64
	var createdAtStr string
	var expiresAtStr, revokedAtStr sql.NullString
	var selfReversal int
	err := row.Scan(&a.ID, &a.ModeratorID, &a.TargetUserID, &a.ActionType, &a.TargetType,
		&a.TargetID, &a.Reason, &durationDays, &expiresAtStr, &a.RelatedReportID,
		&a.InternalNotes, &a.NotificationID, &createdAtStr, &revokedAtStr, &a.RevokedBy,
		&a.Metadata.ReversalReason, &selfReversal, &a.Metadata.RestrictionType)
	if err != nil {
		return nil, err
	}
	if durationDays.Valid {
		d := int(durationDays.Int64)
		a.DurationDays = &d
	}
	a.CreatedAt = parseTime(createdAtStr)
	a.ExpiresAt = parseNullTime(expiresAtStr)
	a.RevokedAt = parseNullTime(revokedAtStr)
	a.Metadata.IsSelfReversal = selfReversal == 1
	a.NotificationSent = a.NotificationID != ""
	return &a, nil
}

func (s *ModerationStore) GetAction(ctx context.Context, id string) (*moderation.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *ModerationStore) MarkActionRevoked(ctx context.Context, id string, revokedBy string, revokedAt time.Time, reversalReason string, isSelfReversal bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE actions
		SET revoked_at = ?, revoked_by = ?, reversal_reason = ?, is_self_reversal = ?
		WHERE id = ? AND revoked_at IS NULL
	`, fmtTime(revokedAt), revokedBy, reversalReason, boolInt(isSelfReversal), id)
	if err != nil {
		return fmt.Errorf("mark action revoked: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("action not found or already revoked: %s", id)
	}
	return nil
}

// AttemptRevocationOverwrite issues a deliberately unguarded UPDATE against
// an already-revoked action's revocation fields. With the immutability
// trigger in place the statement must fail; rejected reports whether the
// store refused the write.
func (s *ModerationStore) AttemptRevocationOverwrite(ctx context.Context, actionID string, revokedBy string, revokedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE actions SET revoked_at = ?, revoked_by = ? WHERE id = ?
	`, fmtTime(revokedAt), revokedBy, actionID)
	if err != nil {
		if strings.Contains(err.Error(), "immutable") || strings.Contains(err.Error(), "ABORT") {
			return true, nil
		}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 0, nil
}

func (s *ModerationStore) SetActionNotification(ctx context.Context, id string, notificationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE actions SET notification_id = ? WHERE id = ?
	`, notificationID, id)
	return err
}

func (s *ModerationStore) CountActionsBy(ctx context.Context, moderatorID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM actions WHERE moderator_id = ? AND created_at > ?
	`, moderatorID, fmtTime(since)).Scan(&count)
	return count, err
}

func (s *ModerationStore) listActions(ctx context.Context, clause string, args ...any) ([]*moderation.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*moderation.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			continue
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *ModerationStore) ListActionsSince(ctx context.Context, since time.Time) ([]*moderation.Action, error) {
	return s.listActions(ctx, `WHERE created_at > ? ORDER BY created_at ASC`, fmtTime(since))
}

func (s *ModerationStore) ListActionsByTarget(ctx context.Context, targetUserID string) ([]*moderation.Action, error) {
	return s.listActions(ctx, `WHERE target_user_id = ? ORDER BY created_at DESC`, targetUserID)
}

func (s *ModerationStore) FindActiveActionByType(ctx context.Context, targetUserID string, actionType moderation.ActionType) (*moderation.Action, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+actionColumns+` FROM actions
		WHERE target_user_id = ? AND action_type = ? AND revoked_at IS NULL
		ORDER BY created_at DESC LIMIT 1
	`, targetUserID, string(actionType))
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ========== State change log ==========

func (s *ModerationStore) AppendStateChange(ctx context.Context, actionID string, entry moderation.StateChangeEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_state_changes (action_id, seq, timestamp, action, by_user_id, reason, is_self_action)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM action_state_changes WHERE action_id = ?), ?, ?, ?, ?, ?)
	`, actionID, actionID, fmtTime(entry.Timestamp), string(entry.Action), entry.ByUserID,
		entry.Reason, boolInt(entry.IsSelfAction))
	if err != nil {
		return fmt.Errorf("append state change: %w", err)
	}
	return nil
}

func (s *ModerationStore) ListStateChanges(ctx context.Context, actionID string) ([]moderation.StateChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, action, by_user_id, reason, is_self_action
		FROM action_state_changes WHERE action_id = ? ORDER BY seq ASC
	`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []moderation.StateChangeEntry
	for rows.Next() {
		var e moderation.StateChangeEntry
		var timestampStr string
		var selfAction int
		if err := rows.Scan(&timestampStr, &e.Action, &e.ByUserID, &e.Reason, &selfAction); err != nil {
			continue
		}
		e.Timestamp = parseTime(timestampStr)
		e.IsSelfAction = selfAction == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ========== Restrictions ==========

const restrictionColumns = `id, user_id, restriction_type, expires_at, is_active, reason, applied_by, related_action_id, created_at`

func (s *ModerationStore) CreateRestriction(ctx context.Context, r *moderation.Restriction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restrictions
			(id, user_id, restriction_type, expires_at, is_active, reason, applied_by, related_action_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, string(r.RestrictionType), fmtNullTime(r.ExpiresAt), boolInt(r.IsActive),
		r.Reason, r.AppliedBy, r.RelatedActionID, fmtTime(r.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			existing, ferr := s.FindActiveRestriction(ctx, r.UserID, r.RestrictionType)
			if ferr == nil && existing != nil {
				return &moderation.RestrictionConflictError{Existing: existing}
			}
		}
		return fmt.Errorf("create restriction: %w", err)
	}
	return nil
}

func scanRestriction(row interface{ Scan(...any) error }) (*moderation.Restriction, error) {
	var r moderation.Restriction
	var active int
	var createdAtStr string
	var expiresAtStr sql.NullString
	err := row.Scan(&r.ID, &r.UserID, &r.RestrictionType, &expiresAtStr, &active,
		&r.Reason, &r.AppliedBy, &r.RelatedActionID, &createdAtStr)
	if err != nil {
		return nil, err
	}
	r.IsActive = active == 1
	r.ExpiresAt = parseNullTime(expiresAtStr)
	r.CreatedAt = parseTime(createdAtStr)
	return &r, nil
}

func (s *ModerationStore) FindActiveRestriction(ctx context.Context, userID string, t moderation.RestrictionType) (*moderation.Restriction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+restrictionColumns+` FROM restrictions
		WHERE user_id = ? AND restriction_type = ? AND is_active = 1
	`, userID, string(t))
	r, err := scanRestriction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ModerationStore) ListActiveRestrictions(ctx context.Context, userID string) ([]*moderation.Restriction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+restrictionColumns+` FROM restrictions
		WHERE user_id = ? AND is_active = 1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restrictions []*moderation.Restriction
	for rows.Next() {
		r, err := scanRestriction(rows)
		if err != nil {
			continue
		}
		restrictions = append(restrictions, r)
	}
	return restrictions, rows.Err()
}

func (s *ModerationStore) DeactivateRestriction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE restrictions SET is_active = 0 WHERE id = ? AND is_active = 1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate restriction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("restriction not found or already inactive: %s", id)
	}
	return nil
}

// ========== Users ==========

func (s *ModerationStore) GetUser(ctx context.Context, id string) (*moderation.User, error) {
	var u moderation.User
	var suspended int
	var untilStr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, suspended, suspended_until, suspension_reason FROM users WHERE id = ?
	`, id).Scan(&u.ID, &suspended, &untilStr, &u.SuspensionReason)
	if err == sql.ErrNoRows {
		// Accounts live upstream; an absent row means no suspension state yet.
		return &moderation.User{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	u.Suspended = suspended == 1
	u.SuspendedUntil = parseNullTime(untilStr)
	return &u, nil
}

func (s *ModerationStore) SetUserSuspension(ctx context.Context, id string, until *time.Time, reason string, suspended bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, suspended, suspended_until, suspension_reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			suspended         = excluded.suspended,
			suspended_until   = excluded.suspended_until,
			suspension_reason = excluded.suspension_reason
	`, id, boolInt(suspended), fmtNullTime(until), reason)
	if err != nil {
		return fmt.Errorf("set user suspension: %w", err)
	}
	return nil
}

// ========== Security events ==========

func (s *ModerationStore) AppendSecurityEvent(ctx context.Context, event *moderation.SecurityEvent) error {
	details := marshalDetails(event.Details)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, user_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, string(event.EventType), event.UserID, details, fmtTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

func (s *ModerationStore) ListSecurityEvents(ctx context.Context, limit int, cursor string) ([]*moderation.SecurityEvent, string, error) {
	query := `
		SELECT id, event_type, user_id, details, created_at
		FROM security_events`
	var args []any
	if cursor != "" {
		createdAt, id, ok := strings.Cut(cursor, "|")
		if !ok {
			return nil, "", fmt.Errorf("invalid cursor: %q", cursor)
		}
		query += ` WHERE created_at < ? OR (created_at = ? AND id < ?)`
		args = append(args, createdAt, createdAt, id)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var events []*moderation.SecurityEvent
	var rawCreatedAt []string
	for rows.Next() {
		var e moderation.SecurityEvent
		var detailsStr, createdAtStr string
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &detailsStr, &createdAtStr); err != nil {
			continue
		}
		e.Details = unmarshalDetails(detailsStr)
		e.CreatedAt = parseTime(createdAtStr)
		rawCreatedAt = append(rawCreatedAt, createdAtStr)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(events) > limit {
		events = events[:limit]
		next = rawCreatedAt[limit-1] + "|" + events[limit-1].ID
	}
	return events, next, nil
}

// ========== Gauge counts ==========

// CountPendingReports returns the number of reports awaiting triage.
func (s *ModerationStore) CountPendingReports(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE status IN ('pending', 'under_review')`).Scan(&count)
	return count, err
}

// CountPendingByPriority returns pending report counts keyed by priority.
func (s *ModerationStore) CountPendingByPriority(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*) FROM reports
		WHERE status IN ('pending', 'under_review')
		GROUP BY priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var priority, count int
		if err := rows.Scan(&priority, &count); err != nil {
			continue
		}
		counts[priority] = count
	}
	return counts, rows.Err()
}

// CountActiveRestrictions returns the number of active restriction rows.
func (s *ModerationStore) CountActiveRestrictions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM restrictions WHERE is_active = 1`).Scan(&count)
	return count, err
}

// CountSuspendedUsers returns the number of currently suspended users.
func (s *ModerationStore) CountSuspendedUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE suspended = 1`).Scan(&count)
	return count, err
}

func marshalDetails(details map[string]any) string {
	if len(details) == 0 {
		return "{}"
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalDetails(s string) map[string]any {
	var details map[string]any
	_ = json.Unmarshal([]byte(s), &details)
	return details
}
