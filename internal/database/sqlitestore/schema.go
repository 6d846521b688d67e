package sqlitestore

import "database/sql"

// schema is applied on every open; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	suspended         INTEGER NOT NULL DEFAULT 0,
	suspended_until   TEXT,
	suspension_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS content (
	id           TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	owner_id     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id                TEXT PRIMARY KEY,
	reporter_id       TEXT NOT NULL,
	reported_user_id  TEXT NOT NULL DEFAULT '',
	report_type       TEXT NOT NULL,
	target_id         TEXT NOT NULL,
	reason            TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	priority          INTEGER NOT NULL,
	moderator_flagged INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	reviewed_by       TEXT NOT NULL DEFAULT '',
	reviewed_at       TEXT,
	resolution_notes  TEXT NOT NULL DEFAULT '',
	action_taken      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ix_reports_queue
	ON reports (moderator_flagged DESC, priority ASC, created_at ASC, id ASC);
CREATE INDEX IF NOT EXISTS ix_reports_reporter
	ON reports (reporter_id, created_at);
CREATE INDEX IF NOT EXISTS ix_reports_dupe
	ON reports (reporter_id, report_type, target_id, created_at);

CREATE TABLE IF NOT EXISTS actions (
	id                TEXT PRIMARY KEY,
	moderator_id      TEXT NOT NULL,
	target_user_id    TEXT NOT NULL DEFAULT '',
	action_type       TEXT NOT NULL,
	target_type       TEXT NOT NULL DEFAULT '',
	target_id         TEXT NOT NULL DEFAULT '',
	reason            TEXT NOT NULL,
	duration_days     INTEGER,
	expires_at        TEXT,
	related_report_id TEXT NOT NULL DEFAULT '',
	internal_notes    TEXT NOT NULL DEFAULT '',
	notification_id   TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	revoked_at        TEXT,
	revoked_by        TEXT NOT NULL DEFAULT '',
	reversal_reason   TEXT NOT NULL DEFAULT '',
	is_self_reversal  INTEGER NOT NULL DEFAULT 0,
	restriction_type  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ix_actions_moderator
	ON actions (moderator_id, created_at);
CREATE INDEX IF NOT EXISTS ix_actions_target
	ON actions (target_user_id, action_type, created_at);

CREATE TABLE IF NOT EXISTS action_state_changes (
	action_id      TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	timestamp      TEXT NOT NULL,
	action         TEXT NOT NULL,
	by_user_id     TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	is_self_action INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (action_id, seq)
);

CREATE TABLE IF NOT EXISTS restrictions (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	restriction_type  TEXT NOT NULL,
	expires_at        TEXT,
	is_active         INTEGER NOT NULL DEFAULT 1,
	reason            TEXT NOT NULL,
	applied_by        TEXT NOT NULL,
	related_action_id TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);

-- At most one active restriction per (user, type); the engine treats the
-- resulting conflict as the duplicate signal.
CREATE UNIQUE INDEX IF NOT EXISTS ux_restrictions_active
	ON restrictions (user_id, restriction_type) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS security_events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	details    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_security_events_time
	ON security_events (created_at DESC, id);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	related_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_notifications_user
	ON notifications (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications_meta (
	user_id   TEXT PRIMARY KEY,
	last_read TEXT NOT NULL
);
`

// revocationGuard rejects any UPDATE that touches the revocation fields of
// an already-revoked action outside the engine's single legal transition
// (null -> set). This is the store-level backstop the tamper probe verifies.
const revocationGuard = `
CREATE TRIGGER IF NOT EXISTS trg_actions_revocation_immutable
BEFORE UPDATE OF revoked_at, revoked_by, reversal_reason ON actions
FOR EACH ROW
WHEN OLD.revoked_at IS NOT NULL
BEGIN
	SELECT RAISE(ABORT, 'revocation fields are immutable once set');
END;
`

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(revocationGuard)
	return err
}
