package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tremolo/internal/moderation"
)

// NotificationStore persists in-app notifications.
type NotificationStore struct {
	db *sql.DB
}

// NewNotificationStore creates a NotificationStore backed by the given database.
func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create stores a notification for the target user.
func (s *NotificationStore) Create(ctx context.Context, n *moderation.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, data, related_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Message, marshalDetails(n.Data), n.RelatedID, fmtTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns notifications for a user, newest first, with cursor-based
// pagination. Returns notifications, next cursor, and error.
func (s *NotificationStore) List(ctx context.Context, userID string, limit int, cursor string) ([]*moderation.Notification, string, error) {
	if limit <= 0 {
		limit = 20
	}

	lastRead := s.getLastRead(ctx, userID)

	var args []any
	query := `SELECT id, title, message, data, related_id, created_at
		FROM notifications WHERE user_id = ?`
	args = append(args, userID)

	if cursor != "" {
		query += ` AND created_at < ?`
		args = append(args, cursor)
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	// Fetch one extra to determine if there's a next page
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var notifications []*moderation.Notification
	for rows.Next() {
		var n moderation.Notification
		var dataStr, createdAtStr string
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &dataStr, &n.RelatedID, &createdAtStr); err != nil {
			continue
		}
		n.UserID = userID
		n.Data = unmarshalDetails(dataStr)
		n.CreatedAt = parseTime(createdAtStr)

		if !lastRead.IsZero() && !n.CreatedAt.After(lastRead) {
			n.Read = true
		}

		notifications = append(notifications, &n)
	}

	var nextCursor string
	if len(notifications) > limit {
		last := notifications[limit-1]
		nextCursor = last.CreatedAt.Format(time.RFC3339Nano)
		notifications = notifications[:limit]
	}

	return notifications, nextCursor, rows.Err()
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) int {
	if userID == "" {
		return 0
	}

	lastRead := s.getLastRead(ctx, userID)

	var count int
	if lastRead.IsZero() {
		_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ?`, userID).Scan(&count)
	} else {
		_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at > ?`,
			userID, lastRead.Format(time.RFC3339Nano)).Scan(&count)
	}

	return count
}

// MarkAllRead updates the last_read timestamp to now for the user.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO notifications_meta (user_id, last_read) VALUES (?, ?)`,
		userID, fmtTime(now))
	return err
}

func (s *NotificationStore) getLastRead(ctx context.Context, userID string) time.Time {
	var lastReadStr string
	err := s.db.QueryRowContext(ctx, `SELECT last_read FROM notifications_meta WHERE user_id = ?`, userID).Scan(&lastReadStr)
	if err != nil {
		return time.Time{}
	}
	return parseTime(lastReadStr)
}
