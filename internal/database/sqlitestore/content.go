package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tremolo/internal/moderation"
)

// ContentStore resolves and removes content rows for moderation.
type ContentStore struct {
	db *sql.DB
}

// NewContentStore creates a ContentStore backed by the given database.
func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{db: db}
}

var _ moderation.ContentDeleter = (*ContentStore)(nil)

// Put records a content row. Used by intake paths and tests.
func (s *ContentStore) Put(ctx context.Context, contentType moderation.ReportType, id, ownerID string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, content_type, owner_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			owner_id     = excluded.owner_id
	`, id, string(contentType), ownerID, fmtTime(createdAt))
	if err != nil {
		return fmt.Errorf("put content: %w", err)
	}
	return nil
}

// Delete removes the content row. Idempotent: deleting absent content
// returns zero affected rows.
func (s *ContentStore) Delete(ctx context.Context, contentType moderation.ReportType, contentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM content WHERE id = ? AND content_type = ?
	`, contentID, string(contentType))
	if err != nil {
		return 0, fmt.Errorf("delete content: %w", err)
	}
	return res.RowsAffected()
}

// OwnerOf resolves the owning user of a piece of content; empty string if
// the content is gone.
func (s *ContentStore) OwnerOf(ctx context.Context, contentType moderation.ReportType, contentID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id FROM content WHERE id = ? AND content_type = ?
	`, contentID, string(contentType)).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ownerID, nil
}
