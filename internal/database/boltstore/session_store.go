package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tremolo/internal/moderation"
)

// Session is a login session persisted across restarts.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore resolves session tokens to users using BoltDB for
// persistence. It implements moderation.IdentityProvider.
type SessionStore struct {
	db *bolt.DB
}

var _ moderation.IdentityProvider = (*SessionStore)(nil)

// CurrentUser returns the user id behind the session token, or an error if
// the session is missing or expired.
func (s *SessionStore) CurrentUser(ctx context.Context, token string) (string, error) {
	var session Session

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		data := bucket.Get([]byte(token))
		if data == nil {
			return fmt.Errorf("session not found")
		}

		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return "", err
	}

	if time.Now().After(session.ExpiresAt) {
		return "", fmt.Errorf("session expired")
	}

	return session.UserID, nil
}

// SaveSession persists a session (upsert operation).
func (s *SessionStore) SaveSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		return bucket.Put([]byte(sess.Token), data)
	})
}

// DeleteSession removes a session by token.
func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		return bucket.Delete([]byte(token))
	})
}

// DeleteAllSessionsForUser removes every session belonging to a user.
// Useful for "logout from all devices" functionality.
func (s *SessionStore) DeleteAllSessionsForUser(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		// Collect keys to delete (can't delete while iterating)
		var keysToDelete [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var session Session
			if err := json.Unmarshal(v, &session); err != nil {
				return nil
			}
			if session.UserID == userID {
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// CountSessions returns the number of stored sessions.
func (s *SessionStore) CountSessions(ctx context.Context) (int, error) {
	var count int

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		count = bucket.Stats().KeyN
		return nil
	})

	return count, err
}

// PurgeExpired deletes sessions whose expiry has passed.
func (s *SessionStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var purged int

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		var keysToDelete [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var session Session
			if err := json.Unmarshal(v, &session); err != nil {
				// Drop malformed entries too
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
				return nil
			}
			if now.After(session.ExpiresAt) {
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		purged = len(keysToDelete)

		return nil
	})

	return purged, err
}
