package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSessionStore(t *testing.T) *SessionStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store.SessionStore()
}

func TestSessionStore_CurrentUser(t *testing.T) {
	store := setupTestSessionStore(t)
	ctx := context.Background()

	t.Run("valid session resolves user", func(t *testing.T) {
		err := store.SaveSession(ctx, Session{
			Token:     "tok-1",
			UserID:    "user-1",
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		userID, err := store.CurrentUser(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		_, err := store.CurrentUser(ctx, "no-such-token")
		assert.Error(t, err)
	})

	t.Run("expired session fails", func(t *testing.T) {
		err := store.SaveSession(ctx, Session{
			Token:     "tok-expired",
			UserID:    "user-2",
			CreatedAt: time.Now().Add(-2 * time.Hour),
			ExpiresAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		_, err = store.CurrentUser(ctx, "tok-expired")
		assert.Error(t, err)
	})
}

func TestSessionStore_DeleteSession(t *testing.T) {
	store := setupTestSessionStore(t)
	ctx := context.Background()

	err := store.SaveSession(ctx, Session{
		Token:     "tok-del",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "tok-del"))

	_, err = store.CurrentUser(ctx, "tok-del")
	assert.Error(t, err)
}

func TestSessionStore_DeleteAllSessionsForUser(t *testing.T) {
	store := setupTestSessionStore(t)
	ctx := context.Background()

	for _, tok := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveSession(ctx, Session{
			Token:     tok,
			UserID:    "user-multi",
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}
	require.NoError(t, store.SaveSession(ctx, Session{
		Token:     "other",
		UserID:    "user-other",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, store.DeleteAllSessionsForUser(ctx, "user-multi"))

	count, err := store.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	userID, err := store.CurrentUser(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "user-other", userID)
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	store := setupTestSessionStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveSession(ctx, Session{
		Token:     "live",
		UserID:    "u1",
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.SaveSession(ctx, Session{
		Token:     "dead",
		UserID:    "u2",
		ExpiresAt: now.Add(-time.Minute),
	}))

	purged, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	count, err := store.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
