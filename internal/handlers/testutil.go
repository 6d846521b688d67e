package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tremolo/internal/database/boltstore"
	"tremolo/internal/database/sqlitestore"
	"tremolo/internal/middleware"
	"tremolo/internal/moderation"
	"tremolo/internal/notify"
	"tremolo/internal/roles"
)

// testEnv wires a Handler over real stores in a temp directory.
type testEnv struct {
	handler *Handler
	store   *sqlitestore.ModerationStore
	content *sqlitestore.ContentStore

	adminID string
	modID   string
	userID  string

	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlitestore.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bolt, err := boltstore.Open(boltstore.Options{
		Path:    filepath.Join(dir, "sessions.db"),
		Timeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	env := &testEnv{
		adminID: uuid.NewString(),
		modID:   uuid.NewString(),
		userID:  uuid.NewString(),
		now:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	rolesPath := filepath.Join(dir, "roles.json")
	config := roles.Config{Grants: []roles.Grant{
		{UserID: env.adminID, Handle: "admin", Role: moderation.RoleAdmin},
		{UserID: env.modID, Handle: "mod", Role: moderation.RoleModerator},
	}}
	data, err := json.Marshal(config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rolesPath, data, 0600))

	roleService, err := roles.NewService(rolesPath)
	require.NoError(t, err)

	env.store = sqlitestore.NewModerationStore(db)
	env.content = sqlitestore.NewContentStore(db)
	notifications := sqlitestore.NewNotificationStore(db)

	service := moderation.NewService(env.store, roleService, moderation.Options{
		Notifier: notify.NewDispatcher(notifications, func() time.Time { return env.now }),
		Content:  env.content,
		Now:      func() time.Time { return env.now },
	})

	env.handler = NewHandler(service, roleService, bolt.SessionStore(), Config{})
	env.handler.SetNotifications(notifications)
	return env
}

// request performs a JSON request as the given user against a handler func,
// routing path values through a ServeMux pattern.
func (env *testEnv) request(t *testing.T, asUser, method, pattern, path string, body any, handlerFunc http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if asUser != "" {
		req = req.WithContext(middleware.WithAuthenticatedUser(req.Context(), asUser))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("%s %s", method, pattern), handlerFunc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// seedContent inserts a content row owned by the given user and returns its id.
func (env *testEnv) seedContent(t *testing.T, contentType moderation.ReportType, ownerID string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, env.content.Put(context.Background(), contentType, id, ownerID, env.now))
	return id
}

// decodeBody unmarshals a recorded JSON response body.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}
