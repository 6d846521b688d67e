package roles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremolo/internal/moderation"
)

func TestNewService_NoConfig(t *testing.T) {
	// Service should work in disabled mode with empty config path
	svc, err := NewService("")
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.False(t, svc.IsEnabled())

	roles, err := svc.ActiveRoles(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestNewService_MissingFile(t *testing.T) {
	// Service should work in disabled mode when file doesn't exist
	svc, err := NewService("/nonexistent/path/roles.json")
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.False(t, svc.IsEnabled())
}

func TestNewService_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roles.json")

	err := os.WriteFile(configPath, []byte("not valid json"), 0644)
	require.NoError(t, err)

	_, err = NewService(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestNewService_InvalidRole(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roles.json")

	config := `{
		"grants": [
			{"user_id": "user-1", "role": "overlord"}
		]
	}`

	err := os.WriteFile(configPath, []byte(config), 0644)
	require.NoError(t, err)

	_, err = NewService(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func createTestService(t *testing.T) *Service {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roles.json")

	config := `{
		"grants": [
			{"user_id": "admin-1", "handle": "admin.test", "role": "admin", "note": "Test admin"},
			{"user_id": "mod-1", "handle": "mod.test", "role": "moderator"}
		]
	}`

	err := os.WriteFile(configPath, []byte(config), 0644)
	require.NoError(t, err)

	svc, err := NewService(configPath)
	require.NoError(t, err)
	return svc
}

func TestService_ActiveRoles(t *testing.T) {
	svc := createTestService(t)
	ctx := context.Background()

	assert.True(t, svc.IsEnabled())

	roles, err := svc.ActiveRoles(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []moderation.Role{moderation.RoleAdmin}, roles)

	roles, err = svc.ActiveRoles(ctx, "mod-1")
	require.NoError(t, err)
	assert.Equal(t, []moderation.Role{moderation.RoleModerator}, roles)

	roles, err = svc.ActiveRoles(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestService_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roles.json")

	initial := `{"grants": [{"user_id": "mod-1", "role": "moderator"}]}`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0644))

	svc, err := NewService(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	roles, err := svc.ActiveRoles(ctx, "mod-2")
	require.NoError(t, err)
	assert.Empty(t, roles)

	updated := `{"grants": [
		{"user_id": "mod-1", "role": "moderator"},
		{"user_id": "mod-2", "role": "moderator"}
	]}`
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))
	require.NoError(t, svc.Reload())

	roles, err = svc.ActiveRoles(ctx, "mod-2")
	require.NoError(t, err)
	assert.Equal(t, []moderation.Role{moderation.RoleModerator}, roles)

	assert.Len(t, svc.ListGrants(), 2)
}
