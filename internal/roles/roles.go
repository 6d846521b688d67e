// Package roles resolves staff role grants from a JSON config file.
package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"tremolo/internal/moderation"
)

// Grant assigns a role to a user.
type Grant struct {
	UserID string          `json:"user_id"`
	Handle string          `json:"handle,omitempty"`
	Role   moderation.Role `json:"role"`
	Note   string          `json:"note,omitempty"`
}

// Config is the role configuration loaded from JSON.
type Config struct {
	Grants []Grant `json:"grants"`
}

// Validate checks that the config is valid.
func (c *Config) Validate() error {
	for _, g := range c.Grants {
		if g.UserID == "" {
			return &ConfigError{Field: "grants", Message: "grant with empty user_id"}
		}
		switch g.Role {
		case moderation.RoleModerator, moderation.RoleAdmin:
		default:
			return &ConfigError{
				Field:   "grants",
				Message: "user " + g.UserID + " references unknown role: " + string(g.Role),
			}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "roles config error in " + e.Field + ": " + e.Message
}

// Service provides role lookups with config reload support.
type Service struct {
	mu         sync.RWMutex
	config     *Config
	configPath string

	// Quick lookup map built from config
	userRoles map[string][]moderation.Role
}

var _ moderation.RoleProvider = (*Service)(nil)

// NewService creates a new role service.
// If configPath is empty, the service will be in "disabled" mode
// where every user resolves to no roles.
func NewService(configPath string) (*Service, error) {
	s := &Service{
		configPath: configPath,
		userRoles:  make(map[string][]moderation.Role),
	}

	if configPath == "" {
		log.Info().Msg("roles: no config path provided, service disabled")
		return s, nil
	}

	if err := s.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load roles config: %w", err)
	}

	return s, nil
}

// loadConfig reads and parses the config file
func (s *Service) loadConfig() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", s.configPath).Msg("roles: config file not found, service disabled")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &config
	s.rebuildLookupMap()

	log.Info().
		Int("grants", len(config.Grants)).
		Str("path", s.configPath).
		Msg("roles: config loaded")

	return nil
}

// rebuildLookupMap rebuilds the quick lookup map from config
// Caller must hold the write lock
func (s *Service) rebuildLookupMap() {
	s.userRoles = make(map[string][]moderation.Role)

	if s.config == nil {
		return
	}

	for _, g := range s.config.Grants {
		s.userRoles[g.UserID] = append(s.userRoles[g.UserID], g.Role)
	}
}

// Reload reloads the configuration from disk
func (s *Service) Reload() error {
	if s.configPath == "" {
		return nil
	}
	return s.loadConfig()
}

// IsEnabled returns true if the service is configured with at least one grant
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config != nil && len(s.config.Grants) > 0
}

// ActiveRoles returns the role grants for the given user. A user with no
// grants yields an empty slice, never an error.
func (s *Service) ActiveRoles(ctx context.Context, userID string) ([]moderation.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants, ok := s.userRoles[userID]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent external modification
	result := make([]moderation.Role, len(grants))
	copy(result, grants)
	return result, nil
}

// ListGrants returns all configured grants.
func (s *Service) ListGrants() []Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil
	}

	result := make([]Grant, len(s.config.Grants))
	copy(result, s.config.Grants)
	return result
}
