package moderation

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Actor is the resolved caller of an engine operation.
type Actor struct {
	ID string
}

// Guard enforces the authorization hierarchy: moderators can act on ordinary
// users, admins can act on anyone, and nobody below admin can act on an
// admin target.
type Guard struct {
	roles    RoleProvider
	security *SecurityLog
}

// NewGuard creates a Guard over the given role provider. The security log
// records admin-target violations; it may be nil in tests.
func NewGuard(roles RoleProvider, security *SecurityLog) *Guard {
	return &Guard{roles: roles, security: security}
}

func (g *Guard) hasRole(ctx context.Context, userID string, want Role) (bool, error) {
	roles, err := g.roles.ActiveRoles(ctx, userID)
	if err != nil {
		return false, wrapUnexpected(err, "resolve roles")
	}
	for _, r := range roles {
		if r == want {
			return true, nil
		}
	}
	return false, nil
}

// IsModeratorOrAdmin reports whether the user holds either role. An empty
// grant set yields false, never an error.
func (g *Guard) IsModeratorOrAdmin(ctx context.Context, userID string) (bool, error) {
	if ok, err := g.hasRole(ctx, userID, RoleModerator); err != nil || ok {
		return ok, err
	}
	return g.hasRole(ctx, userID, RoleAdmin)
}

// IsAdmin reports whether the user holds the admin role.
func (g *Guard) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return g.hasRole(ctx, userID, RoleAdmin)
}

// VerifyAuthenticated fails Unauthorized for an empty actor.
func (g *Guard) VerifyAuthenticated(actor Actor) error {
	if actor.ID == "" {
		return NewError(KindUnauthorized, "authentication required")
	}
	return nil
}

// VerifyModeratorRole fails Unauthorized for an empty actor and
// InsufficientPermissions for an actor without moderator or admin role.
func (g *Guard) VerifyModeratorRole(ctx context.Context, actor Actor) error {
	if err := g.VerifyAuthenticated(actor); err != nil {
		return err
	}
	ok, err := g.IsModeratorOrAdmin(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(KindInsufficientPermissions, "moderator role required")
	}
	return nil
}

// VerifyAdminRole fails Unauthorized for an empty actor and
// InsufficientPermissions for a non-admin.
func (g *Guard) VerifyAdminRole(ctx context.Context, actor Actor) error {
	if err := g.VerifyAuthenticated(actor); err != nil {
		return err
	}
	ok, err := g.IsAdmin(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(KindInsufficientPermissions, "admin role required")
	}
	return nil
}

// VerifyNotAdminTarget enforces admin-target protection: if the target holds
// an admin role, only an admin actor may proceed. A moderator attempting it
// is recorded as a security event and fails InsufficientPermissions.
func (g *Guard) VerifyNotAdminTarget(ctx context.Context, actor Actor, targetUserID string) error {
	if targetUserID == "" {
		return nil
	}
	targetIsAdmin, err := g.IsAdmin(ctx, targetUserID)
	if err != nil {
		return err
	}
	if !targetIsAdmin {
		return nil
	}
	actorIsAdmin, err := g.IsAdmin(ctx, actor.ID)
	if err != nil {
		return err
	}
	if actorIsAdmin {
		return nil
	}

	log.Warn().
		Str("actor", actor.ID).
		Str("target", targetUserID).
		Msg("moderation: non-admin attempted action on admin target")
	if g.security != nil {
		g.security.Record(ctx, EventUnauthorizedActionOnAdminTarget, actor.ID, map[string]any{
			"target_user_id": targetUserID,
		})
	}
	return NewError(KindInsufficientPermissions, "cannot act on an admin account")
}
