package user

import (
	"context"
	"errors"
	"fmt"

	"lumenid.org/internal/ids"
)

// Role names provisioned on startup.
const (
	RoleAdmin          = "admin"
	RoleProjectManager = "project_manager"
	RoleModerator      = "moderator"
	RoleClient         = "client"
)

// SeedRoles are provisioned on startup.
var SeedRoles = []string{RoleAdmin, RoleProjectManager, RoleModerator, RoleClient}

// SeedUser describes a fixed account inserted at startup when missing.
type SeedUser struct {
	Email    string
	Password string
	Role     string
}

// DefaultSeedUsers mirror the provisioning data the service ships with.
var DefaultSeedUsers = []SeedUser{
	{Email: "client@test.com", Password: "password", Role: RoleClient},
}

// Seed inserts the fixed roles and users. It is idempotent: existing roles
// and accounts are left untouched.
func Seed(ctx context.Context, svc *Service, seedUsers []SeedUser) error {
	for _, name := range SeedRoles {
		_, err := svc.store.FindRoleByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
		role := &Role{ID: ids.New(), Name: name, CreatedAt: svc.now().UTC()}
		if err := svc.store.CreateRole(ctx, role); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	for _, seed := range seedUsers {
		existing, err := svc.store.FindByEmail(ctx, NormalizeEmail(seed.Email))
		if err == nil {
			if seed.Role != "" {
				if err := svc.AssignRole(ctx, existing.ID, seed.Role); err != nil {
					return fmt.Errorf("seed user %s: %w", seed.Email, err)
				}
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("seed user %s: %w", seed.Email, err)
		}
		u, err := svc.Register(ctx, seed.Email, seed.Password)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", seed.Email, err)
		}
		if seed.Role != "" {
			if err := svc.AssignRole(ctx, u.ID, seed.Role); err != nil {
				return fmt.Errorf("seed user %s: %w", seed.Email, err)
			}
		}
	}
	return nil
}
