package user

import (
	"context"
	"time"
)

// Store describes persistence operations required by the credential subsystem.
//
// RecordFailedAttempt and ResetFailureCount must be atomic with respect to
// concurrent calls for the same user: two simultaneous failures both count.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash, securityStamp string) error

	RecordFailedAttempt(ctx context.Context, userID string, at time.Time, window time.Duration, maxAttempts int, lockout time.Duration) (LockoutState, error)
	ResetFailureCount(ctx context.Context, userID string) error

	CreateRole(ctx context.Context, role *Role) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}
