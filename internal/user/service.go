package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lumenid.org/internal/ids"
)

const (
	defaultMaxFailedAttempts = 5
	defaultFailureWindow     = 10 * time.Minute
	defaultLockoutDuration   = 15 * time.Minute
	minPasswordLength        = 4
)

// Service verifies credentials and manages accounts on top of a Store.
type Service struct {
	store Store
	now   func() time.Time

	maxFailedAttempts int
	failureWindow     time.Duration
	lockoutDuration   time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithLockoutPolicy overrides the failure threshold and lockout duration.
func WithLockoutPolicy(maxAttempts int, window, lockout time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxFailedAttempts = maxAttempts
		}
		if window > 0 {
			s.failureWindow = window
		}
		if lockout > 0 {
			s.lockoutDuration = lockout
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a credential service with optional configuration.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{
		store:             store,
		now:               time.Now,
		maxFailedAttempts: defaultMaxFailedAttempts,
		failureWindow:     defaultFailureWindow,
		lockoutDuration:   defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// VerifyCredentials checks email/password and returns the account on success.
//
// Every failure path returns ErrInvalidCredentials: an unknown email, a wrong
// password, a disabled account and an active lockout are indistinguishable to
// the caller. A wrong password against a locked account still counts toward
// the failure counter; a correct password against a locked account does not
// reset it.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			// Burn a hash comparison so unknown accounts take as long as
			// known ones with a wrong password.
			equalizeCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	now := s.now().UTC()
	if u.Status != StatusActive {
		equalizeCompare(password)
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		if _, rerr := s.store.RecordFailedAttempt(ctx, u.ID, now, s.failureWindow, s.maxFailedAttempts, s.lockoutDuration); rerr != nil {
			return nil, rerr
		}
		return nil, ErrInvalidCredentials
	}
	if u.Locked(now) {
		return nil, ErrInvalidCredentials
	}
	if err := s.store.ResetFailureCount(ctx, u.ID); err != nil {
		return nil, err
	}
	roles, err := s.store.RolesForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

// Register creates a new active account with a hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:            ids.New(),
		Email:         email,
		PasswordHash:  hash,
		SecurityStamp: ids.New(),
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword rehashes the credential and rotates the security stamp,
// invalidating anything bound to the previous stamp.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash, ids.New())
}

// Find loads an account by id with its roles resolved.
func (s *Service) Find(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.RolesForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

// AssignRole adds the named role to the user, creating the role if needed.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	roleName = strings.TrimSpace(strings.ToLower(roleName))
	if roleName == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err == ErrNotFound {
		role = &Role{ID: ids.New(), Name: roleName, CreatedAt: s.now().UTC()}
		if err := s.store.CreateRole(ctx, role); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return s.store.AssignRole(ctx, userID, role.ID)
}

// NormalizeEmail lower-cases and trims an email identifier.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
