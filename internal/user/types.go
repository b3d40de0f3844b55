package user

import "time"

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is an interactive account. Accounts are never deleted, only disabled.
type User struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	PasswordHash   string            `json:"-"`
	SecurityStamp  string            `json:"-"`
	Status         string            `json:"status"`
	FailedAttempts int               `json:"-"`
	LastFailedAt   time.Time         `json:"-"`
	LockoutUntil   time.Time         `json:"-"`
	Roles          []string          `json:"roles,omitempty"`
	Claims         map[string]string `json:"claims,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Locked reports whether the account is locked out at the given instant.
func (u *User) Locked(now time.Time) bool {
	return !u.LockoutUntil.IsZero() && now.Before(u.LockoutUntil)
}

// Role groups users for coarse-grained authorization claims.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LockoutState is the result of recording a failed verification attempt.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the state describes an active lockout.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}
