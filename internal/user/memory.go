package user

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store. Lockout counter updates are serialized
// under a single mutex so concurrent failures never undercount.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]*User   // by id
	byEmail     map[string]string  // email -> id
	roles       map[string]*Role   // by id
	rolesByName map[string]string  // name -> id
	assignments map[string]map[string]struct{} // user id -> role ids
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		byEmail:     make(map[string]string),
		roles:       make(map[string]*Role),
		rolesByName: make(map[string]string),
		assignments: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash, securityStamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.SecurityStamp = securityStamp
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordFailedAttempt(ctx context.Context, userID string, at time.Time, window time.Duration, maxAttempts int, lockout time.Duration) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return LockoutState{}, ErrNotFound
	}
	if !u.LastFailedAt.IsZero() && at.Sub(u.LastFailedAt) > window {
		u.FailedAttempts = 0
	}
	u.FailedAttempts++
	u.LastFailedAt = at
	if u.FailedAttempts >= maxAttempts {
		u.LockoutUntil = at.Add(lockout)
	}
	return LockoutState{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockoutUntil}, nil
}

func (s *MemoryStore) ResetFailureCount(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedAttempts = 0
	u.LastFailedAt = time.Time{}
	u.LockoutUntil = time.Time{}
	return nil
}

func (s *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolesByName[role.Name]; ok {
		return ErrAlreadyExists
	}
	cp := *role
	s.roles[role.ID] = &cp
	s.rolesByName[role.Name] = role.ID
	return nil
}

func (s *MemoryStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.rolesByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.roles[id]
	return &cp, nil
}

func (s *MemoryStore) AssignRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	set, ok := s.assignments[userID]
	if !ok {
		set = make(map[string]struct{})
		s.assignments[userID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (s *MemoryStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.assignments[userID]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(set))
	for roleID := range set {
		if role, ok := s.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	return names, nil
}
