package user

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, email, password_hash, security_stamp, status, failed_attempts, last_failed_at, lockout_until, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, security_stamp, status) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.PasswordHash, u.SecurityStamp, u.Status,
	)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u            User
		lastFailedAt sql.NullTime
		lockoutUntil sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.SecurityStamp, &u.Status,
		&u.FailedAttempts, &lastFailedAt, &lockoutUntil, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastFailedAt.Valid {
		u.LastFailedAt = lastFailedAt.Time
	}
	if lockoutUntil.Valid {
		u.LockoutUntil = lockoutUntil.Time
	}
	return &u, nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash, securityStamp string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, security_stamp=$3, updated_at=now() where id=$1`,
		userID, passwordHash, securityStamp,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailedAttempt bumps the failure counter in a single statement so
// concurrent failures for the same user serialize on the row lock.
func (s *PGStore) RecordFailedAttempt(ctx context.Context, userID string, at time.Time, window time.Duration, maxAttempts int, lockout time.Duration) (LockoutState, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set
			failed_attempts = case
				when last_failed_at is null or $2::timestamptz - last_failed_at > $3::interval then 1
				else failed_attempts + 1
			end,
			last_failed_at = $2,
			lockout_until = case
				when (case
					when last_failed_at is null or $2::timestamptz - last_failed_at > $3::interval then 1
					else failed_attempts + 1
				end) >= $4 then $2::timestamptz + $5::interval
				else lockout_until
			end,
			updated_at = now()
		where id = $1
		returning failed_attempts, lockout_until`,
		userID, at, window.String(), maxAttempts, lockout.String(),
	)
	var (
		state        LockoutState
		lockoutUntil sql.NullTime
	)
	if err := row.Scan(&state.FailedAttempts, &lockoutUntil); err != nil {
		if err == sql.ErrNoRows {
			return LockoutState{}, ErrNotFound
		}
		return LockoutState{}, err
	}
	if lockoutUntil.Valid {
		state.LockedUntil = lockoutUntil.Time
	}
	return state, nil
}

func (s *PGStore) ResetFailureCount(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set failed_attempts=0, last_failed_at=null, lockout_until=null, updated_at=now() where id=$1`,
		userID,
	)
	return err
}

func (s *PGStore) CreateRole(ctx context.Context, role *Role) error {
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name) values($1,$2) on conflict (name) do nothing`,
		role.ID, role.Name,
	)
	return err
}

func (s *PGStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `select id, name, created_at from roles where name=$1`, name)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *PGStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID,
	)
	return err
}

func (s *PGStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
