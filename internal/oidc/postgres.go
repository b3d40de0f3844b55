package oidc

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

var _ CodeStore = (*PGCodeStore)(nil)

// PGCodeStore persists pending authorization codes in Postgres for
// deployments without Redis. Consume is a single DELETE..RETURNING so a
// concurrent second redemption observes zero rows.
type PGCodeStore struct {
	db *sql.DB
}

// NewPGCodeStore wraps an open database handle.
func NewPGCodeStore(db *sql.DB) *PGCodeStore {
	return &PGCodeStore{db: db}
}

func (s *PGCodeStore) Put(ctx context.Context, c *Code) error {
	_, err := s.db.ExecContext(ctx, `
		insert into auth_codes(value, client_id, redirect_uri, scopes, subject, email, roles, nonce, issued_at, expires_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.Value, c.ClientID, c.RedirectURI, strings.Join(c.Scopes, " "),
		c.Subject, c.Email, strings.Join(c.Roles, " "), c.Nonce, c.IssuedAt, c.ExpiresAt,
	)
	return err
}

func (s *PGCodeStore) Consume(ctx context.Context, value string) (*Code, error) {
	row := s.db.QueryRowContext(ctx, `
		delete from auth_codes where value = $1
		returning value, client_id, redirect_uri, scopes, subject, email, roles, nonce, issued_at, expires_at`,
		value,
	)
	var (
		c      Code
		scopes string
		roles  string
	)
	if err := row.Scan(&c.Value, &c.ClientID, &c.RedirectURI, &scopes,
		&c.Subject, &c.Email, &roles, &c.Nonce, &c.IssuedAt, &c.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	c.Scopes = splitFields(scopes)
	c.Roles = splitFields(roles)
	return &c, nil
}

// PurgeExpired removes codes past their expiry; expiry is still re-checked
// at redemption, this only keeps the table small.
func (s *PGCodeStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from auth_codes where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func splitFields(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Fields(joined)
}
