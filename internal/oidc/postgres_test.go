package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGCodeStoreConsumeReturnsAndDeletes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	issued := time.Now().UTC().Truncate(time.Second)
	expires := issued.Add(5 * time.Minute)

	mock.ExpectQuery(`delete from auth_codes where value`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"value", "client_id", "redirect_uri", "scopes", "subject", "email", "roles", "nonce", "issued_at", "expires_at",
		}).AddRow("c-1", "web_app", "https://app/cb", "openid profile", "u-1", "a@b.c", "client", "n-1", issued, expires))

	store := NewPGCodeStore(db)
	code, err := store.Consume(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if code.ClientID != "web_app" || len(code.Scopes) != 2 || code.Scopes[0] != "openid" {
		t.Fatalf("unexpected code: %+v", code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGCodeStoreConsumeMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`delete from auth_codes where value`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{
			"value", "client_id", "redirect_uri", "scopes", "subject", "email", "roles", "nonce", "issued_at", "expires_at",
		}))

	store := NewPGCodeStore(db)
	if _, err := store.Consume(context.Background(), "ghost"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestPGCodeStorePut(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	code := &Code{
		Value:       "c-2",
		ClientID:    "web_app",
		RedirectURI: "https://app/cb",
		Scopes:      []string{"openid"},
		Subject:     "u-1",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Minute),
	}
	mock.ExpectExec(`insert into auth_codes`).
		WithArgs("c-2", "web_app", "https://app/cb", "openid", "u-1", "", "", "", now, now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGCodeStore(db)
	if err := store.Put(context.Background(), code); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
