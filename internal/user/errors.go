package user

import "errors"

var (
	ErrNotFound      = errors.New("user: not found")
	ErrAlreadyExists = errors.New("user: already exists")
	ErrInvalidInput  = errors.New("user: invalid input")

	// ErrInvalidCredentials covers unknown account, wrong password and locked
	// account alike so callers cannot enumerate accounts or lockout state.
	ErrInvalidCredentials = errors.New("user: login or password incorrect")
)
