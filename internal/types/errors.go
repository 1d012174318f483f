package types

import "errors"

// Store-level errors.
var ErrNotFound = errors.New("requested item not found")
var ErrConflict = errors.New("item already exists or conflict")

// Auth errors returned by the auth service. Handlers map these to HTTP statuses.
var (
	ErrDuplicateUser      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ErrBadRequest marks input rejected before any store access.
var ErrBadRequest = errors.New("bad request")
