package identity

import "errors"

var (
	// ErrUserNotFound indicates no account exists for the given id or email.
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrTokenInvalid indicates a token that failed signature, expiry, or
	// scope validation.
	ErrTokenInvalid = errors.New("identity: token invalid")
)
