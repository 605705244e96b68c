package identity

import (
	"errors"

	"github.com/waylio/waylio-platform/internal/apperr"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = apperr.NotFound("USER_NOT_FOUND", "User not found")

	// ErrInvalidCredentials covers unknown login, wrong password and inactive accounts alike.
	ErrInvalidCredentials = apperr.Unauthorized("INVALID_CREDENTIALS", "Invalid credentials")

	// ErrInvalidToken is returned for missing, malformed or expired tokens.
	ErrInvalidToken = apperr.Unauthorized("UNAUTHORIZED", "Invalid or expired token")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = apperr.Validation("Email is already registered", map[string]string{"email": "already registered"})

	errUniqueIDTaken = errors.New("identity: unique id already issued")

	// ErrForbidden is returned when the caller's role is not allowed.
	ErrForbidden = apperr.Forbidden("FORBIDDEN", "Insufficient permissions")
)
