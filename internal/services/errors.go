package services

import "errors"

var (
	// ErrDuplicateUser is returned when a signup collides with an
	// existing username.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrUserNotFound is returned when a password reset is requested for
	// an unknown email address.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidResetToken is returned when no reset is in progress, the
	// presented token does not match the stored hash, or the token was
	// already consumed.
	ErrInvalidResetToken = errors.New("invalid reset token")

	// ErrResetTokenExpired is returned when the reset window has passed.
	ErrResetTokenExpired = errors.New("reset token expired")
)
