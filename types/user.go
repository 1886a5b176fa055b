package types

import "time"

// User represents an account in the system.
// Accounts are created either through local signup (with a password) or
// through OAuth federation (without one).
type User struct {
	// ID is the unique identifier of the user, assigned by the store.
	ID int64 `json:"id" db:"id"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Username is the account identifier. It is an email address and is
	// unique across all users.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// It is empty for accounts created through OAuth federation that never
	// set a local password, and is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetPasswordTokenHash holds a one-way hash of the currently
	// outstanding reset token. The plaintext token is never stored.
	ResetPasswordTokenHash string `json:"-" db:"reset_password_token_hash"`

	// ResetPasswordExpiresAt is the deadline after which the outstanding
	// reset token is invalid. Set iff ResetPasswordTokenHash is set.
	ResetPasswordExpiresAt *time.Time `json:"-" db:"reset_password_expires_at"`

	// AvatarKey is the object-storage key of the user's mirrored avatar,
	// if one was captured during OAuth federation.
	AvatarKey string `json:"avatar_key,omitempty" db:"avatar_key"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a local
// password. OAuth-only accounts have no password hash.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasPendingReset reports whether a password-reset request is outstanding.
func (u User) HasPendingReset() bool {
	return u.ResetPasswordTokenHash != "" && u.ResetPasswordExpiresAt != nil
}

// ExternalIdentity is the profile obtained from an OAuth provider after a
// successful handshake.
type ExternalIdentity struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
