// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the authorization role carried in session tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Tokens collects an issued access token and its metadata.
type Tokens struct {
	AccessToken string
	TokenType   string    // always "bearer"
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID              uuid.UUID  `db:"id"` // PK
	Name            string     `db:"name"`
	Email           string     `db:"email"`         // unique
	PasswordHash    string     `db:"password_hash"` // Argon2id PHC string
	Role            Role       `db:"role"`
	FailedAttempts  int        `db:"failed_attempts"`
	LockedUntil     *time.Time `db:"locked_until"`
	EmailVerifiedAt *time.Time `db:"email_verified_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

// CredentialState is the (failed_attempts, locked_until) pair updated atomically on login.
type CredentialState struct {
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
}

// Equal compares two states by value.
func (s CredentialState) Equal(o CredentialState) bool {
	if s.FailedAttempts != o.FailedAttempts {
		return false
	}
	switch {
	case s.LockedUntil == nil && o.LockedUntil == nil:
		return true
	case s.LockedUntil == nil || o.LockedUntil == nil:
		return false
	default:
		return s.LockedUntil.Equal(*o.LockedUntil)
	}
}

// LinkKind distinguishes what a recovery link may be redeemed for.
type LinkKind string

const (
	LinkPasswordRecovery  LinkKind = "password_recovery"
	LinkEmailVerification LinkKind = "email_verification"
)

// RecoveryLink is a single-use, time-limited token owned by a user.
// Only the SHA-256 digest of the raw token is persisted.
type RecoveryLink struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	Kind      LinkKind   `db:"kind"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Redeemable reports whether the link can still be used at now.
func (l *RecoveryLink) Redeemable(now time.Time) bool {
	return !l.Used && now.Before(l.ExpiresAt)
}
