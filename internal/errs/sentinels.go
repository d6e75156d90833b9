// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Storage-level sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable wraps any unexpected failure of the credential store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Login and session sentinels.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indicates the account is inside its lock window.
	ErrAccountLocked = errors.New("account locked")

	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken indicates a bad signature, structure or algorithm.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token's exp is in the past.
	ErrExpiredToken = errors.New("expired token")

	// ErrTokenRevoked indicates the token was logged out.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrAlreadyRevoked is returned by a second logout of the same token.
	ErrAlreadyRevoked = errors.New("already revoked")

	// ErrMalformedClaims indicates a verified token without a subject.
	ErrMalformedClaims = errors.New("malformed claims")
)

// Account recovery sentinels.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrAlreadyUsed  = errors.New("link already used")
	ErrLinkExpired  = errors.New("link expired")
	ErrWeakPassword = errors.New("weak password")
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidInput indicates a malformed request field (email, name).
	ErrInvalidInput = errors.New("invalid input")
)
