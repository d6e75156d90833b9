// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/plaze/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CredentialsFunc maps the current lockout state to the state to persist.
type CredentialsFunc func(cur model.CredentialState) model.CredentialState

// UserRepository provides access to user accounts.
type UserRepository interface {
	// Create inserts a new user. A duplicate email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateCredentials atomically reads the lockout state, applies fn and writes the
	// result back. Concurrent callers for the same user are serialized.
	UpdateCredentials(ctx context.Context, id uuid.UUID, fn CredentialsFunc) (before, after model.CredentialState, err error)
	// UpdatePassword replaces the password hash and clears the lockout state.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// MarkEmailVerified records the email verification time.
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}
