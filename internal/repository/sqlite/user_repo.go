package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// UserRepo implements UserRepository using SQLite.
type UserRepo struct{ s *Store }

var _ repository.UserRepository = (*UserRepo)(nil)

const userColumns = `id, name, email, password_hash, role, failed_attempts, locked_until, email_verified_at, created_at`

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

func checkRole(u *model.User) (*model.User, error) {
	if !u.Role.Valid() {
		return nil, fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
	}
	return u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.s.q().ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, failed_attempts, locked_until, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.FailedAttempts, utcPtr(u.LockedUntil), u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.s.q().GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return checkRole(&u)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.s.q().GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, email); err != nil {
		return nil, notFound(err)
	}
	return checkRole(&u)
}

// UpdateCredentials reads, maps and writes the lockout state inside an IMMEDIATE transaction.
func (r *UserRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, fn repository.CredentialsFunc) (model.CredentialState, model.CredentialState, error) {
	var before, after model.CredentialState
	err := r.s.withTx(ctx, func(tx *Store) error {
		if err := tx.q().GetContext(ctx, &before, `SELECT failed_attempts, locked_until FROM users WHERE id = ?`, id); err != nil {
			return notFound(err)
		}
		after = fn(before)
		if after.Equal(before) {
			return nil
		}
		_, err := tx.q().ExecContext(ctx, `UPDATE users SET failed_attempts = ?, locked_until = ? WHERE id = ?`,
			after.FailedAttempts, utcPtr(after.LockedUntil), id)
		return err
	})
	return before, after, err
}

// UpdatePassword replaces the hash and resets the lockout columns.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := r.s.q().ExecContext(ctx,
		`UPDATE users SET password_hash = ?, failed_attempts = 0, locked_until = NULL WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// MarkEmailVerified sets email_verified_at once.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.s.q().ExecContext(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, ?) WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
