package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ q querier }

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{q: db.Pool} }

const userColumns = `id, name, email, password_hash, role, failed_attempts, locked_until, email_verified_at, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role,
		&u.FailedAttempts, &u.LockedUntil, &u.EmailVerifiedAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	if !u.Role.Valid() {
		return nil, fmt.Errorf("user %s: unknown role %q", u.ID, role)
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, name, email, password_hash, role, failed_attempts, locked_until, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.FailedAttempts, u.LockedUntil, u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.q.QueryRow(ctx, q, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.q.QueryRow(ctx, q, email))
}

// UpdateCredentials locks the user row, applies fn and writes back a changed state.
func (r *UserRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, fn repository.CredentialsFunc) (model.CredentialState, model.CredentialState, error) {
	var before, after model.CredentialState
	err := inTx(ctx, r.q, func(tx pgx.Tx) error {
		const sel = `SELECT failed_attempts, locked_until FROM users WHERE id=$1 FOR UPDATE`
		if err := tx.QueryRow(ctx, sel, id).Scan(&before.FailedAttempts, &before.LockedUntil); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		after = fn(before)
		if after.Equal(before) {
			return nil
		}
		const upd = `UPDATE users SET failed_attempts=$2, locked_until=$3 WHERE id=$1`
		_, err := tx.Exec(ctx, upd, id, after.FailedAttempts, after.LockedUntil)
		return err
	})
	return before, after, err
}

// UpdatePassword replaces the hash and resets the lockout columns.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `
UPDATE users
SET password_hash=$2, failed_attempts=0, locked_until=NULL
WHERE id=$1`
	tag, err := r.q.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkEmailVerified sets email_verified_at once; later calls keep the first time.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET email_verified_at=COALESCE(email_verified_at, $2) WHERE id=$1`
	tag, err := r.q.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
