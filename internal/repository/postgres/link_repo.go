package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// LinkRepo implements LinkRepository using PostgreSQL.
type LinkRepo struct{ q querier }

var _ repository.LinkRepository = (*LinkRepo)(nil)

// NewLinkRepo constructs a link repository.
func NewLinkRepo(db *DB) *LinkRepo { return &LinkRepo{q: db.Pool} }

const linkColumns = `id, user_id, token_hash, kind, expires_at, used, used_at, created_at`

func scanLink(row pgx.Row) (*model.RecoveryLink, error) {
	var (
		l    model.RecoveryLink
		kind string
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.TokenHash, &kind, &l.ExpiresAt, &l.Used, &l.UsedAt, &l.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	l.Kind = model.LinkKind(kind)
	return &l, nil
}

// Create inserts a link row.
func (r *LinkRepo) Create(ctx context.Context, l *model.RecoveryLink) error {
	const q = `
INSERT INTO recovery_links (id, user_id, token_hash, kind, expires_at, used, created_at)
VALUES ($1, $2, $3, $4, $5, false, $6)`
	_, err := r.q.Exec(ctx, q, l.ID, l.UserID, l.TokenHash, string(l.Kind), l.ExpiresAt, l.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByTokenHash selects a link by token digest.
func (r *LinkRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*model.RecoveryLink, error) {
	const q = `SELECT ` + linkColumns + ` FROM recovery_links WHERE token_hash=$1`
	return scanLink(r.q.QueryRow(ctx, q, tokenHash))
}

// MarkUsed redeems the link with one conditional UPDATE; at most one caller wins.
func (r *LinkRepo) MarkUsed(ctx context.Context, tokenHash string, kind model.LinkKind, now time.Time) (*model.RecoveryLink, error) {
	const q = `
UPDATE recovery_links
SET used=true, used_at=$3
WHERE token_hash=$1 AND kind=$2 AND used=false AND expires_at > $3
RETURNING ` + linkColumns
	l, err := scanLink(r.q.QueryRow(ctx, q, tokenHash, string(kind), now))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	cur, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if reason := repository.RefusalReason(cur, kind, now); reason != nil {
		return nil, reason
	}
	// Redeemable now but the update matched nothing: it was used concurrently.
	return nil, errs.ErrAlreadyUsed
}
