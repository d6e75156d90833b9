package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// LinkRepo implements LinkRepository using SQLite.
type LinkRepo struct{ s *Store }

var _ repository.LinkRepository = (*LinkRepo)(nil)

const linkColumns = `id, user_id, token_hash, kind, expires_at, used, used_at, created_at`

// Create inserts a link row.
func (r *LinkRepo) Create(ctx context.Context, l *model.RecoveryLink) error {
	_, err := r.s.q().ExecContext(ctx,
		`INSERT INTO recovery_links (id, user_id, token_hash, kind, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		l.ID, l.UserID, l.TokenHash, string(l.Kind), l.ExpiresAt.UTC(), l.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByTokenHash selects a link by token digest.
func (r *LinkRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*model.RecoveryLink, error) {
	return getLink(ctx, r.s, tokenHash)
}

func getLink(ctx context.Context, s *Store, tokenHash string) (*model.RecoveryLink, error) {
	var l model.RecoveryLink
	if err := s.q().GetContext(ctx, &l, `SELECT `+linkColumns+` FROM recovery_links WHERE token_hash = ?`, tokenHash); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// MarkUsed checks and flips the link inside an IMMEDIATE transaction; at most one caller wins.
func (r *LinkRepo) MarkUsed(ctx context.Context, tokenHash string, kind model.LinkKind, now time.Time) (*model.RecoveryLink, error) {
	var out *model.RecoveryLink
	err := r.s.withTx(ctx, func(tx *Store) error {
		l, err := getLink(ctx, tx, tokenHash)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if reason := repository.RefusalReason(l, kind, now); reason != nil {
			return reason
		}
		usedAt := now.UTC()
		res, err := tx.q().ExecContext(ctx,
			`UPDATE recovery_links SET used = 1, used_at = ? WHERE id = ? AND used = 0`, usedAt, l.ID)
		if err != nil {
			return err
		}
		if affected(res) != nil {
			return errs.ErrAlreadyUsed
		}
		l.Used, l.UsedAt = true, &usedAt
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
