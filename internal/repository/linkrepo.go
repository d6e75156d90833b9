package repository

import (
	"context"
	"time"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
)

// LinkRepository persists recovery and verification links.
type LinkRepository interface {
	// Create inserts a new link.
	Create(ctx context.Context, l *model.RecoveryLink) error
	// GetByTokenHash loads a link by the digest of its token.
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.RecoveryLink, error)
	// MarkUsed flips used=true iff the link has the given kind, is unused and not
	// expired at now. On refusal it returns errs.ErrLinkNotFound, errs.ErrAlreadyUsed
	// or errs.ErrLinkExpired.
	MarkUsed(ctx context.Context, tokenHash string, kind model.LinkKind, now time.Time) (*model.RecoveryLink, error)
}

// Store groups the repositories of one backend.
type Store interface {
	Users() UserRepository
	Links() LinkRepository
	// InTx runs fn with repositories bound to a single transaction. The transaction
	// commits if fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// RefusalReason explains why a link cannot be redeemed as kind at now.
// l may be nil when no link matched. It returns nil for a redeemable link.
func RefusalReason(l *model.RecoveryLink, kind model.LinkKind, now time.Time) error {
	switch {
	case l == nil || l.Kind != kind:
		return errs.ErrLinkNotFound
	case l.Redeemable(now):
		return nil
	case l.Used:
		return errs.ErrAlreadyUsed
	default:
		return errs.ErrLinkExpired
	}
}
