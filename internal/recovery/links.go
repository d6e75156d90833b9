// Package recovery mints and redeems single-use, time-limited account links
// (password recovery and email verification).
package recovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/plaze/internal/crypto"
	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// DefaultTTL is the lifetime of a link when none is given.
const DefaultTTL = time.Hour

// ApplyFunc runs inside the redemption transaction with the link's owner.
type ApplyFunc func(ctx context.Context, tx repository.Store, u *model.User) error

// Manager creates and redeems links against a store.
type Manager struct {
	store       repository.Store
	frontendURL string
	ttl         time.Duration
	now         func() time.Time
}

// NewManager returns a manager building URLs under frontendURL.
func NewManager(store repository.Store, frontendURL string, ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, frontendURL: strings.TrimRight(frontendURL, "/"), ttl: ttl, now: now}
}

// CreateLink stores a new link for u and returns the raw token and the frontend URL.
// A non-positive ttl means the manager default.
func (m *Manager) CreateLink(ctx context.Context, u *model.User, kind model.LinkKind, ttl time.Duration) (string, string, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	tok, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}
	now := m.now()
	raw := tok.String()
	link := &model.RecoveryLink{
		ID:        id,
		UserID:    u.ID,
		TokenHash: crypto.TokenDigest(raw),
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := m.store.Links().Create(ctx, link); err != nil {
		return "", "", fmt.Errorf("%w: create link: %v", errs.ErrStoreUnavailable, err)
	}
	return raw, m.URL(kind, raw), nil
}

// URL returns the frontend page that consumes a link of kind.
func (m *Manager) URL(kind model.LinkKind, token string) string {
	page := "reset-password"
	if kind == model.LinkEmailVerification {
		page = "verify-email"
	}
	return m.frontendURL + "/" + page + "?token=" + url.QueryEscape(token)
}

// Redeem marks the link used, loads its owner and runs apply, all in one
// transaction. Any failure rolls back and leaves the link unused.
func (m *Manager) Redeem(ctx context.Context, token string, kind model.LinkKind, apply ApplyFunc) (*model.User, error) {
	if token == "" {
		return nil, errs.ErrLinkNotFound
	}
	var owner *model.User
	err := m.store.InTx(ctx, func(tx repository.Store) error {
		link, err := tx.Links().MarkUsed(ctx, crypto.TokenDigest(token), kind, m.now())
		if err != nil {
			return err
		}
		u, err := tx.Users().GetByID(ctx, link.UserID)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(ctx, tx, u); err != nil {
				return err
			}
		}
		owner = u
		return nil
	})
	switch {
	case err == nil:
		return owner, nil
	case errors.Is(err, errs.ErrLinkNotFound), errors.Is(err, errs.ErrAlreadyUsed), errors.Is(err, errs.ErrLinkExpired):
		return nil, err
	case errors.Is(err, errs.ErrStoreUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: redeem: %v", errs.ErrStoreUnavailable, err)
	}
}
