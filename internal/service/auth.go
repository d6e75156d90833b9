// Package service contains application services for authentication and account recovery.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/plaze/internal/crypto"
	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/lockout"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/notify"
	"github.com/and161185/plaze/internal/recovery"
	"github.com/and161185/plaze/internal/repository"
	"github.com/and161185/plaze/internal/revocation"
	"github.com/and161185/plaze/internal/token"
)

// AuthService defines login and session operations.
type AuthService interface {
	// Login checks credentials, applies the lockout policy and issues a session token.
	Login(ctx context.Context, email, password string) (tokens model.Tokens, user model.User, err error)
	// Logout revokes the bearer token in the Authorization header.
	Logout(ctx context.Context, authorization string) error
	// Authenticate returns the claims of a live, unrevoked bearer token.
	Authenticate(ctx context.Context, authorization string) (token.Claims, error)
}

// Dispatcher runs background jobs without blocking the caller.
type Dispatcher interface {
	Dispatch(name string, fn notify.Job) bool
}

// Deps holds the collaborators shared by the services.
type Deps struct {
	Store    repository.Store
	Hasher   *pkgcrypto.Hasher
	Codec    *token.Codec
	Revoked  *revocation.Registry
	Links    *recovery.Manager
	Notifier notify.Notifier
	Jobs     Dispatcher
	Log      *zap.Logger
	Now      func() time.Time

	// HideUnknownEmail makes RequestRecovery succeed silently for unknown emails.
	HideUnknownEmail bool
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

type AuthServiceImpl struct {
	d Deps
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(d Deps) *AuthServiceImpl {
	return &AuthServiceImpl{d: d.withDefaults()}
}

// Login authenticates by email and password.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (model.Tokens, model.User, error) {
	email = strings.TrimSpace(email)
	u, err := s.d.Store.Users().GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		s.d.Hasher.Burn(password)
		s.d.Log.Info("login_failed", zap.String("email", email), zap.String("reason", "unknown_email"))
		return model.Tokens{}, model.User{}, errs.ErrInvalidCredentials
	}
	if err != nil {
		return model.Tokens{}, model.User{}, storeErr("get user", err)
	}

	now := s.d.Now()
	if lockout.IsLocked(u.LockedUntil, now) {
		s.d.Log.Info("login_refused", zap.String("user_id", u.ID.String()), zap.Time("locked_until", *u.LockedUntil))
		return model.Tokens{}, model.User{}, errs.ErrAccountLocked
	}
	if lockout.LockExpired(u.LockedUntil, now) {
		relocked := false
		_, after, err := s.d.Store.Users().UpdateCredentials(ctx, u.ID, func(cur model.CredentialState) model.CredentialState {
			relocked = lockout.IsLocked(cur.LockedUntil, now)
			if lockout.LockExpired(cur.LockedUntil, now) {
				return lockout.NextOnExpiredLock()
			}
			return cur
		})
		if err != nil {
			return model.Tokens{}, model.User{}, storeErr("clear expired lock", err)
		}
		if relocked {
			return model.Tokens{}, model.User{}, errs.ErrAccountLocked
		}
		u.FailedAttempts, u.LockedUntil = after.FailedAttempts, after.LockedUntil
		s.d.Log.Info("lock_expired", zap.String("user_id", u.ID.String()))
	}

	ok, err := s.d.Hasher.Verify(password, u.PasswordHash)
	if err != nil {
		s.d.Log.Error("stored hash unreadable", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	if !ok {
		return model.Tokens{}, model.User{}, s.recordFailure(ctx, u, now)
	}

	locked := false
	_, after, err := s.d.Store.Users().UpdateCredentials(ctx, u.ID, func(cur model.CredentialState) model.CredentialState {
		locked = lockout.IsLocked(cur.LockedUntil, now)
		if locked {
			return cur
		}
		return lockout.NextOnSuccess()
	})
	if err != nil {
		return model.Tokens{}, model.User{}, storeErr("reset attempts", err)
	}
	if locked {
		return model.Tokens{}, model.User{}, errs.ErrAccountLocked
	}
	u.FailedAttempts, u.LockedUntil = after.FailedAttempts, after.LockedUntil

	access, exp, err := s.d.Codec.Issue(map[string]any{
		token.ClaimSubject: u.Email,
		token.ClaimRole:    string(u.Role),
		token.ClaimUserID:  u.ID.String(),
		token.ClaimName:    u.Name,
	}, 0)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	s.d.Log.Info("login_succeeded", zap.String("user_id", u.ID.String()))
	return model.Tokens{AccessToken: access, TokenType: "bearer", ExpiresAt: exp}, *u, nil
}

// recordFailure counts one failed attempt atomically and locks the account at the threshold.
func (s *AuthServiceImpl) recordFailure(ctx context.Context, u *model.User, now time.Time) error {
	var alreadyLocked, lockedNow bool
	_, after, err := s.d.Store.Users().UpdateCredentials(ctx, u.ID, func(cur model.CredentialState) model.CredentialState {
		alreadyLocked, lockedNow = false, false
		if lockout.IsLocked(cur.LockedUntil, now) {
			alreadyLocked = true
			return cur
		}
		attempts := cur.FailedAttempts
		if lockout.LockExpired(cur.LockedUntil, now) {
			attempts = 0
		}
		next := lockout.NextOnFailure(attempts, now)
		lockedNow = next.LockedUntil != nil
		return next
	})
	if err != nil {
		return storeErr("record failure", err)
	}

	switch {
	case alreadyLocked:
		return errs.ErrAccountLocked
	case lockedNow:
		s.d.Log.Warn("account_locked",
			zap.String("user_id", u.ID.String()),
			zap.Int("attempts", after.FailedAttempts),
			zap.Time("locked_until", *after.LockedUntil),
		)
		s.sendLockNotice(*u)
		return errs.ErrAccountLocked
	default:
		s.d.Log.Info("login_failed",
			zap.String("user_id", u.ID.String()),
			zap.String("reason", "wrong_password"),
			zap.Int("attempts", after.FailedAttempts),
		)
		return errs.ErrInvalidCredentials
	}
}

func (s *AuthServiceImpl) sendLockNotice(u model.User) {
	if s.d.Jobs == nil || s.d.Notifier == nil {
		return
	}
	s.d.Jobs.Dispatch("lock_notice", func(ctx context.Context) error {
		_, link, err := s.d.Links.CreateLink(ctx, &u, model.LinkPasswordRecovery, 0)
		if err != nil {
			return err
		}
		return s.d.Notifier.SendLockNotice(ctx, u.Email, u.Name, link)
	})
}

// Logout revokes a correctly signed token even when it has expired.
// Revocation is keyed on jti, so any encoding of the same token stays revoked.
func (s *AuthServiceImpl) Logout(_ context.Context, authorization string) error {
	raw, err := BearerToken(authorization)
	if err != nil {
		return err
	}
	claims, err := s.d.Codec.Inspect(raw)
	if err != nil {
		return err
	}
	if claims.ID() == "" {
		return errs.ErrMalformedClaims
	}
	exp := claims.ExpiresAt()
	if exp.IsZero() {
		exp = s.d.Now().Add(s.d.Codec.TTL())
	}
	if err := s.d.Revoked.Add(claims.ID(), exp); err != nil {
		return err
	}
	s.d.Log.Info("logout", zap.String("user_id", claims.UserID()), zap.String("jti", claims.ID()))
	return nil
}

// Authenticate validates the bearer token of a request. A revoked token is
// refused before its expiry is considered.
func (s *AuthServiceImpl) Authenticate(_ context.Context, authorization string) (token.Claims, error) {
	raw, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}
	inspected, err := s.d.Codec.Inspect(raw)
	if err != nil {
		return nil, err
	}
	if id := inspected.ID(); id != "" && s.d.Revoked.Contains(id) {
		return nil, errs.ErrTokenRevoked
	}
	claims, err := s.d.Codec.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Subject() == "" || claims.ID() == "" {
		return nil, errs.ErrMalformedClaims
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(authorization string) (string, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errs.ErrMissingToken
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errs.ErrMissingToken
	}
	return raw, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, errs.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", errs.ErrStoreUnavailable, op, err)
}

func newID() (uuid.UUID, error) { return uuid.NewV4() }
