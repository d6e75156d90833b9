package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

// AccountService defines registration and recovery operations.
type AccountService interface {
	// Register creates a user and sends an email verification link.
	Register(ctx context.Context, name, email, password string) (model.User, error)
	// RequestRecovery creates a password recovery link and mails it.
	RequestRecovery(ctx context.Context, email string) error
	// ResetPassword redeems a recovery link and replaces the password.
	ResetPassword(ctx context.Context, token, newPassword string) error
	// VerifyEmail redeems an email verification link.
	VerifyEmail(ctx context.Context, token string) error
}

type AccountServiceImpl struct {
	d Deps
}

var _ AccountService = (*AccountServiceImpl)(nil)

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(d Deps) *AccountServiceImpl {
	return &AccountServiceImpl{d: d.withDefaults()}
}

// Register validates input, hashes the password and stores a new user with role user.
func (s *AccountServiceImpl) Register(ctx context.Context, name, email, password string) (model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return model.User{}, fmt.Errorf("%w: name is required", errs.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.User{}, fmt.Errorf("%w: %q is not an email address", errs.ErrInvalidInput, email)
	}
	if err := ValidatePassword(password); err != nil {
		return model.User{}, err
	}

	hash, err := s.d.Hasher.Hash(password)
	if err != nil {
		return model.User{}, err
	}
	id, err := newID()
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    s.d.Now(),
	}
	if err := s.d.Store.Users().Create(ctx, &u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.User{}, err
		}
		return model.User{}, storeErr("create user", err)
	}
	s.d.Log.Info("user_registered", zap.String("user_id", u.ID.String()))

	if s.d.Jobs != nil && s.d.Notifier != nil {
		s.d.Jobs.Dispatch("email_verification", func(ctx context.Context) error {
			_, link, err := s.d.Links.CreateLink(ctx, &u, model.LinkEmailVerification, 0)
			if err != nil {
				return err
			}
			return s.d.Notifier.SendVerificationEmail(ctx, u.Email, u.Name, link)
		})
	}
	return u, nil
}

// RequestRecovery stores the link synchronously and mails it in the background.
func (s *AccountServiceImpl) RequestRecovery(ctx context.Context, email string) error {
	u, err := s.d.Store.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, errs.ErrNotFound) {
		if s.d.HideUnknownEmail {
			s.d.Log.Info("recovery_unknown_email", zap.String("email", email))
			return nil
		}
		return errs.ErrUserNotFound
	}
	if err != nil {
		return storeErr("get user", err)
	}

	_, link, err := s.d.Links.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	if err != nil {
		return err
	}
	s.d.Log.Info("recovery_requested", zap.String("user_id", u.ID.String()))

	if s.d.Jobs != nil && s.d.Notifier != nil {
		to, name := u.Email, u.Name
		s.d.Jobs.Dispatch("password_recovery", func(ctx context.Context) error {
			return s.d.Notifier.SendRecoveryEmail(ctx, to, name, link)
		})
	}
	return nil
}

// ResetPassword checks strength before touching the link, so a weak password
// leaves it redeemable. The new hash also clears any lockout.
func (s *AccountServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.d.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	u, err := s.d.Links.Redeem(ctx, token, model.LinkPasswordRecovery, func(ctx context.Context, tx repository.Store, u *model.User) error {
		return tx.Users().UpdatePassword(ctx, u.ID, hash)
	})
	if err != nil {
		return err
	}
	s.d.Log.Info("password_reset", zap.String("user_id", u.ID.String()))
	return nil
}

// VerifyEmail marks the owner's email as verified.
func (s *AccountServiceImpl) VerifyEmail(ctx context.Context, token string) error {
	now := s.d.Now()
	u, err := s.d.Links.Redeem(ctx, token, model.LinkEmailVerification, func(ctx context.Context, tx repository.Store, u *model.User) error {
		return tx.Users().MarkEmailVerified(ctx, u.ID, now)
	})
	if err != nil {
		return err
	}
	s.d.Log.Info("email_verified", zap.String("user_id", u.ID.String()))
	return nil
}
