package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/service"
)

// Handler serves the API routes.
type Handler struct {
	auth     service.AuthService
	accounts service.AccountService
	store    Pinger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Role        string    `json:"role"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type resetRequest struct {
	NewPassword string `json:"new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: malformed request body", errs.ErrInvalidInput)
	}
	return nil
}

// pathParam returns the decoded value of a route parameter.
// Echo routes on the escaped path, so values arrive still percent-encoded.
func pathParam(c echo.Context, name string) (string, error) {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s in path", errs.ErrInvalidInput, name)
	}
	return v, nil
}

func toUser(u model.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Name:          u.Name,
		Email:         u.Email,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerifiedAt != nil,
		CreatedAt:     u.CreatedAt,
	}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tokens, u, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		Role:        string(u.Role),
		Name:        u.Name,
		Email:       u.Email,
		ExpiresAt:   tokens.ExpiresAt,
	})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c echo.Context) error {
	req := c.Request()
	if err := h.auth.Logout(req.Context(), req.Header.Get(echo.HeaderAuthorization)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c echo.Context) error {
	claims, ok := ClaimsFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrMissingToken
	}
	return c.JSON(http.StatusOK, claims)
}

// Register handles POST /auth/register.
func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.accounts.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUser(u))
}

// VerifyEmail handles POST /auth/verify-email/:token.
func (h *Handler) VerifyEmail(c echo.Context) error {
	tok, err := pathParam(c, "token")
	if err != nil {
		return err
	}
	if err := h.accounts.VerifyEmail(c.Request().Context(), tok); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "email verified"})
}

// RequestRecovery handles POST /password/recover/:email.
func (h *Handler) RequestRecovery(c echo.Context) error {
	email, err := pathParam(c, "email")
	if err != nil {
		return err
	}
	if err := h.accounts.RequestRecovery(c.Request().Context(), email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "recovery email sent"})
}

// ResetPassword handles POST /password/reset/:token.
func (h *Handler) ResetPassword(c echo.Context) error {
	tok, err := pathParam(c, "token")
	if err != nil {
		return err
	}
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.accounts.ResetPassword(c.Request().Context(), tok, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
