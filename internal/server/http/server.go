// Package httpserver exposes the authentication and recovery API over HTTP.
package httpserver

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/plaze/internal/service"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the HTTP layer.
type Options struct {
	MaxBodySize int // in MB
	CORSOrigins []string
}

// New builds the echo instance with middleware and routes.
func New(opts Options, auth service.AuthService, accounts service.AccountService, store Pinger, log *zap.Logger) *echo.Echo {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	setupMiddleware(e, opts, log)
	setupRoutes(e, &Handler{auth: auth, accounts: accounts, store: store})
	return e
}

func setupRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.Health)

	a := e.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout)
	a.GET("/me", h.Me, requireAuth(h.auth))
	a.POST("/register", h.Register)
	a.POST("/verify-email/:token", h.VerifyEmail)

	p := e.Group("/password")
	p.POST("/recover/:email", h.RequestRecovery)
	p.POST("/reset/:token", h.ResetPassword)
}
