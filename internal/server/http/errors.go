package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/service"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: the first match wins.
var mappings = []mapping{
	{errs.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials", "incorrect email or password"},
	{errs.ErrAccountLocked, http.StatusForbidden, "account_locked", "account is temporarily locked, try again later or reset your password"},
	{errs.ErrMissingToken, http.StatusUnauthorized, "missing_token", "bearer token required"},
	{errs.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked", "token has been revoked"},
	{errs.ErrExpiredToken, http.StatusUnauthorized, "expired_token", "token has expired"},
	{errs.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "token is invalid"},
	{errs.ErrMalformedClaims, http.StatusUnauthorized, "malformed_claims", "token is missing required claims"},
	{errs.ErrAlreadyRevoked, http.StatusBadRequest, "already_revoked", "token was already revoked"},
	{errs.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password does not meet the requirements"},
	{errs.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "invalid request"},
	{errs.ErrAlreadyExists, http.StatusBadRequest, "already_exists", "email is already registered"},
	{errs.ErrUserNotFound, http.StatusNotFound, "user_not_found", "user not found"},
	{errs.ErrLinkNotFound, http.StatusNotFound, "link_not_found", "link not found"},
	{errs.ErrAlreadyUsed, http.StatusBadRequest, "already_used", "link was already used"},
	{errs.ErrLinkExpired, http.StatusBadRequest, "link_expired", "link has expired"},
	{errs.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable"},
}

// toResponse maps err to a status code and body.
func toResponse(err error) (int, errorResponse) {
	for _, m := range mappings {
		if !errors.Is(err, m.err) {
			continue
		}
		body := errorResponse{Error: m.code, Message: m.message}
		var pe *service.PasswordError
		if errors.As(err, &pe) {
			body.Details = pe.Reasons
		}
		if m.err == errs.ErrInvalidInput {
			body.Message = err.Error()
		}
		return m.status, body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorResponse{Error: statusCode(he.Code), Message: msg}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"}
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "http_error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// errorHandler writes JSON errors and logs the ones that are not the client's fault.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := toResponse(err)
		if status >= http.StatusInternalServerError {
			log.Error("request_failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("error response not written", zap.Error(err))
		}
	}
}
