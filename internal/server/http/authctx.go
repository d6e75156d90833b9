package httpserver

import (
	"context"

	"github.com/and161185/plaze/internal/token"
)

type ctxKey string

const claimsKey ctxKey = "plaze.claims"

// WithClaims stores verified token claims in context.
func WithClaims(ctx context.Context, c token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromCtx fetches token claims from context.
func ClaimsFromCtx(ctx context.Context) (token.Claims, bool) {
	v := ctx.Value(claimsKey)
	if v == nil {
		return nil, false
	}
	c, ok := v.(token.Claims)
	return c, ok
}
