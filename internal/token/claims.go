package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified claim set of a token.
type Claims map[string]any

func (c Claims) str(key string) string {
	s, _ := c[key].(string)
	return s
}

// Subject returns the sub claim (the account email).
func (c Claims) Subject() string { return c.str(ClaimSubject) }

// Role returns the role claim.
func (c Claims) Role() string { return c.str(ClaimRole) }

// UserID returns the uid claim.
func (c Claims) UserID() string { return c.str(ClaimUserID) }

// Name returns the display name claim.
func (c Claims) Name() string { return c.str(ClaimName) }

// ID returns the jti claim.
func (c Claims) ID() string { return c.str(ClaimTokenID) }

// ExpiresAt returns the exp claim or the zero time.
func (c Claims) ExpiresAt() time.Time {
	d, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}

// IssuedAt returns the iat claim or the zero time.
func (c Claims) IssuedAt() time.Time {
	d, err := jwt.MapClaims(c).GetIssuedAt()
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}
