// Package token issues and verifies signed session tokens (JWT, HMAC family).
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/plaze/internal/errs"
)

// Claim names set by Issue.
const (
	ClaimSubject   = "sub"
	ClaimRole      = "role"
	ClaimUserID    = "uid"
	ClaimName      = "name"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimTokenID   = "jti"
)

// Config configures a Codec.
type Config struct {
	Secret    []byte
	Algorithm string        // HS256, HS384 or HS512
	TTL       time.Duration // default lifetime for Issue
	Now       func() time.Time
}

// Codec signs and verifies tokens with a single symmetric key and algorithm.
type Codec struct {
	key    []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token: unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token: ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{key: cfg.Secret, method: method, ttl: cfg.TTL, now: now}, nil
}

// TTL returns the default token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs claims adding exp, iat and jti. A non-positive ttl means the default.
// Reserved claims supplied by the caller are overwritten.
func (c *Codec) Issue(claims map[string]any, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now()
	exp := now.Add(ttl)

	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimExpiresAt] = jwt.NewNumericDate(exp)
	mc[ClaimIssuedAt] = jwt.NewNumericDate(now)
	mc[ClaimTokenID] = jti.String()

	signed, err := jwt.NewWithClaims(c.method, mc).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm and expiry.
// It returns errs.ErrExpiredToken for an expired token and errs.ErrInvalidToken otherwise.
func (c *Codec) Verify(raw string) (Claims, error) {
	return c.parse(raw, jwt.WithExpirationRequired(), jwt.WithTimeFunc(c.now))
}

// Inspect checks signature and structure but accepts expired tokens.
func (c *Codec) Inspect(raw string) (Claims, error) {
	return c.parse(raw, jwt.WithoutClaimsValidation())
}

func (c *Codec) parse(raw string, opts ...jwt.ParserOption) (Claims, error) {
	if raw == "" {
		return nil, errs.ErrInvalidToken
	}
	opts = append(opts, jwt.WithValidMethods([]string{c.method.Alg()}), jwt.WithStrictDecoding())

	mc := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) { return c.key, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	if !t.Valid {
		return nil, errs.ErrInvalidToken
	}
	return Claims(mc), nil
}
