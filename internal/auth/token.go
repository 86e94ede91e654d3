package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mernacademy/student-auth/internal/domain"
)

var (
	// ErrTokenInvalid is the umbrella for every verification failure.
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrTokenInvalid)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrTokenInvalid)

	errEmptySecret = errors.New("token signing secret is empty")
)

// Claims describes JWT payload.
type Claims struct {
	Role    domain.Role         `json:"role,omitempty"`
	Purpose domain.TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenClaims converts the JWT payload into the domain claim set.
func (c *Claims) TokenClaims() domain.TokenClaims {
	out := domain.TokenClaims{
		Subject: c.Subject,
		Role:    c.Role,
		Purpose: c.Purpose,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

// TokenCodec signs and verifies HS256 bearer tokens.
type TokenCodec struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithLeeway sets the clock-skew tolerance applied to exp and iat.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if d > 0 {
			c.leeway = d
		}
	}
}

// WithClock replaces time.Now for issuance and validation.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec builds a codec around a symmetric secret.
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	c := &TokenCodec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token for claims valid for ttl. IssuedAt and ExpiresAt in
// claims are ignored and derived from the codec clock.
func (c *TokenCodec) Sign(claims domain.TokenClaims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	issuedAt := c.now()
	expiresAt := issuedAt.Add(ttl)

	payload := &Claims{
		Role:    claims.Role,
		Purpose: claims.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, payload.ExpiresAt.Time, nil
}

// Verify validates signature and expiry and returns the claims.
func (c *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)

	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyPurpose verifies the token and additionally requires a purpose.
func (c *TokenCodec) VerifyPurpose(tokenStr string, purpose domain.TokenPurpose) (*Claims, error) {
	claims, err := c.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q", ErrTokenInvalid, claims.Purpose)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenMalformed
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
