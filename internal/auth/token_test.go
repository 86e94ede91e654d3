package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mernacademy/student-auth/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func newCodec(t *testing.T, clock *fakeClock, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", append([]CodecOption{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return codec
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := newClock()
	codec := newCodec(t, clock)

	in := domain.TokenClaims{Subject: "acc-1", Role: domain.RoleStudent, Purpose: domain.PurposeSession}
	tok, exp, err := codec.Sign(in, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(7*24*time.Hour), exp)

	claims, err := codec.Verify(tok)
	require.NoError(t, err)

	out := claims.TokenClaims()
	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.Purpose, out.Purpose)
	assert.True(t, out.IssuedAt.Equal(clock.t))
	assert.True(t, out.ExpiresAt.Equal(exp))
	assert.NotEmpty(t, claims.ID)
}

func TestTokenCodec_SameSecondTokensDiffer(t *testing.T) {
	codec := newCodec(t, newClock())
	c := domain.TokenClaims{Subject: "acc-1", Purpose: domain.PurposeResetPassword}

	first, _, err := codec.Sign(c, 10*time.Minute)
	require.NoError(t, err)
	second, _, err := codec.Sign(c, 10*time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenCodec_Expired(t *testing.T) {
	clock := newClock()
	codec := newCodec(t, clock)

	tok, _, err := codec.Sign(domain.TokenClaims{Subject: "acc-1", Purpose: domain.PurposeResetPassword}, 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Second)
	_, err = codec.Verify(tok)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_LeewayExtendsExpiry(t *testing.T) {
	clock := newClock()
	codec := newCodec(t, clock, WithLeeway(30*time.Second))

	tok, _, err := codec.Sign(domain.TokenClaims{Subject: "acc-1", Purpose: domain.PurposeSession}, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute + 10*time.Second)
	_, err = codec.Verify(tok)
	assert.NoError(t, err)
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	clock := newClock()
	tok, _, err := newCodec(t, clock).Sign(domain.TokenClaims{Subject: "acc-1", Purpose: domain.PurposeSession}, time.Hour)
	require.NoError(t, err)

	other, err := NewTokenCodec("other-secret", WithClock(clock.Now))
	require.NoError(t, err)

	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenCodec_Tampered(t *testing.T) {
	codec := newCodec(t, newClock())
	tok, _, err := codec.Sign(domain.TokenClaims{Subject: "acc-1", Role: domain.RoleStudent, Purpose: domain.PurposeSession}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "x" + "." + parts[2]

	_, err = codec.Verify(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := newCodec(t, newClock())

	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		_, err := codec.Verify(tok)
		assert.ErrorIs(t, err, ErrTokenMalformed, tok)
	}
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	clock := newClock()
	codec := newCodec(t, clock)

	claims := &Claims{
		Purpose: domain.PurposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(clock.t),
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_RequiresExpiry(t *testing.T) {
	clock := newClock()
	codec := newCodec(t, clock)

	claims := &Claims{
		Purpose:          domain.PurposeSession,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-1"},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodec_VerifyPurpose(t *testing.T) {
	codec := newCodec(t, newClock())
	tok, _, err := codec.Sign(domain.TokenClaims{Subject: "acc-1", Purpose: domain.PurposeVerifyEmail}, time.Hour)
	require.NoError(t, err)

	_, err = codec.VerifyPurpose(tok, domain.PurposeVerifyEmail)
	assert.NoError(t, err)

	_, err = codec.VerifyPurpose(tok, domain.PurposeSession)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokenCodec_EmptySecret(t *testing.T) {
	_, err := NewTokenCodec("")
	assert.Error(t, err)
}

func TestTokenCodec_NonPositiveTTL(t *testing.T) {
	codec := newCodec(t, newClock())
	_, _, err := codec.Sign(domain.TokenClaims{Subject: "acc-1"}, 0)
	assert.Error(t, err)
}
