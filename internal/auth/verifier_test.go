package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, providerClaims{
		Email: "alice@example.com",
		Name:  "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifyLocal(t *testing.T) {
	v := NewVerifier("test-secret", "")

	claims, err := v.Verify(context.Background(), signToken(t, "test-secret", "acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
}

func TestVerifyLocalRejectsBadSignature(t *testing.T) {
	v := NewVerifier("test-secret", "")

	_, err := v.Verify(context.Background(), signToken(t, "other-secret", "acc-1"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyLocalRejectsExpired(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	v := NewVerifier("test-secret", "")
	_, err = v.Verify(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewVerifier("test-secret", "")
	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyLocalRejectsMissingSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	v := NewVerifier("test-secret", "")
	_, err = v.Verify(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
