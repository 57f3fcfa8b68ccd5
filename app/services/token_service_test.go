package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuallibrarycard/vlc/app/services"
)

const testSigningKey = "a-test-signing-key-of-sufficient-length"

func newTokenService(t *testing.T, accessTTL, verificationTTL time.Duration) services.TokenService {
	t.Helper()
	svc, err := services.NewTokenService(testSigningKey, accessTTL, verificationTTL, "test-issuer")
	require.NoError(t, err)
	return svc
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := newTokenService(t, time.Hour, time.Hour)

	t.Run("AccessToken", func(t *testing.T) {
		token, err := svc.GenerateAccessToken(42)
		require.NoError(t, err)

		claims, err := svc.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, uint(42), claims.PatronID)
		assert.Equal(t, services.TokenTypeAccess, claims.TokenType)
		assert.NotEmpty(t, claims.TokenID)
	})

	t.Run("VerificationToken", func(t *testing.T) {
		token, err := svc.GenerateVerificationToken(7, "patron@example.com")
		require.NoError(t, err)

		claims, err := svc.ValidateVerificationToken(token)
		require.NoError(t, err)
		assert.Equal(t, uint(7), claims.PatronID)
		assert.Equal(t, "patron@example.com", claims.Email)
	})
}

func TestTokenServiceRejections(t *testing.T) {
	svc := newTokenService(t, time.Hour, time.Hour)

	t.Run("WrongTokenType", func(t *testing.T) {
		access, err := svc.GenerateAccessToken(1)
		require.NoError(t, err)
		_, err = svc.ValidateVerificationToken(access)
		assert.ErrorIs(t, err, services.ErrTokenInvalid)

		verification, err := svc.GenerateVerificationToken(1, "x@example.com")
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(verification)
		assert.ErrorIs(t, err, services.ErrTokenInvalid)
	})

	t.Run("TamperedToken", func(t *testing.T) {
		token, err := svc.GenerateAccessToken(1)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token + "x")
		assert.ErrorIs(t, err, services.ErrTokenInvalid)
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, err := services.NewTokenService("another-key-that-is-also-long-enough", time.Hour, time.Hour, "test-issuer")
		require.NoError(t, err)

		token, err := other.GenerateAccessToken(1)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, services.ErrTokenInvalid)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, services.ErrTokenInvalid)
	})
}

func TestTokenServiceExpiry(t *testing.T) {
	svc := newTokenService(t, -time.Minute, -time.Minute)

	token, err := svc.GenerateAccessToken(1)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, services.ErrTokenExpired)

	verification, err := svc.GenerateVerificationToken(1, "x@example.com")
	require.NoError(t, err)
	_, err = svc.ValidateVerificationToken(verification)
	assert.ErrorIs(t, err, services.ErrTokenExpired)
}

func TestTokenServiceRequiresKey(t *testing.T) {
	_, err := services.NewTokenService("", time.Hour, time.Hour, "test-issuer")
	require.Error(t, err)
}
