package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/pkg/models"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("test-secret")
	account := models.MustAddress("0xA1")

	t.Run("should round trip the caller address", func(t *testing.T) {
		token, err := svc.Issue(account, time.Hour)
		require.NoError(t, err)

		got, claims, err := svc.VerifyToken("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, account, got)
		assert.Equal(t, "0xa1", claims.Account)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("should reject tokens signed with another secret", func(t *testing.T) {
		token, err := NewService("other").Issue(account, time.Hour)
		require.NoError(t, err)

		_, _, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should report expiry", func(t *testing.T) {
		past := &Service{jwtSecret: []byte("test-secret"), now: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
		token, err := past.Issue(account, time.Hour)
		require.NoError(t, err)

		_, _, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("should reject the none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "0xa1", Issuer: issuer},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, _, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, _, err := svc.VerifyToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMissingSecret(t *testing.T) {
	svc := NewService("")

	_, err := svc.Issue(models.MustAddress("0xa1"), time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
	_, _, err = svc.VerifyToken("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}
