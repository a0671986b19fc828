package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenOK(t *testing.T) {
	v := NewValidator(testSecret)
	tokenStr := signToken(t, testSecret, Claims{
		SessionID: "sess-1",
		QuizID:    "quiz-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.ValidateToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "quiz-1", claims.QuizID)
}

func TestValidateTokenExpired(t *testing.T) {
	v := NewValidator(testSecret)
	tokenStr := signToken(t, testSecret, Claims{
		SessionID: "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := v.ValidateToken(tokenStr)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	v := NewValidator(testSecret)
	tokenStr := signToken(t, "other-secret", Claims{SessionID: "sess-1"})

	_, err := v.ValidateToken(tokenStr)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenMissingSessionID(t *testing.T) {
	v := NewValidator(testSecret)
	tokenStr := signToken(t, testSecret, Claims{QuizID: "quiz-1"})

	_, err := v.ValidateToken(tokenStr)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateTokenGarbage(t *testing.T) {
	v := NewValidator(testSecret)

	_, err := v.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
