// Package auth validates the session bearer tokens minted by the pre-quiz
// flow. This service never issues tokens: credential issuance belongs to the
// external portal, and the controller treats session and quiz identifiers as
// opaque strings lifted from the validated claims.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the session token claims this service understands.
type Claims struct {
	SessionID string `json:"sid"`
	QuizID    string `json:"quiz_id"`
	jwt.RegisteredClaims
}

var (
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other validation failure.
	ErrTokenInvalid = errors.New("token invalid")
)

// Validator checks session tokens against a shared HMAC secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a token validator.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and verifies a session token string.
func (v *Validator) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
