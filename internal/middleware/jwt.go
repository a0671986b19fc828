package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quizhive/proctor-backend/internal/auth"
	"github.com/quizhive/proctor-backend/internal/response"
)

const (
	// ContextKeyClaims is the Gin context key for session token claims.
	ContextKeyClaims = "claims"
	// ContextKeyToken is the Gin context key for the raw bearer token,
	// forwarded to the quiz backend on outbound calls.
	ContextKeyToken = "bearer_token"
)

// RequireSessionJWT validates a session JWT from the Authorization header
// and checks that its sid claim matches the :session_id route param.
func RequireSessionJWT(validator *auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := validator.ValidateToken(tokenStr)
		if err != nil {
			code := response.ErrTokenInvalid
			if err == auth.ErrTokenExpired {
				code = response.ErrTokenExpired
			}
			response.AbortFail(c, http.StatusUnauthorized, code)
			return
		}

		if sid := c.Param("session_id"); sid != "" && sid != claims.SessionID {
			response.AbortFail(c, http.StatusForbidden, response.ErrSessionMismatch)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyToken, tokenStr)
		c.Next()
	}
}

// RequireSessionWSAuth validates a session JWT from the query param ?token=...
// Used for WebSocket upgrade requests, which cannot set headers.
func RequireSessionWSAuth(validator *auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := validator.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if sid := c.Param("session_id"); sid != "" && sid != claims.SessionID {
			response.AbortFail(c, http.StatusForbidden, response.ErrSessionMismatch)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyToken, tokenStr)
		c.Next()
	}
}

// GetClaims retrieves the session claims from the Gin context.
func GetClaims(c *gin.Context) *auth.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetBearerToken retrieves the raw bearer token from the Gin context.
func GetBearerToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], nil
		}
	}

	// Fallback for EventSource-style clients which cannot send headers
	if tokenStr := c.Query("token"); tokenStr != "" {
		return tokenStr, nil
	}

	return "", fmt.Errorf("authorization header or token query required")
}
