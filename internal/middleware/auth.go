package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/twentyfive/authgate/internal/auth"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// TokenValidator verifies a session token. Satisfied by *auth.SessionTokenService.
type TokenValidator interface {
	Validate(token string) (*iauth.SessionClaims, error)
}

// Session loads the session token from the cookie, or a bearer Authorization
// header for non-browser clients, and stores valid claims on the context.
// It never rejects a request; Access decides what an absent session means.
func Session(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := SessionToken(c); raw != "" {
			if claims, err := tokens.Validate(raw); err == nil {
				c.Set(CtxClaimsKey, claims)
				c.Set(CtxUserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// SessionToken returns the raw session token presented with the request.
func SessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(iauth.SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// ClaimsFromContext returns the claims stored by Session, if any.
func ClaimsFromContext(c *gin.Context) (*iauth.SessionClaims, bool) {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*iauth.SessionClaims)
	return claims, ok && claims != nil
}
