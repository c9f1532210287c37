package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "opengov_session_claims"

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}

// RequireSession rejects requests without a valid Bearer session token.
func RequireSession(tokens *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer session token required"})
			return
		}
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// OptionalSession attaches the session claims when a valid token is present.
// It never aborts.
func OptionalSession(tokens *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr, ok := bearer(c); ok {
			if claims, err := tokens.Verify(tokenStr); err == nil {
				c.Set(ctxSessionClaims, claims)
			}
		}
		c.Next()
	}
}

// SessionFromCtx returns the claims set by RequireSession or OptionalSession,
// or nil.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, ok := c.Get(ctxSessionClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*SessionClaims)
	return claims
}
