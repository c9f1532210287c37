package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/identity"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"go.uber.org/zap"
)

const ctxUser = "opengov_user"

// Authenticator resolves the session token on a request to a stored user.
type Authenticator struct {
	sessions *identity.SessionIssuer
	users    *service.UserService
	logger   *zap.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(sessions *identity.SessionIssuer, users *service.UserService, logger *zap.Logger) *Authenticator {
	return &Authenticator{sessions: sessions, users: users, logger: logger}
}

// Optional returns middleware that attaches the signed-in user when a valid
// token names an existing user. Anonymous requests pass through.
func (a *Authenticator) Optional() gin.HandlersChain {
	return gin.HandlersChain{identity.OptionalSession(a.sessions), a.attach(false)}
}

// Required returns middleware that rejects requests without a valid session
// for an existing user.
func (a *Authenticator) Required() gin.HandlersChain {
	return gin.HandlersChain{identity.RequireSession(a.sessions), a.attach(true)}
}

func (a *Authenticator) attach(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := identity.SessionFromCtx(c)
		if claims == nil {
			c.Next()
			return
		}
		u, err := a.users.Get(c.Request.Context(), claims.UserID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session user no longer exists"})
				return
			}
			a.logger.Debug("ignoring session for unknown user", zap.String("user_id", claims.UserID))
			c.Next()
			return
		case err != nil:
			respondError(c, a.logger, "resolve session user", err)
			c.Abort()
			return
		}
		c.Set(ctxUser, u)
		c.Next()
	}
}

// currentUser returns the user attached by the Authenticator, or nil.
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}
