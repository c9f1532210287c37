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

// UserHandler serves registration and sign-in.
type UserHandler struct {
	users    *service.UserService
	sessions *identity.SessionIssuer
	auth     *Authenticator
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, sessions *identity.SessionIssuer, auth *Authenticator, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, auth: auth, logger: logger}
}

// Register mounts the user routes on the given router group.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/users", h.SignUp)
	rg.POST("/sessions", h.SignIn)
	rg.GET("/users/me", append(h.auth.Required(), h.Me)...)
}

type signUpRequest struct {
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expiresIn"`
	User      *model.User `json:"user"`
}

// SignUp handles POST /users and returns the new user with a session token.
func (h *UserHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = model.RoleCitizen
	}

	u, err := h.users.Register(c.Request.Context(), req.Email, req.Name, req.Role)
	if err != nil {
		respondError(c, h.logger, "register user", err)
		return
	}
	h.issue(c, http.StatusCreated, u)
}

// SignIn handles POST /sessions. Users are identified by e-mail address.
func (h *UserHandler) SignIn(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required", "field": "email"})
		return
	}

	u, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown email address"})
		return
	}
	if err != nil {
		respondError(c, h.logger, "sign in", err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

func (h *UserHandler) issue(c *gin.Context, status int, u *model.User) {
	token, err := h.sessions.Issue(u.ID, u.Name, string(u.Role))
	if err != nil {
		respondError(c, h.logger, "issue session", err)
		return
	}
	c.JSON(status, sessionResponse{
		Token:     token,
		ExpiresIn: int(h.sessions.TTL().Seconds()),
		User:      u,
	})
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
