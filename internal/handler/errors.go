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

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, model.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Server-side failures are logged
// and their detail is withheld from the client.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "storage unavailable"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	body := gin.H{"error": err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	c.JSON(status, body)
}
