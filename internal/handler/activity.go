package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/service"
	"go.uber.org/zap"
)

// ActivityHandler exposes the report activity log.
type ActivityHandler struct {
	ledger  activity.Ledger
	reports *service.ReportService
	auth    *Authenticator
	logger  *zap.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(ledger activity.Ledger, reports *service.ReportService, auth *Authenticator, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{ledger: ledger, reports: reports, auth: auth, logger: logger}
}

// Register mounts the activity routes on the given router group.
func (h *ActivityHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/activity", h.Overview)
	rg.GET("/activity/verify", h.Verify)
	rg.GET("/reports/:id/activity", append(h.auth.Required(), h.ForReport)...)
}

// Overview handles GET /activity and returns the chain length and root hash.
func (h *ActivityHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("activity Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query activity log"})
		return
	}

	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("activity Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query activity root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /activity/verify.
func (h *ActivityHandler) Verify(c *gin.Context) {
	if err := h.reports.VerifyActivity(c.Request.Context()); err != nil {
		h.logger.Warn("activity integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ForReport handles GET /reports/:id/activity.
func (h *ActivityHandler) ForReport(c *gin.Context) {
	entries, err := h.reports.Activity(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "report activity", err)
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
