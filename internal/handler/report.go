package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"go.uber.org/zap"
)

// ReportHandler exposes the report lifecycle over HTTP.
type ReportHandler struct {
	reports *service.ReportService
	auth    *Authenticator
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService, auth *Authenticator, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, auth: auth, logger: logger}
}

// Register mounts the report routes on the given router group.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	pub := rg.Group("", h.auth.Optional()...)
	{
		pub.GET("/reports", h.List)
		pub.GET("/reports/:id", h.Get)
		pub.GET("/community", h.Community)
		pub.GET("/leaderboard/citizens", h.CitizenLeaderboard)
		pub.GET("/leaderboard/authorities", h.AuthorityLeaderboard)
	}

	priv := rg.Group("", h.auth.Required()...)
	{
		priv.POST("/reports", h.Create)
		priv.PATCH("/reports/:id", h.Edit)
		priv.POST("/reports/:id/status", h.Transition)
		priv.POST("/reports/:id/notes", h.AddNote)
		priv.POST("/reports/:id/comments", h.AddComment)
		priv.POST("/reports/:id/vote", h.Vote)
		priv.GET("/stats", h.Stats)
		priv.GET("/export.csv", h.Export)
	}
}

// criteria builds filter criteria from the query string. owner=me selects
// the caller's own reports.
func criteria(c *gin.Context) feed.Criteria {
	crit := feed.Criteria{
		Status:   model.Status(c.Query("status")),
		Category: model.Category(c.Query("category")),
		Query:    c.Query("q"),
		OwnerID:  c.Query("owner"),
	}
	if crit.OwnerID == "me" {
		crit.OwnerID = ""
		if u := currentUser(c); u != nil {
			crit.OwnerID = u.ID
		}
	}
	crit.PublicOnly, _ = strconv.ParseBool(c.Query("public"))
	return crit
}

// List handles GET /reports.
func (h *ReportHandler) List(c *gin.Context) {
	if c.Query("owner") == "me" && currentUser(c) == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to list your own reports"})
		return
	}
	crit := criteria(c)
	if crit.Status != "" && !crit.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status", "field": "status"})
		return
	}
	if crit.Category != "" && !crit.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category", "field": "category"})
		return
	}

	reports, err := h.reports.List(c.Request.Context(), currentUser(c), crit)
	if err != nil {
		respondError(c, h.logger, "list reports", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// Get handles GET /reports/:id.
func (h *ReportHandler) Get(c *gin.Context) {
	r, err := h.reports.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Community handles GET /community, the public feed ordered by upvotes.
func (h *ReportHandler) Community(c *gin.Context) {
	reports, err := h.reports.Community(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, "community feed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// Create handles POST /reports.
func (h *ReportHandler) Create(c *gin.Context) {
	var content model.Content
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.Create(c.Request.Context(), currentUser(c), content)
	if err != nil {
		respondError(c, h.logger, "create report", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// Edit handles PATCH /reports/:id. Only fields present in the body change.
func (h *ReportHandler) Edit(c *gin.Context) {
	var patch model.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.Edit(c.Request.Context(), currentUser(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, "edit report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Transition handles POST /reports/:id/status.
func (h *ReportHandler) Transition(c *gin.Context) {
	var req struct {
		Status model.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.Transition(c.Request.Context(), currentUser(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, "transition report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type textRequest struct {
	Text string `json:"text"`
}

// AddNote handles POST /reports/:id/notes.
func (h *ReportHandler) AddNote(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.AddNote(c.Request.Context(), currentUser(c), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, h.logger, "add note", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// AddComment handles POST /reports/:id/comments.
func (h *ReportHandler) AddComment(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.AddComment(c.Request.Context(), currentUser(c), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, h.logger, "add comment", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// Vote handles POST /reports/:id/vote. Repeating a vote withdraws it.
func (h *ReportHandler) Vote(c *gin.Context) {
	var req struct {
		Kind model.VoteKind `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reports.Vote(c.Request.Context(), currentUser(c), c.Param("id"), req.Kind)
	if err != nil {
		respondError(c, h.logger, "vote", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Stats handles GET /stats.
func (h *ReportHandler) Stats(c *gin.Context) {
	s, err := h.reports.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, "report stats", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Export handles GET /export.csv.
func (h *ReportHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reports.Export(c.Request.Context(), currentUser(c), criteria(c), &buf); err != nil {
		respondError(c, h.logger, "export reports", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="reports.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// CitizenLeaderboard handles GET /leaderboard/citizens.
func (h *ReportHandler) CitizenLeaderboard(c *gin.Context) {
	var current string
	if u := currentUser(c); u != nil {
		current = u.ID
	}
	rows, err := h.reports.CitizenLeaderboard(c.Request.Context(), current)
	if err != nil {
		respondError(c, h.logger, "citizen leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

// AuthorityLeaderboard handles GET /leaderboard/authorities.
func (h *ReportHandler) AuthorityLeaderboard(c *gin.Context) {
	rows, err := h.reports.AuthorityLeaderboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "authority leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}
