package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registryroute "github.com/chirino/ufdr-service/internal/registry/route"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "admin",
		Order: 200,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, d registryroute.Deps) error {
			MountRoutes(r, Deps{Store: d.Store, Evidence: d.Evidence}, d.Auth)
			return nil
		},
	})
}

// Deps are the collaborators the admin routes need.
type Deps struct {
	Store    registrystore.EvidenceStore
	Evidence *service.EvidenceService
}

// MountRoutes mounts admin API routes.
func MountRoutes(r *gin.Engine, deps Deps, auth gin.HandlerFunc) {
	requireAuditor := security.RequireRole(security.RoleAuditor)
	requireAdmin := security.RequireRole(security.RoleAdmin)

	g := r.Group("/v1/admin", auth, requireAuditor)

	g.GET("/evidence", func(c *gin.Context) {
		adminListEvidence(c, deps)
	})
	g.GET("/audit-logs", func(c *gin.Context) {
		adminListAuditLogs(c, deps)
	})
	g.POST("/cases", requireAdmin, func(c *gin.Context) {
		adminCreateCase(c, deps)
	})
	g.DELETE("/evidence/:evidenceFileId", requireAdmin, func(c *gin.Context) {
		adminDeleteEvidence(c, deps)
	})
	g.POST("/cases/:caseId/assignments", requireAdmin, func(c *gin.Context) {
		adminAssignCase(c, deps)
	})
	g.POST("/retention", requireAdmin, func(c *gin.Context) {
		adminRetention(c, deps)
	})
}

// queryLimit parses ?limit=, defaulting to 100. It writes the error response itself.
func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 100, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "limit must be between 1 and 1000"})
		return 0, false
	}
	return n, true
}

func adminListEvidence(c *gin.Context, deps Deps) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	before := time.Now().UTC().Add(time.Second)
	if v := c.Query("uploadedBefore"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "uploadedBefore must be RFC 3339"})
			return
		}
		before = t
	}
	files, err := deps.Store.ListEvidenceFiles(c.Request.Context(), before, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": files})
}

func adminListAuditLogs(c *gin.Context, deps Deps) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	logs, err := deps.Store.ListAuditLogs(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func adminCreateCase(c *gin.Context, deps Deps) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "name is required", "field": "name"})
		return
	}
	created := &model.Case{Name: req.Name, Description: req.Description, CreatedBy: security.GetUserID(c)}
	if err := deps.Store.CreateCase(c.Request.Context(), created); err != nil {
		handleError(c, err)
		return
	}
	log.Info("Case created", "caseId", created.ID, "by", created.CreatedBy)
	c.JSON(http.StatusCreated, created)
}

func adminDeleteEvidence(c *gin.Context, deps Deps) {
	id, err := uuid.Parse(c.Param("evidenceFileId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid evidence file id"})
		return
	}
	hard := c.Query("hard") == "true"
	if err := deps.Evidence.Delete(c.Request.Context(), id, hard); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func adminAssignCase(c *gin.Context, deps Deps) {
	caseID, err := uuid.Parse(c.Param("caseId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid case id"})
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "userId is required", "field": "userId"})
		return
	}
	if err := deps.Store.AssignCase(c.Request.Context(), caseID, req.UserID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"caseId": caseID, "userId": req.UserID})
}

func adminRetention(c *gin.Context, deps Deps) {
	var req struct {
		Days int    `json:"days"`
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if req.Days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "days must be at least 1", "field": "days"})
		return
	}
	var hard bool
	switch req.Mode {
	case "", "soft":
	case "hard":
		hard = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "mode must be soft or hard", "field": "mode"})
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -req.Days)
	deleted, err := deps.Evidence.Sweep(c.Request.Context(), cutoff, hard, 100)
	if err != nil {
		handleError(c, err)
		return
	}
	log.Info("Admin retention sweep", "cutoff", cutoff, "hard", hard, "deleted", len(deleted))
	if deleted == nil {
		deleted = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, gin.H{"cutoff": cutoff, "hard": hard, "deleted": deleted})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		log.Error("Admin request failed", "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
