// Package cases serves the case list and the dashboard overview. Admins see
// everything; other callers see the cases they are assigned to.
package cases

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/ufdr-service/internal/registry/route"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecentUploads is how many of the latest evidence files the dashboard shows.
const RecentUploads = 15

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "cases",
		Order: 150,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, d registryroute.Deps) error {
			MountRoutes(r, d.Store, d.Auth)
			return nil
		},
	})
}

// MountRoutes mounts the case and dashboard routes.
func MountRoutes(r *gin.Engine, store registrystore.EvidenceStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)
	g.GET("/cases", func(c *gin.Context) {
		listCases(c, store)
	})
	g.GET("/dashboard/summary", func(c *gin.Context) {
		summary(c, store)
	})
}

// visibleCases returns nil for admins, meaning every case.
func visibleCases(c *gin.Context, store registrystore.EvidenceStore) ([]uuid.UUID, error) {
	id := security.GetIdentity(c)
	if id.IsAdmin() {
		return nil, nil
	}
	ids, err := store.AssignedCaseIDs(c.Request.Context(), id.UserID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func listCases(c *gin.Context, store registrystore.EvidenceStore) {
	ids, err := visibleCases(c, store)
	if err != nil {
		internalError(c, err)
		return
	}
	cases, err := store.ListCases(c.Request.Context(), ids)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cases})
}

func summary(c *gin.Context, store registrystore.EvidenceStore) {
	ids, err := visibleCases(c, store)
	if err != nil {
		internalError(c, err)
		return
	}
	sum, err := store.Summarize(c.Request.Context(), ids, RecentUploads)
	if err != nil {
		internalError(c, err)
		return
	}

	var insights string
	switch {
	case ids == nil:
		insights = fmt.Sprintf("%d cases with %d evidence files and %d extracted artifacts.",
			sum.Cases, sum.EvidenceFiles, sum.Artifacts)
	case len(ids) == 0:
		insights = "No cases assigned yet."
	default:
		insights = fmt.Sprintf("You are assigned to %d cases containing %d evidence files and %d artifacts.",
			sum.Cases, sum.EvidenceFiles, sum.Artifacts)
	}
	c.JSON(http.StatusOK, gin.H{
		"cases":         sum.Cases,
		"evidenceFiles": sum.EvidenceFiles,
		"artifacts":     sum.Artifacts,
		"recentUploads": sum.RecentUploads,
		"insights":      insights,
	})
}

func internalError(c *gin.Context, err error) {
	log.Error("Case request failed", "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
