package evidence

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chirino/ufdr-service/internal/access"
	"github.com/chirino/ufdr-service/internal/assistant"
	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/model"
	registryroute "github.com/chirino/ufdr-service/internal/registry/route"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaxQuestionLength bounds the size of a single question.
const MaxQuestionLength = 8000

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "evidence",
		Order: 100,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, d registryroute.Deps) error {
			MountRoutes(r, Deps{
				Store:        d.Store,
				Evidence:     d.Evidence,
				Guard:        d.Guard,
				Orchestrator: d.Orchestrator,
				Sessions:     d.Sessions,
				Config:       d.Config,
			}, d.Auth)
			return nil
		},
	})
}

// Deps are the collaborators the evidence routes need.
type Deps struct {
	Store        registrystore.EvidenceStore
	Evidence     *service.EvidenceService
	Guard        assistant.Authorizer
	Orchestrator *assistant.Orchestrator
	Sessions     *assistant.Sessions
	Config       *config.Config
}

// MountRoutes mounts the investigator facing evidence routes.
func MountRoutes(r *gin.Engine, deps Deps, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/evidence", func(c *gin.Context) {
		uploadEvidence(c, deps)
	})
	g.GET("/evidence", func(c *gin.Context) {
		listEvidence(c, deps)
	})
	g.GET("/evidence/:evidenceFileId", func(c *gin.Context) {
		getEvidence(c, deps)
	})
	g.POST("/evidence/:evidenceFileId/artifacts", func(c *gin.Context) {
		ingestArtifacts(c, deps)
	})
	g.GET("/evidence/:evidenceFileId/artifacts", func(c *gin.Context) {
		listArtifacts(c, deps)
	})
	g.GET("/evidence/:evidenceFileId/session", func(c *gin.Context) {
		getSession(c, deps)
	})
	g.POST("/evidence/:evidenceFileId/ask", func(c *gin.Context) {
		ask(c, deps)
	})
}

func caller(c *gin.Context) access.Caller {
	return access.CallerFromIdentity(security.GetIdentity(c))
}

// authorizedFile loads the evidence file named in the path and checks that
// the caller may use it. It writes the error response itself.
func authorizedFile(c *gin.Context, deps Deps) (*model.EvidenceFile, bool) {
	id, err := uuid.Parse(c.Param("evidenceFileId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid evidence file id"})
		return nil, false
	}
	file, err := deps.Store.GetEvidenceFile(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	if deps.Guard != nil {
		if err := deps.Guard.Authorize(c.Request.Context(), caller(c), file); err != nil {
			handleError(c, err)
			return nil, false
		}
	}
	return file, true
}

func uploadEvidence(c *gin.Context, deps Deps) {
	var caseID *uuid.UUID
	if raw := strings.TrimSpace(c.PostForm("caseId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid caseId"})
			return
		}
		caseID = &id
	}
	// Uploads follow the same policy as reads, so nobody creates evidence
	// they could not query afterwards.
	if deps.Guard != nil {
		if err := deps.Guard.Authorize(c.Request.Context(), caller(c), &model.EvidenceFile{CaseID: caseID}); err != nil {
			handleError(c, err)
			return
		}
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "multipart field 'file' is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		handleError(c, err)
		return
	}
	defer f.Close()

	file, err := deps.Evidence.Upload(c.Request.Context(), service.UploadRequest{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		CaseID:      caseID,
		UploadedBy:  security.GetUserID(c),
		Body:        f,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func listEvidence(c *gin.Context, deps Deps) {
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "limit must be between 1 and 500"})
		return
	}
	files, err := deps.Store.ListEvidenceFiles(c.Request.Context(), time.Now().UTC().Add(time.Second), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	who := caller(c)
	visible := make([]model.EvidenceFile, 0, len(files))
	for i := range files {
		if deps.Guard != nil {
			err := deps.Guard.Authorize(c.Request.Context(), who, &files[i])
			var forbidden *registrystore.ForbiddenError
			if errors.As(err, &forbidden) {
				continue
			}
			if err != nil {
				handleError(c, err)
				return
			}
		}
		visible = append(visible, files[i])
	}
	c.JSON(http.StatusOK, gin.H{"data": visible})
}

func getEvidence(c *gin.Context, deps Deps) {
	file, ok := authorizedFile(c, deps)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, file)
}

func ingestArtifacts(c *gin.Context, deps Deps) {
	file, ok := authorizedFile(c, deps)
	if !ok {
		return
	}
	var req struct {
		Artifacts []service.ArtifactInput `json:"artifacts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	artifacts, err := deps.Evidence.IngestArtifacts(c.Request.Context(), file, req.Artifacts)
	if err != nil {
		handleError(c, err)
		return
	}
	ids := make([]uuid.UUID, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.ID
	}
	c.JSON(http.StatusCreated, gin.H{"count": len(ids), "artifactIds": ids})
}

func listArtifacts(c *gin.Context, deps Deps) {
	file, ok := authorizedFile(c, deps)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "limit must be between 1 and 500"})
		return
	}
	var (
		artifacts []model.Artifact
		err       error
	)
	if terms := strings.Fields(c.Query("q")); len(terms) > 0 {
		artifacts, err = deps.Store.SearchArtifactsByText(c.Request.Context(), file.ID, terms, limit)
	} else {
		artifacts, err = deps.Store.ListArtifacts(c.Request.Context(), file.ID, limit)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	if artifacts == nil {
		artifacts = []model.Artifact{}
	}
	c.JSON(http.StatusOK, gin.H{"data": artifacts})
}

func getSession(c *gin.Context, deps Deps) {
	file, ok := authorizedFile(c, deps)
	if !ok {
		return
	}
	id := assistant.DeriveSessionID(file.ID, security.GetUserID(c))
	session, err := deps.Sessions.Load(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	messages := []model.Message{}
	if session != nil {
		messages = session.Messages
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":      id,
		"evidenceFileId": file.ID,
		"messages":       messages,
		"transcript":     assistant.Transcript(messages),
	})
}

func ask(c *gin.Context, deps Deps) {
	fileID, err := uuid.Parse(c.Param("evidenceFileId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid evidence file id"})
		return
	}
	var req struct {
		Question string `json:"question"`
		TopK     *int   `json:"topK"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	// A blank question is answered over the file's most recent artifacts.
	if len(req.Question) > MaxQuestionLength {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": fmt.Sprintf("question exceeds %d characters", MaxQuestionLength)})
		return
	}
	topK := 0
	if req.TopK != nil {
		maxTopK := 300
		if deps.Config != nil && deps.Config.MaxTopK > 0 {
			maxTopK = deps.Config.MaxTopK
		}
		if *req.TopK < 1 || *req.TopK > maxTopK {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": fmt.Sprintf("topK must be between 1 and %d", maxTopK)})
			return
		}
		topK = *req.TopK
	}

	answer, err := deps.Orchestrator.Ask(c.Request.Context(), assistant.AskRequest{
		EvidenceFileID: fileID,
		Question:       req.Question,
		Caller:         caller(c),
		TopK:           topK,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return def
	}
	return i
}
