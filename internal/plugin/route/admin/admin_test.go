package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/chirino/ufdr-service/internal/plugin/blob/fsstore"
	"github.com/chirino/ufdr-service/internal/plugin/route/admin"
	"github.com/chirino/ufdr-service/internal/plugin/store/gormstore"
	"github.com/chirino/ufdr-service/internal/plugin/store/sqlite"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAuth reads "Bearer <user>"; "root" is an admin and "audit" an auditor.
func testAuth(c *gin.Context) {
	user := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	switch user {
	case "root":
		security.SetIdentity(c, security.NewIdentity(user, security.RoleAdmin))
	case "audit":
		security.SetIdentity(c, security.NewIdentity(user, security.RoleAuditor))
	default:
		security.SetIdentity(c, security.NewIdentity(user))
	}
	c.Next()
}

func setupRouter(t *testing.T) (*gin.Engine, *gormstore.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open("file:" + filepath.Join(dir, "ufdr.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := gormstore.New(db)
	blobs, err := fsstore.New(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	admin.MountRoutes(router, admin.Deps{
		Store:    store,
		Evidence: service.NewEvidenceService(store, blobs, nil, nil, 1024),
	}, testAuth)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createFile(t *testing.T, store *gormstore.Store, uploadedAt time.Time) *model.EvidenceFile {
	t.Helper()
	f := &model.EvidenceFile{Filename: "handset.ufdr", StoragePath: uuid.NewString(), UploadedAt: uploadedAt}
	require.NoError(t, store.CreateEvidenceFile(context.Background(), f))
	return f
}

func TestAdmin_RoleChecks(t *testing.T) {
	router, store := setupRouter(t)
	f := createFile(t, store, time.Now().UTC())

	w := doJSON(t, router, http.MethodGet, "/v1/admin/evidence", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/admin/evidence", "audit", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/admin/evidence/"+f.ID.String(), "audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_DeleteEvidence(t *testing.T) {
	router, store := setupRouter(t)
	ctx := context.Background()
	soft := createFile(t, store, time.Now().UTC())
	hard := createFile(t, store, time.Now().UTC())
	require.NoError(t, store.CreateArtifacts(ctx, []model.Artifact{{EvidenceFileID: hard.ID, Type: model.ArtifactMessage}}))

	w := doJSON(t, router, http.MethodDelete, "/v1/admin/evidence/"+soft.ID.String(), "root", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/v1/admin/evidence/"+soft.ID.String(), "root", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/admin/evidence/"+hard.ID.String()+"?hard=true", "root", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	artifacts, err := store.ListArtifacts(ctx, hard.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	w = doJSON(t, router, http.MethodDelete, "/v1/admin/evidence/not-a-uuid", "root", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_AssignCase(t *testing.T) {
	router, store := setupRouter(t)
	caseID := uuid.New()

	w := doJSON(t, router, http.MethodPost, "/v1/admin/cases/"+caseID.String()+"/assignments", "root", map[string]any{"userId": "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ok, err := store.IsAssigned(context.Background(), caseID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	w = doJSON(t, router, http.MethodPost, "/v1/admin/cases/"+caseID.String()+"/assignments", "root", map[string]any{"userId": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_Retention(t *testing.T) {
	router, store := setupRouter(t)
	old := createFile(t, store, time.Now().UTC().AddDate(0, 0, -40))
	fresh := createFile(t, store, time.Now().UTC())

	w := doJSON(t, router, http.MethodPost, "/v1/admin/retention", "root", map[string]any{"days": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, http.MethodPost, "/v1/admin/retention", "root", map[string]any{"days": 30, "mode": "shred"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/admin/retention", "root", map[string]any{"days": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Hard    bool        `json:"hard"`
		Deleted []uuid.UUID `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Hard)
	assert.Contains(t, resp.Deleted, old.ID)
	assert.NotContains(t, resp.Deleted, fresh.ID)

	_, err := store.GetEvidenceFile(context.Background(), fresh.ID)
	require.NoError(t, err)
}

func TestAdmin_CreateCase(t *testing.T) {
	router, store := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/admin/cases", "audit", map[string]any{"name": "Harbour seizure"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, router, http.MethodPost, "/v1/admin/cases", "root", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/admin/cases", "root", map[string]any{"name": "Harbour seizure", "description": "two handsets"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Case
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "root", created.CreatedBy)

	cases, err := store.ListCases(context.Background(), []uuid.UUID{created.ID})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "Harbour seizure", cases[0].Name)
	assert.Equal(t, "two handsets", *cases[0].Description)
}

func TestAdmin_AuditLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, store := setupRouter(t)
	router := gin.New()
	router.Use(security.AuditTrailMiddleware(store))
	admin.MountRoutes(router, admin.Deps{Store: store}, testAuth)

	w := doJSON(t, router, http.MethodGet, "/v1/admin/evidence", "alice", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, router, http.MethodGet, "/v1/admin/audit-logs?limit=0", "audit", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/admin/audit-logs", "alice", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/admin/audit-logs?limit=2", "audit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data []model.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "/v1/admin/audit-logs", resp.Data[0].Path)
	assert.Equal(t, http.StatusForbidden, resp.Data[0].StatusCode)
	assert.Equal(t, "alice", *resp.Data[0].UserID)
	assert.Equal(t, http.StatusBadRequest, resp.Data[1].StatusCode)
	assert.Equal(t, "audit", *resp.Data[1].UserID)
}
