package evidence_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/access"
	"github.com/chirino/ufdr-service/internal/assistant"
	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/plugin/blob/fsstore"
	"github.com/chirino/ufdr-service/internal/plugin/cache/local"
	"github.com/chirino/ufdr-service/internal/plugin/route/evidence"
	"github.com/chirino/ufdr-service/internal/plugin/store/gormstore"
	"github.com/chirino/ufdr-service/internal/plugin/store/sqlite"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedModel struct{ answer string }

func (m cannedModel) Name() string { return "Canned" }

func (m cannedModel) Complete(context.Context, string) (string, error) { return m.answer, nil }

type env struct {
	router *gin.Engine
	store  *gormstore.Store
	caseID uuid.UUID
}

// testAuth reads "Bearer <user>" and treats the user "root" as an admin.
func testAuth(c *gin.Context) {
	user := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if user == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if user == "root" {
		security.SetIdentity(c, security.NewIdentity(user, security.RoleAdmin))
	} else {
		security.SetIdentity(c, security.NewIdentity(user))
	}
	c.Next()
}

func setupRouter(t *testing.T) env {
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
	cache, err := local.New(1 << 20)
	require.NoError(t, err)

	policy, err := access.NewPolicyEngine(context.Background(), "")
	require.NoError(t, err)
	guard := access.NewGuard(policy, store)

	cfg := config.DefaultConfig()
	cfg.MaxTopK = 50

	retriever := assistant.NewRetriever(store, cache, nil, nil, assistant.Assembler{}, time.Hour)
	sessions := assistant.NewSessions(cache, store, time.Hour)
	orchestrator := assistant.NewOrchestrator(store, guard, retriever, sessions, cannedModel{answer: "Ravi travelled to Mumbai."}, cache, assistant.Options{})

	caseID := uuid.New()
	require.NoError(t, store.AssignCase(context.Background(), caseID, "alice"))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	evidence.MountRoutes(router, evidence.Deps{
		Store:        store,
		Evidence:     service.NewEvidenceService(store, blobs, nil, nil, 1024),
		Guard:        guard,
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Config:       &cfg,
	}, testAuth)
	return env{router: router, store: store, caseID: caseID}
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+userID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, router *gin.Engine, userID, caseID, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if caseID != "" {
		require.NoError(t, mw.WriteField("caseId", caseID))
	}
	fw, err := mw.CreateFormFile("file", "handset.ufdr")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+userID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func uploadedID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestUpload_RequiresAssignedCase(t *testing.T) {
	e := setupRouter(t)

	w := upload(t, e.router, "alice", "", "archive")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = upload(t, e.router, "bob", e.caseID.String(), "archive")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = upload(t, e.router, "alice", "not-a-uuid", "archive")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "archive"))
	uploadedID(t, upload(t, e.router, "root", "", "archive"))
}

func TestUpload_TooLarge(t *testing.T) {
	e := setupRouter(t)
	w := upload(t, e.router, "root", "", strings.Repeat("x", 2048))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file", decode(t, w)["field"])
}

func TestListEvidence_FiltersByAccess(t *testing.T) {
	e := setupRouter(t)
	mine := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))
	uploadedID(t, upload(t, e.router, "root", "", "b"))

	w := doJSON(t, e.router, http.MethodGet, "/v1/evidence", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, mine, data[0].(map[string]any)["id"])

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence", "root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"].([]any), 2)
}

func TestGetEvidence(t *testing.T) {
	e := setupRouter(t)
	id := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))

	w := doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "handset.ufdr", decode(t, w)["filename"])

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+uuid.NewString(), "root", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])
}

func TestIngestAndListArtifacts(t *testing.T) {
	e := setupRouter(t)
	id := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))

	w := doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/artifacts", "alice", map[string]any{
		"artifacts": []map[string]any{
			{"type": "message", "text": "Ravi Sharma travelled to Mumbai", "raw": map[string]any{"from": "+91"}},
			{"type": "call", "text": "Call with Priya"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/artifacts", "alice", map[string]any{
		"artifacts": []map[string]any{{"text": "no type"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "artifacts[0].type", decode(t, w)["field"])

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id+"/artifacts?q=mumbai", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"].([]any), 1)

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id+"/artifacts", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"].([]any), 2)

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id+"/artifacts?limit=0", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsk_RecordsSession(t *testing.T) {
	e := setupRouter(t)
	id := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))
	w := doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/artifacts", "alice", map[string]any{
		"artifacts": []map[string]any{{"type": "message", "text": "Ravi Sharma travelled to Mumbai"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/ask", "alice", map[string]any{"question": "Where did Ravi go?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	answer := decode(t, w)
	assert.Equal(t, "Ravi travelled to Mumbai.", answer["answer"])
	assert.Equal(t, "keyword", answer["retrievalTier"])
	assert.EqualValues(t, 1, answer["matchedCount"])

	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id+"/session", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decode(t, w)
	assert.Len(t, session["messages"].([]any), 2)
	assert.Equal(t, "user: Where did Ravi go?\nassistant: Ravi travelled to Mumbai.", session["transcript"])

	// Sessions are per user.
	w = doJSON(t, e.router, http.MethodGet, "/v1/evidence/"+id+"/session", "root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["messages"])
}

func TestAsk_BlankQuestionListsArtifacts(t *testing.T) {
	e := setupRouter(t)
	id := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))
	w := doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/artifacts", "alice", map[string]any{
		"artifacts": []map[string]any{
			{"type": "message", "text": "Ravi Sharma travelled to Mumbai"},
			{"type": "call", "text": "Call with Priya"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/ask", "alice", map[string]any{"question": "   ", "topK": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	answer := decode(t, w)
	assert.Equal(t, "   ", answer["query"])
	assert.Equal(t, "keyword", answer["retrievalTier"])
	assert.EqualValues(t, 1, answer["matchedCount"])

	w = doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/ask", "alice", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["matchedCount"])
}

func TestAsk_Validation(t *testing.T) {
	e := setupRouter(t)
	id := uploadedID(t, upload(t, e.router, "alice", e.caseID.String(), "a"))

	cases := []struct {
		name string
		body map[string]any
	}{
		{"topK zero", map[string]any{"question": "who?", "topK": 0}},
		{"topK above max", map[string]any{"question": "who?", "topK": 51}},
		{"question too long", map[string]any{"question": strings.Repeat("a", evidence.MaxQuestionLength+1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/ask", "alice", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+id+"/ask", "bob", map[string]any{"question": "who?"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, e.router, http.MethodPost, "/v1/evidence/"+uuid.NewString()+"/ask", "alice", map[string]any{"question": "who?"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
