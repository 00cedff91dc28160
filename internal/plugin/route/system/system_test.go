package system

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/ufdr-service/internal/plugin/cache/local"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, r *gin.Engine, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cache, err := local.New(1 << 20)
	require.NoError(t, err)
	r := gin.New()
	MountRoutes(r, cache)

	code, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	ready.Store(false)
	code, body = get(t, r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "starting", body["status"])

	MarkReady()
	t.Cleanup(func() { ready.Store(false) })
	code, body = get(t, r, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "available", body["cache"])

	code, _ = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestCacheStatusWithoutCache(t *testing.T) {
	assert.Equal(t, "disabled", cacheStatus(nil))
}
