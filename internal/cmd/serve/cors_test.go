package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestParseOrigins(t *testing.T) {
	require.True(t, parseOrigins("")["*"])
	origins := parseOrigins(" https://lab.example/ , https://court.example")
	require.True(t, origins["https://lab.example"])
	require.True(t, origins["https://court.example"])
	require.False(t, origins["*"])
}

func corsRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(origins))
	router.GET("/v1/evidence", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestCorsMiddleware_AllowsConfiguredOrigin(t *testing.T) {
	router := corsRouter("https://lab.example")

	req := httptest.NewRequest(http.MethodGet, "/v1/evidence", nil)
	req.Header.Set("Origin", "https://lab.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://lab.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	router := corsRouter("https://lab.example")

	req := httptest.NewRequest(http.MethodOptions, "/v1/evidence", nil)
	req.Header.Set("Origin", "https://lab.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Justification")

	req = httptest.NewRequest(http.MethodOptions, "/v1/evidence", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
