package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []model.AuditLog
	err     error
}

func (s *recordingSink) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return s.err
}

func auditRouter(sink AuditSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuditTrailMiddleware(sink, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/evidence/:id", AuthMiddleware(testResolver()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuditTrailMiddleware_RecordsRequests(t *testing.T) {
	sink := &recordingSink{}
	r := auditRouter(sink)

	req := httptest.NewRequest(http.MethodGet, "/v1/evidence/f1", nil)
	req.Header.Set("Authorization", "Bearer alice")
	req.Header.Set("X-API-Key", "k-123")
	req.Header.Set("User-Agent", "ufdr-cli/1.0")
	req.RemoteAddr = "10.1.2.3:5555"
	r.ServeHTTP(httptest.NewRecorder(), req)

	anon := httptest.NewRequest(http.MethodGet, "/v1/evidence/f2", nil)
	r.ServeHTTP(httptest.NewRecorder(), anon)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, sink.entries, 2)
	got := sink.entries[0]
	require.Equal(t, http.MethodGet, got.Method)
	require.Equal(t, "/v1/evidence/f1", got.Path)
	require.Equal(t, http.StatusNoContent, got.StatusCode)
	require.Equal(t, "alice", *got.UserID)
	require.Equal(t, "mcp-client", *got.ClientID)
	require.Equal(t, "10.1.2.3", got.IPAddress)
	require.Equal(t, "ufdr-cli/1.0", got.UserAgent)
	require.False(t, got.Timestamp.IsZero())

	require.Equal(t, http.StatusUnauthorized, sink.entries[1].StatusCode)
	require.Nil(t, sink.entries[1].UserID)
}

func TestAuditTrailMiddleware_SinkFailureKeepsResponse(t *testing.T) {
	sink := &recordingSink{err: errors.New("database is down")}
	r := auditRouter(sink)

	req := httptest.NewRequest(http.MethodGet, "/v1/evidence/f1", nil)
	req.Header.Set("Authorization", "Bearer alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, sink.entries, 1)
}

func TestAuditTrailMiddleware_WritesAfterClientCancels(t *testing.T) {
	sink := &recordingSink{}
	r := auditRouter(sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/evidence/f1", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer alice")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sink.entries, 1)
}
