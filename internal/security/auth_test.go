package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/ufdr-service/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testResolver() *TokenResolver {
	cfg := config.DefaultConfig()
	cfg.AdminUsers = "root"
	cfg.AuditorUsers = "audit"
	cfg.APIKeys = map[string]string{"k-123": "mcp-client"}
	return NewTokenResolver(&cfg)
}

func TestResolve_Roles(t *testing.T) {
	r := testResolver()
	ctx := context.Background()

	cases := []struct {
		user  string
		roles []string
	}{
		{"alice", []string{RoleInvestigator}},
		{"audit", []string{RoleAuditor, RoleInvestigator}},
		{"root", []string{RoleAdmin, RoleAuditor, RoleInvestigator}},
	}
	for _, tc := range cases {
		t.Run(tc.user, func(t *testing.T) {
			id, err := r.Resolve(ctx, tc.user, "")
			require.NoError(t, err)
			require.Equal(t, tc.user, id.UserID)
			require.Equal(t, tc.roles, id.RoleNames())
		})
	}
}

func TestResolve_APIKey(t *testing.T) {
	r := testResolver()

	id, err := r.Resolve(context.Background(), "alice", "k-123")
	require.NoError(t, err)
	require.Equal(t, "mcp-client", id.ClientID)

	_, err = r.Resolve(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, errInvalidAPIKey)
}

func TestResolve_OIDCRejectsPlainTokens(t *testing.T) {
	verifier := oidc.NewVerifier("https://issuer.example", &oidc.StaticKeySet{}, &oidc.Config{SkipClientIDCheck: true})
	r := &TokenResolver{verifier: verifier}

	_, err := r.Resolve(context.Background(), "alice", "")
	require.ErrorIs(t, err, errInvalidToken)

	_, err = r.Resolve(context.Background(), "not.a.jwt", "")
	require.ErrorIs(t, err, errInvalidToken)

	r.trustPlain = true
	id, err := r.Resolve(context.Background(), "alice", "")
	require.NoError(t, err)
	require.Equal(t, "alice", id.UserID)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(testResolver()), RequireRole(RoleAuditor), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})

	call := func(headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusUnauthorized, call(nil).Code)
	require.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Basic cm9vdA=="}).Code)
	require.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Bearer root", "X-API-Key": "nope"}).Code)
	require.Equal(t, http.StatusForbidden, call(map[string]string{"Authorization": "Bearer alice"}).Code)

	w := call(map[string]string{"Authorization": "Bearer root"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "root", w.Body.String())
}
