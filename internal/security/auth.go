package security

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
)

const (
	// RoleAdmin sees every evidence file and may manage cases and evidence.
	RoleAdmin = "admin"
	// RoleInvestigator queries the evidence of the cases assigned to them.
	// Every authenticated caller holds it.
	RoleInvestigator = "investigator"
	// RoleAuditor may read the audit trail and admin listings. Admins hold it too.
	RoleAuditor = "auditor"
)

// ContextKeyIdentity is the gin context key holding the caller Identity.
const ContextKeyIdentity = "identity"

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	// ClientID names the tool that called on the user's behalf, from its API key.
	ClientID string
	Roles    map[string]bool
}

// NewIdentity returns the identity of userID holding the investigator role
// plus any extra roles. Admins are auditors as well.
func NewIdentity(userID string, extra ...string) Identity {
	roles := map[string]bool{RoleInvestigator: true}
	for _, r := range extra {
		roles[r] = true
	}
	if roles[RoleAdmin] {
		roles[RoleAuditor] = true
	}
	return Identity{UserID: userID, Roles: roles}
}

// Has reports whether the caller holds role.
func (id Identity) Has(role string) bool { return id.Roles[role] }

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool { return id.Has(RoleAdmin) }

// RoleNames returns the held roles, sorted.
func (id Identity) RoleNames() []string {
	out := make([]string, 0, len(id.Roles))
	for r, ok := range id.Roles {
		if ok {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

var (
	errInvalidToken  = errors.New("invalid bearer token")
	errInvalidAPIKey = errors.New("invalid API key")
)

// TokenResolver turns bearer tokens into identities. With an OIDC issuer
// configured tokens must be JWTs from that issuer; otherwise, or in testing
// mode, the bearer token is taken as the user id.
type TokenResolver struct {
	verifier     *oidc.IDTokenVerifier
	trustPlain   bool
	apiKeys      map[string]string
	adminClaim   string
	auditorClaim string
	adminUsers   map[string]bool
	auditorUsers map[string]bool
}

// NewTokenResolver builds a resolver from cfg, discovering the OIDC provider
// once when an issuer is set.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	r := &TokenResolver{
		trustPlain:   cfg.OIDCIssuer == "" || cfg.Mode == config.ModeTesting,
		apiKeys:      cfg.APIKeys,
		adminClaim:   orDefault(cfg.AdminOIDCRole, RoleAdmin),
		auditorClaim: orDefault(cfg.AuditorOIDCRole, RoleAuditor),
		adminUsers:   splitCSV(cfg.AdminUsers),
		auditorUsers: splitCSV(cfg.AuditorUsers),
	}
	if cfg.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(context.Background(), cfg.OIDCIssuer)
		if err != nil {
			log.Error("OIDC discovery failed; only plain tokens in testing mode will be accepted", "issuer", cfg.OIDCIssuer, "err", err)
		} else {
			r.verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
			log.Info("OIDC auth enabled", "issuer", cfg.OIDCIssuer)
		}
	}
	return r
}

// Resolve resolves a bearer token, plus the optional X-API-Key value, into an Identity.
func (r *TokenResolver) Resolve(ctx context.Context, bearerToken, apiKey string) (*Identity, error) {
	var clientID string
	if key := strings.TrimSpace(apiKey); key != "" {
		resolved, ok := r.apiKeys[key]
		if !ok {
			return nil, errInvalidAPIKey
		}
		clientID = resolved
	}

	var userID string
	var claimRoles map[string]bool
	switch {
	case r.verifier != nil && strings.Count(bearerToken, ".") == 2:
		var err error
		if userID, claimRoles, err = r.verify(ctx, bearerToken); err != nil {
			return nil, err
		}
	case r.trustPlain && bearerToken != "":
		userID = bearerToken
	default:
		return nil, errInvalidToken
	}

	var extra []string
	if claimRoles[r.adminClaim] || r.adminUsers[userID] {
		extra = append(extra, RoleAdmin)
	}
	if claimRoles[r.auditorClaim] || r.auditorUsers[userID] {
		extra = append(extra, RoleAuditor)
	}
	id := NewIdentity(userID, extra...)
	id.ClientID = clientID
	return &id, nil
}

// verify checks a JWT and returns its user and role claims. The user is the
// preferred_username, falling back to sub.
func (r *TokenResolver) verify(ctx context.Context, token string) (string, map[string]bool, error) {
	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return "", nil, errors.Join(errInvalidToken, err)
	}
	var claims struct {
		Sub               string   `json:"sub"`
		PreferredUsername string   `json:"preferred_username"`
		Role              string   `json:"role"`
		Roles             []string `json:"roles"`
		RealmAccess       struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", nil, errors.Join(errInvalidToken, err)
	}
	userID := claims.PreferredUsername
	if userID == "" {
		userID = claims.Sub
	}
	if userID == "" {
		return "", nil, errors.Join(errInvalidToken, errors.New("token has no subject"))
	}
	roles := map[string]bool{}
	if claims.Role != "" {
		roles[claims.Role] = true
	}
	for _, role := range append(claims.Roles, claims.RealmAccess.Roles...) {
		roles[role] = true
	}
	return userID, roles, nil
}

// --- Gin HTTP middleware ---

// SetIdentity stores id on the request context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(ContextKeyIdentity, id)
}

// GetIdentity returns the identity stored by AuthMiddleware, or a zero
// Identity on unauthenticated routes.
func GetIdentity(c *gin.Context) Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(Identity)
	return id
}

// GetUserID returns the authenticated user ID, or "".
func GetUserID(c *gin.Context) string {
	return GetIdentity(c).UserID
}

// IsAdmin reports whether the authenticated caller is an admin.
func IsAdmin(c *gin.Context) bool {
	return GetIdentity(c).IsAdmin()
}

// AuthMiddleware rejects requests without a resolvable "Authorization: Bearer" header.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			log.Info("Auth rejected: missing bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := resolver.Resolve(c.Request.Context(), strings.TrimSpace(token), c.GetHeader("X-API-Key"))
		if err != nil {
			log.Info("Auth rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		SetIdentity(c, *id)
		c.Next()
	}
}

// RequireRole rejects callers that do not hold role with 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).Has(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": role + " role required"})
			return
		}
		c.Next()
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func splitCSV(raw string) map[string]bool {
	result := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			result[item] = true
		}
	}
	return result
}
