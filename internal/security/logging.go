package security

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware logs each HTTP request with method, path, status, and duration.
// Paths listed in skipPaths are silently passed through without logging.
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", duration,
			"user", GetUserID(c),
			"clientIP", c.ClientIP(),
		)
	}
}

const adminPathPrefix = "/v1/admin"

func justification(c *gin.Context) string {
	if j := c.Query("justification"); j != "" {
		return j
	}
	return c.GetHeader("X-Justification")
}

// AdminAuditMiddleware writes an audit record for every admin API call: who did
// what to which evidence file or case. When requireJustification is true, admin
// requests must carry ?justification=... or an X-Justification header.
func AdminAuditMiddleware(requireJustification bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, adminPathPrefix) {
			c.Next()
			return
		}
		reason := justification(c)
		if requireJustification && reason == "" {
			c.AbortWithStatusJSON(400, gin.H{"code": "validation_error", "error": "justification is required"})
			return
		}

		c.Next()

		id := GetIdentity(c)
		role := "none"
		switch {
		case id.Has(RoleAdmin):
			role = RoleAdmin
		case id.Has(RoleAuditor):
			role = RoleAuditor
		}
		log.Info("Admin audit",
			"caller", id.UserID,
			"role", role,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"evidenceFileId", c.Param("evidenceFileId"),
			"caseId", c.Param("caseId"),
			"clientIP", c.ClientIP(),
			"justification", reason,
		)
	}
}

// AuditSink persists audit trail entries.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
}

const auditWriteTimeout = 5 * time.Second

// AuditTrailMiddleware stores a record of each handled request: who called
// which path from where, and the resulting status. Writes are best effort; a
// failing sink is logged and never changes the response.
func AuditTrailMiddleware(sink AuditSink, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		c.Next()

		id := GetIdentity(c)
		entry := &model.AuditLog{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Timestamp:  time.Now().UTC(),
		}
		if id.UserID != "" {
			entry.UserID = &id.UserID
		}
		if id.ClientID != "" {
			entry.ClientID = &id.ClientID
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditWriteTimeout)
		defer cancel()
		if err := sink.CreateAuditLog(ctx, entry); err != nil {
			log.Warn("Audit trail write failed", "method", entry.Method, "path", entry.Path, "err", err)
		}
	}
}
