// Package system serves the liveness, readiness and metrics endpoints.
package system

import (
	"net/http"
	"sync/atomic"

	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	registryroute "github.com/chirino/ufdr-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ready atomic.Bool

// MarkReady signals that StartServer has finished initializing.
func MarkReady() {
	ready.Store(true)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "system",
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine, deps registryroute.Deps) error {
			MountRoutes(r, deps.Cache)
			return nil
		},
	})
}

// MountRoutes mounts /health, /ready and /metrics. cache may be nil.
func MountRoutes(r *gin.Engine, cache registrycache.Cache) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// A degraded cache does not make the service unready since every lookup
	// falls through to the datastore.
	r.GET("/ready", func(c *gin.Context) {
		if !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "cache": cacheStatus(cache)})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func cacheStatus(cache registrycache.Cache) string {
	switch {
	case cache == nil:
		return "disabled"
	case cache.Available():
		return "available"
	default:
		return "unavailable"
	}
}
