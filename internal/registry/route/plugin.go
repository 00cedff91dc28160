package route

import (
	"sort"
	"sync"

	"github.com/chirino/ufdr-service/internal/assistant"
	"github.com/chirino/ufdr-service/internal/config"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Deps are the services the serve command hands to every route plugin.
type Deps struct {
	Config       *config.Config
	Store        registrystore.EvidenceStore
	Cache        registrycache.Cache // nil when no cache is configured
	Evidence     *service.EvidenceService
	Guard        assistant.Authorizer
	Orchestrator *assistant.Orchestrator
	Sessions     *assistant.Sessions
	// Auth resolves the caller identity. Management routes do not use it.
	Auth gin.HandlerFunc
}

// RouterLoader mounts a plugin's routes on the gin engine.
type RouterLoader func(r *gin.Engine, deps Deps) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// Without a dedicated management port they share the main server.
	RouteTypeManagement
)

// Plugin is a set of routes mounted in ascending Order.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
	sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
}

// Names lists the registered plugins of the given type in mount order.
func Names(t RouteType) []string {
	var names []string
	for _, p := range byType(t) {
		names = append(names, p.Name)
	}
	return names
}

// Mount runs every loader of type t against r.
func Mount(t RouteType, r *gin.Engine, deps Deps) error {
	for _, p := range byType(t) {
		if err := p.Loader(r, deps); err != nil {
			return err
		}
	}
	return nil
}

func byType(t RouteType) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	var out []Plugin
	for _, p := range plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}
