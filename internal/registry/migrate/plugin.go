package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// Migrator prepares the schema, indexes or collections for a single plugin.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin represents a migrator with an order for deterministic execution sequence.
// Relational schema runs at 100, vector stores at 200 since they depend on it.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sortedPlugins() []Plugin {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}

// Names returns the registered migrator names in execution order.
func Names() []string {
	var names []string
	for _, p := range sortedPlugins() {
		names = append(names, p.Migrator.Name())
	}
	return names
}

// RunAll executes all registered migrators sorted by Order. Each migrator
// decides for itself whether the active configuration selects it.
func RunAll(ctx context.Context) error {
	for _, p := range sortedPlugins() {
		log.Debug("Running migration", "name", p.Migrator.Name(), "order", p.Order)
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
