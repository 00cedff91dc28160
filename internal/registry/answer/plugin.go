package answer

import (
	"context"
	"fmt"
)

// Model is a large language model that answers a fully rendered prompt.
type Model interface {
	// Complete returns the model's answer to prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name returns the human-readable provider name used in error markers.
	Name() string
}

// Loader creates a Model from config.
type Loader func(ctx context.Context) (Model, error)

// Plugin represents an answering model plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an answering model plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered answering model plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named answering model plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown answer model %q; valid: %v", name, Names())
}
