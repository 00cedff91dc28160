package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SearchResult is one nearest-neighbour hit. Lower Distance is closer.
type SearchResult struct {
	ArtifactID uuid.UUID `json:"artifactId"`
	Distance   float64   `json:"distance"`
}

// UpsertRequest holds the data for a single vector upsert operation.
type UpsertRequest struct {
	EvidenceFileID uuid.UUID
	ArtifactID     uuid.UUID
	Embedding      []float32
	ModelName      string
}

// VectorStore defines the interface for vector search backends. Every backend
// orders by Euclidean distance so results agree regardless of the plugin.
type VectorStore interface {
	// Search returns up to limit artifacts of the evidence file, nearest first.
	Search(ctx context.Context, evidenceFileID uuid.UUID, embedding []float32, limit int) ([]SearchResult, error)
	// Upsert stores or updates vector embeddings for a batch of artifacts.
	Upsert(ctx context.Context, entries []UpsertRequest) error
	// DeleteByEvidenceFileID removes all embeddings of an evidence file.
	DeleteByEvidenceFileID(ctx context.Context, evidenceFileID uuid.UUID) error
	// IsEnabled returns true if the vector store is configured and operational.
	IsEnabled() bool
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
