package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/google/uuid"
)

// IndexStore is the part of the evidence store the indexer needs.
type IndexStore interface {
	FindArtifactsPendingEmbedding(ctx context.Context, limit int) ([]model.Artifact, error)
	MarkArtifactsEmbedded(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// BackgroundIndexer polls for artifacts without embeddings, embeds their
// text and stores the vectors.
type BackgroundIndexer struct {
	store    IndexStore
	embedder registryembed.Embedder
	vector   registryvector.VectorStore
	interval time.Duration
	batch    int
}

// NewBackgroundIndexer creates a new indexer.
func NewBackgroundIndexer(store IndexStore, embedder registryembed.Embedder, vector registryvector.VectorStore, batchSize int, interval time.Duration) *BackgroundIndexer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BackgroundIndexer{
		store:    store,
		embedder: embedder,
		vector:   vector,
		interval: interval,
		batch:    batchSize,
	}
}

// Enabled reports whether both an embedder and a vector store are configured.
func (b *BackgroundIndexer) Enabled() bool {
	return b.embedder != nil && b.vector != nil && b.vector.IsEnabled()
}

// Start begins the background indexing loop. Returns when ctx is cancelled.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	if !b.Enabled() {
		log.Info("Background indexer disabled (no embedder or vector store)")
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.indexBatch(ctx)
		}
	}
}

func (b *BackgroundIndexer) indexBatch(ctx context.Context) {
	artifacts, err := b.store.FindArtifactsPendingEmbedding(ctx, b.batch)
	if err != nil {
		log.Error("Indexer: list pending artifacts failed", "err", err)
		return
	}
	count, err := b.IndexArtifacts(ctx, artifacts)
	if err != nil {
		log.Error("Indexer: batch failed", "err", err)
		return
	}
	if count > 0 {
		log.Info("Indexer: indexed artifacts", "count", count)
	}
}

// IndexArtifacts embeds the artifacts that carry text, upserts their vectors
// and marks them embedded. It returns how many were indexed.
func (b *BackgroundIndexer) IndexArtifacts(ctx context.Context, artifacts []model.Artifact) (int, error) {
	if !b.Enabled() {
		return 0, nil
	}
	var candidates []model.Artifact
	for _, a := range artifacts {
		if a.Text() != "" {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	texts := make([]string, len(candidates))
	for i, a := range candidates {
		texts[i] = a.Text()
	}
	embeddings, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed artifacts: %w", err)
	}
	if len(embeddings) != len(candidates) {
		return 0, fmt.Errorf("embed artifacts: got %d vectors for %d texts", len(embeddings), len(candidates))
	}

	upserts := make([]registryvector.UpsertRequest, len(candidates))
	ids := make([]uuid.UUID, len(candidates))
	for i, a := range candidates {
		upserts[i] = registryvector.UpsertRequest{
			EvidenceFileID: a.EvidenceFileID,
			ArtifactID:     a.ID,
			Embedding:      embeddings[i],
			ModelName:      b.embedder.ModelName(),
		}
		ids[i] = a.ID
	}
	if err := b.vector.Upsert(ctx, upserts); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	if err := b.store.MarkArtifactsEmbedded(ctx, ids, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("mark artifacts embedded: %w", err)
	}
	return len(candidates), nil
}
