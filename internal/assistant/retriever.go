package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/google/uuid"
)

// NoMatchesContext is the context handed to the model when no artifact matched.
const NoMatchesContext = "[INFO] No matching artifacts found for this query."

// Tier identifies which retrieval strategy produced a result.
type Tier string

const (
	TierCache   Tier = "cache"
	TierVector  Tier = "vector"
	TierKeyword Tier = "keyword"
	TierEmpty   Tier = "empty"
)

// ArtifactStore is the read side of the artifact index used by retrieval.
type ArtifactStore interface {
	GetArtifactsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Artifact, error)
	SearchArtifactsByText(ctx context.Context, evidenceFileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error)
	ListArtifacts(ctx context.Context, evidenceFileID uuid.UUID, limit int) ([]model.Artifact, error)
}

// Retrieval is the outcome of one retrieval.
type Retrieval struct {
	Artifacts []model.Artifact
	Context   string
	FromCache bool
	Tier      Tier
}

// ArtifactIDs returns the ids of the matched artifacts in result order.
func (r Retrieval) ArtifactIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Artifacts))
	for i, a := range r.Artifacts {
		ids[i] = a.ID
	}
	return ids
}

type cachedSearch struct {
	ArtifactIDs     []uuid.UUID `json:"artifactIds"`
	ContextSnippets string      `json:"contextSnippets"`
}

// Retriever resolves a question to artifacts of one evidence file, trying the
// search cache, then vector similarity, then keyword matching.
type Retriever struct {
	store     ArtifactStore
	cache     registrycache.Cache
	embedder  registryembed.Embedder
	vectors   registryvector.VectorStore
	assembler Assembler
	searchTTL time.Duration
}

// NewRetriever creates a Retriever. cache, embedder and vectors may be nil, which
// disables the corresponding tier.
func NewRetriever(store ArtifactStore, cache registrycache.Cache, embedder registryembed.Embedder, vectors registryvector.VectorStore, assembler Assembler, searchTTL time.Duration) *Retriever {
	return &Retriever{
		store:     store,
		cache:     cache,
		embedder:  embedder,
		vectors:   vectors,
		assembler: assembler,
		searchTTL: searchTTL,
	}
}

// Retrieve never fails: every degraded tier falls through to the next one and
// an empty result carries NoMatchesContext.
func (r *Retriever) Retrieve(ctx context.Context, fileID uuid.UUID, query string, topK int) Retrieval {
	key := CacheKey(NamespaceSearch, fileID, query)

	if res, ok := r.fromCache(ctx, key); ok {
		return r.done(fileID, res)
	}

	artifacts, tier := r.fromVectors(ctx, fileID, query, topK), TierVector
	if len(artifacts) == 0 {
		artifacts, tier = r.fromKeywords(ctx, fileID, query, topK), TierKeyword
	}
	if len(artifacts) == 0 {
		return r.done(fileID, Retrieval{Context: NoMatchesContext, Tier: TierEmpty})
	}

	res := Retrieval{
		Artifacts: artifacts,
		Context:   r.assembler.Assemble(artifacts),
		Tier:      tier,
	}
	entry := cachedSearch{ArtifactIDs: res.ArtifactIDs(), ContextSnippets: res.Context}
	if err := registrycache.SetJSON(context.WithoutCancel(ctx), r.cache, key, entry, r.searchTTL); err != nil {
		log.Warn("Search cache write failed", "evidenceFileId", fileID, "err", err)
	}
	return r.done(fileID, res)
}

func (r *Retriever) done(fileID uuid.UUID, res Retrieval) Retrieval {
	log.Debug("Retrieved artifacts", "evidenceFileId", fileID, "tier", res.Tier, "count", len(res.Artifacts), "contextBytes", len(res.Context))
	security.CountRetrievalTier(string(res.Tier))
	return res
}

func (r *Retriever) fromCache(ctx context.Context, key string) (Retrieval, bool) {
	if r.cache == nil || !r.cache.Available() {
		return Retrieval{}, false
	}
	var entry cachedSearch
	hit, err := registrycache.GetJSON(ctx, r.cache, key, &entry)
	if err != nil {
		log.Debug("Search cache read failed", "key", key, "err", err)
	}
	security.CountCache(NamespaceSearch, hit)
	if !hit || len(entry.ArtifactIDs) == 0 {
		return Retrieval{}, false
	}
	found, err := r.store.GetArtifactsByIDs(ctx, entry.ArtifactIDs)
	if err != nil {
		log.Warn("Cached artifacts lookup failed", "key", key, "err", err)
		return Retrieval{}, false
	}
	artifacts := orderByIDs(found, entry.ArtifactIDs)
	if len(artifacts) == 0 {
		return Retrieval{}, false
	}
	return Retrieval{
		Artifacts: artifacts,
		Context:   entry.ContextSnippets,
		FromCache: true,
		Tier:      TierCache,
	}, true
}

func (r *Retriever) fromVectors(ctx context.Context, fileID uuid.UUID, query string, topK int) []model.Artifact {
	if r.embedder == nil || r.vectors == nil || !r.vectors.IsEnabled() {
		return nil
	}
	vec, err := registryembed.EmbedQuery(ctx, r.embedder, query)
	if err != nil || len(vec) == 0 {
		log.Debug("Query embedding unavailable", "evidenceFileId", fileID, "err", err)
		return nil
	}
	hits, err := r.vectors.Search(ctx, fileID, vec, topK)
	if err != nil {
		log.Warn("Vector search failed", "evidenceFileId", fileID, "store", r.vectors.Name(), "err", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ArtifactID
	}
	found, err := r.store.GetArtifactsByIDs(ctx, ids)
	if err != nil {
		log.Warn("Vector hit lookup failed", "evidenceFileId", fileID, "err", err)
		return nil
	}
	return orderByIDs(found, ids)
}

func (r *Retriever) fromKeywords(ctx context.Context, fileID uuid.UUID, query string, topK int) []model.Artifact {
	var (
		artifacts []model.Artifact
		err       error
	)
	if terms := strings.Fields(query); len(terms) > 0 {
		artifacts, err = r.store.SearchArtifactsByText(ctx, fileID, terms, topK)
	} else {
		artifacts, err = r.store.ListArtifacts(ctx, fileID, topK)
	}
	if err != nil {
		log.Warn("Keyword search failed", "evidenceFileId", fileID, "err", err)
		return nil
	}
	return artifacts
}

// orderByIDs returns the artifacts in ids order, dropping ids that did not resolve.
func orderByIDs(artifacts []model.Artifact, ids []uuid.UUID) []model.Artifact {
	byID := make(map[uuid.UUID]model.Artifact, len(artifacts))
	for _, a := range artifacts {
		byID[a.ID] = a
	}
	out := make([]model.Artifact, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
