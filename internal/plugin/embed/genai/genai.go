// Package genai embeds text with Google's Gemini embedding models.
package genai

import (
	"context"
	"fmt"

	"github.com/chirino/ufdr-service/internal/config"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	"google.golang.org/genai"
)

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "genai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.GenAIAPIKey == "" {
		return nil, fmt.Errorf("genai embedder: UFDR_SERVICE_GENAI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GenAIAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embedder: %w", err)
	}
	return &Embedder{
		models:    client.Models,
		model:     cfg.GenAIEmbeddingModel,
		dimension: cfg.EmbeddingDimension,
	}, nil
}

type Embedder struct {
	models    *genai.Models
	model     string
	dimension int
}

func (e *Embedder) ModelName() string { return e.model }
func (e *Embedder) Dimension() int    { return e.dimension }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskDocument)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskQuery)
	if err != nil || len(vectors) == 0 {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: task}
	if e.dimension > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dimension))
	}
	resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai embed request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb != nil {
			out[i] = emb.Values
		}
	}
	return out, nil
}

var (
	_ registryembed.Embedder      = (*Embedder)(nil)
	_ registryembed.QueryEmbedder = (*Embedder)(nil)
)
