package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/ufdr-service/internal/config"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai embedder: UFDR_SERVICE_OPENAI_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.OpenAIBaseURL, "/")+"/"))
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.OpenAIEmbeddingModel,
		dimension: cfg.EmbeddingDimension,
	}, nil
}

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// supportsDimensions reports whether the model accepts a reduced output size.
func (e *OpenAIEmbedder) supportsDimensions() bool {
	return e.dimension > 0 && strings.HasPrefix(e.model, "text-embedding-3")
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.supportsDimensions() {
		params.Dimensions = openai.Int(int64(e.dimension))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embed request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return results in any order; place them by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		embeddings[d.Index] = vec
	}
	return embeddings, nil
}

var _ registryembed.Embedder = (*OpenAIEmbedder)(nil)
