// Package local provides a dependency-free hashing embedder. Vectors are
// L2-normalized so Euclidean distance ranks the same as cosine distance.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/chirino/ufdr-service/internal/config"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
)

const (
	modelName        = "local-hash-v1"
	defaultDimension = 384
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registryembed.Embedder, error) {
			dim := defaultDimension
			if cfg := config.FromContext(ctx); cfg != nil && cfg.EmbeddingDimension > 0 {
				dim = cfg.EmbeddingDimension
			}
			return New(dim), nil
		},
	})
}

// New returns an embedder producing vectors of the given dimension.
func New(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = defaultDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

type LocalEmbedder struct {
	dimension int
}

func (e *LocalEmbedder) ModelName() string {
	return modelName
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = e.embedOne(text)
	}
	return results, nil
}

// Phone numbers and handles are common search terms in extraction reports,
// so tokens keep digits and the '+' and '@' characters.
func (e *LocalEmbedder) embedOne(text string) []float32 {
	vector := make([]float32, e.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		vector[int(h.Sum64()%uint64(e.dimension))] += 1
	}
	norm := float32(0)
	for _, v := range vector {
		norm += v * v
	}
	if norm == 0 {
		return vector
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}

func tokenize(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r) || r == '+' || r == '@')
	})
}

var _ registryembed.Embedder = (*LocalEmbedder)(nil)
