package disabled

import (
	"context"
	"errors"

	"github.com/chirino/ufdr-service/internal/registry/embed"
)

// ErrDisabled is returned for every embedding request when no embedder is configured.
var ErrDisabled = errors.New("embedding is disabled")

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (embed.Embedder, error) {
			return &disabledEmbedder{}, nil
		},
	})
}

// disabledEmbedder makes the vector tier fall through to keyword search.
type disabledEmbedder struct{}

func (d *disabledEmbedder) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrDisabled
}

func (d *disabledEmbedder) ModelName() string { return "none" }
func (d *disabledEmbedder) Dimension() int    { return 0 }

var _ embed.Embedder = (*disabledEmbedder)(nil)
