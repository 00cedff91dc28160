package noop

import (
	"context"
	"time"

	"github.com/chirino/ufdr-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.Cache, error) {
			return &noopCache{}, nil
		},
	})
}

// noopCache never stores anything, so every lookup falls through to the durable layers.
type noopCache struct{}

func (n *noopCache) Available() bool { return false }
func (n *noopCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}
func (n *noopCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
func (n *noopCache) Delete(_ context.Context, _ string) error { return nil }

var _ cache.Cache = (*noopCache)(nil)
