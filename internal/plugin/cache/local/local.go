// Package local provides an in-process cache for single-node deployments.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/ufdr-service/internal/config"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.Cache, error) {
	maxCost := int64(64 << 20)
	if cfg := config.FromContext(ctx); cfg != nil && cfg.LocalCacheMaxCost > 0 {
		maxCost = cfg.LocalCacheMaxCost
	}
	return New(maxCost)
}

// New creates a cache holding at most maxCost bytes of values.
func New(maxCost int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e6,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{cache: c}, nil
}

// Cache is a ristretto-backed cache. Cost is the value size in bytes.
type Cache struct {
	cache *ristretto.Cache[string, []byte]
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.cache.SetWithTTL(key, stored, int64(len(stored)), ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

var _ registrycache.Cache = (*Cache)(nil)
