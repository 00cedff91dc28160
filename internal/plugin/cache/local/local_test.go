package local

import (
	"context"
	"testing"
	"time"

	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c, err := New(1 << 20)
	require.NoError(t, err)

	v, err := c.Get(ctx, "search:missing")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, c.Set(ctx, "search:f1:abc", []byte(`{"artifactIds":["a"]}`), time.Hour))
	v, err = c.Get(ctx, "search:f1:abc")
	require.NoError(t, err)
	require.JSONEq(t, `{"artifactIds":["a"]}`, string(v))

	require.NoError(t, c.Delete(ctx, "search:f1:abc"))
	v, err = c.Get(ctx, "search:f1:abc")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestLocalCache_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, err := New(1 << 20)
	require.NoError(t, err)

	type answer struct {
		Answer string `json:"answer"`
	}
	require.NoError(t, registrycache.SetJSON(ctx, c, "llm:f1:abc", answer{Answer: "42"}, time.Hour))

	var got answer
	hit, err := registrycache.GetJSON(ctx, c, "llm:f1:abc", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "42", got.Answer)

	hit, err = registrycache.GetJSON(ctx, c, "llm:f1:other", &got)
	require.NoError(t, err)
	require.False(t, hit)
}
