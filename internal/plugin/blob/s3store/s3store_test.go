package s3store

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/testutil/tests3"
	"github.com/stretchr/testify/require"
)

func TestS3BlobStoreRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.S3Bucket = tests3.StartS3(t)
	cfg.S3Prefix = "evidence"
	cfg.S3UsePathStyle = true
	cfg.TempDir = t.TempDir()
	ctx := config.WithContext(context.Background(), &cfg)

	store, err := load(ctx)
	require.NoError(t, err)

	res, err := store.Store(ctx, strings.NewReader("ufdr archive bytes"), 1<<20, "application/zip")
	require.NoError(t, err)
	require.Equal(t, int64(18), res.Size)
	require.NotContains(t, res.StorageKey, "evidence/")

	rc, err := store.Retrieve(ctx, res.StorageKey)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "ufdr archive bytes", string(data))

	require.NoError(t, store.Delete(ctx, res.StorageKey))
}
