package bdd

import (
	"testing"

	"github.com/chirino/ufdr-service/internal/testutil/testinfinispan"
	"github.com/chirino/ufdr-service/internal/testutil/testpg"
	"github.com/chirino/ufdr-service/internal/testutil/tests3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestFeaturesPostgres runs the features on the container stack: postgres with
// pgvector, an infinispan cache and S3 evidence storage.
func TestFeaturesPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container backed features in short mode")
	}
	mock := NewMockAnswerModel(t)
	cfg := testConfig(t, mock)
	cfg.DatastoreType = "postgres"
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.VectorType = "pgvector"
	cfg.EmbeddingDimension = 384

	infinispan := testinfinispan.StartInfinispan(t)
	cfg.CacheType = "infinispan"
	cfg.InfinispanHost = infinispan.Host
	cfg.InfinispanUsername = infinispan.Username
	cfg.InfinispanPassword = infinispan.Password

	cfg.BlobType = "s3"
	cfg.S3Bucket = tests3.StartS3(t)
	cfg.S3Prefix = "evidence"
	cfg.S3UsePathStyle = true

	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	// The server migrates the schema before the first scenario clears it.
	runFeatures(t, &cfg, &SQLTestDB{DB: db}, mock)
}
