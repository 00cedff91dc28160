package bdd

import (
	"testing"

	"github.com/chirino/ufdr-service/internal/testutil/testmongo"
	"github.com/chirino/ufdr-service/internal/testutil/testqdrant"
	"github.com/chirino/ufdr-service/internal/testutil/testredis"
)

// TestFeaturesMongo runs the features against mongo with qdrant vectors and a
// redis cache.
func TestFeaturesMongo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container backed features in short mode")
	}
	mock := NewMockAnswerModel(t)
	cfg := testConfig(t, mock)
	cfg.DatastoreType = "mongo"
	cfg.DBURL = testmongo.StartMongo(t)
	cfg.MongoDatabase = "ufdr_bdd"
	cfg.VectorType = "qdrant"
	cfg.QdrantHost = testqdrant.StartQdrant(t)
	cfg.QdrantCollectionName = "ufdr-bdd"
	cfg.EmbeddingDimension = 384
	cfg.CacheType = "redis"
	cfg.RedisURL = testredis.StartRedis(t)

	runFeatures(t, &cfg, &MongoTestDB{DBURL: cfg.DBURL, Database: cfg.MongoDatabase}, mock)
}
