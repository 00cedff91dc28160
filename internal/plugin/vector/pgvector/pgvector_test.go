package pgvector_test

import (
	"context"
	"testing"

	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/model"
	"github.com/chirino/ufdr-service/internal/plugin/store/postgres"
	"github.com/chirino/ufdr-service/internal/plugin/vector/pgvector"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/chirino/ufdr-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func text(s string) *string { return &s }

func TestPgvectorSearchIsScopedAndOrdered(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.DatastoreType = "postgres"
	cfg.VectorType = "pgvector"
	cfg.EmbeddingDimension = 3
	ctx := config.WithContext(context.Background(), &cfg)

	_ = postgres.ForceImport
	_ = pgvector.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	storeLoader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := storeLoader(ctx)
	require.NoError(t, err)
	vectorLoader, err := registryvector.Select("pgvector")
	require.NoError(t, err)
	vectors, err := vectorLoader(ctx)
	require.NoError(t, err)

	file := &model.EvidenceFile{Filename: "a.ufdr", StoragePath: "a.ufdr"}
	other := &model.EvidenceFile{Filename: "b.ufdr", StoragePath: "b.ufdr"}
	require.NoError(t, store.CreateEvidenceFile(ctx, file))
	require.NoError(t, store.CreateEvidenceFile(ctx, other))

	near := model.Artifact{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactMessage, ExtractedText: text("near")}
	far := model.Artifact{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactMessage, ExtractedText: text("far")}
	foreign := model.Artifact{ID: uuid.New(), EvidenceFileID: other.ID, Type: model.ArtifactMessage, ExtractedText: text("foreign")}
	require.NoError(t, store.CreateArtifacts(ctx, []model.Artifact{near, far, foreign}))

	require.NoError(t, vectors.Upsert(ctx, []registryvector.UpsertRequest{
		{EvidenceFileID: file.ID, ArtifactID: near.ID, Embedding: []float32{1, 0, 0}, ModelName: "test"},
		{EvidenceFileID: file.ID, ArtifactID: far.ID, Embedding: []float32{0, 1, 0}, ModelName: "test"},
		{EvidenceFileID: other.ID, ArtifactID: foreign.ID, Embedding: []float32{1, 0, 0}, ModelName: "test"},
	}))

	results, err := vectors.Search(ctx, file.ID, []float32{0.9, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, near.ID, results[0].ArtifactID)
	require.Equal(t, far.ID, results[1].ArtifactID)
	require.Less(t, results[0].Distance, results[1].Distance)

	require.NoError(t, vectors.DeleteByEvidenceFileID(ctx, file.ID))
	results, err = vectors.Search(ctx, file.ID, []float32{0.9, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = vectors.Search(ctx, other.ID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
