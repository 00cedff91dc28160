package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const evidenceFileKey = "evidence_file_id"

// qdrantMigrator implements migrate.Migrator for Qdrant collection setup.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	collectionName := collectionName(cfg)

	if _, err = client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: collectionName}); err == nil {
		return nil
	}

	// Euclidean distance, matching the pgvector plugin's <-> ordering.
	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(cfg.EmbeddingDimension),
					Distance: pb.Distance_Euclid,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}

	wait := true
	_, err = pb.NewPointsClient(conn).CreateFieldIndex(migrateCtx, &pb.CreateFieldIndexCollection{
		CollectionName: collectionName,
		Wait:           &wait,
		FieldName:      evidenceFileKey,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create payload index: %w", err)
	}
	log.Info("Created Qdrant collection", "name", collectionName)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &QdrantStore{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: collectionName(cfg),
	}, nil
}

type QdrantStore struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *QdrantStore) IsEnabled() bool { return true }
func (s *QdrantStore) Name() string    { return "qdrant" }

func fileFilter(evidenceFileID uuid.UUID) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: evidenceFileKey,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: evidenceFileID.String()},
						},
					},
				},
			},
		},
	}
}

func (s *QdrantStore) Search(ctx context.Context, evidenceFileID uuid.UUID, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         fileFilter(evidenceFileID),
	})
	if err != nil {
		return nil, err
	}

	var results []registryvector.SearchResult
	for _, pt := range resp.GetResult() {
		// For Euclid collections the score is the distance itself.
		r := registryvector.SearchResult{Distance: float64(pt.GetScore())}
		id, err := uuid.Parse(pt.GetPayload()["artifact_id"].GetStringValue())
		if err != nil {
			log.Warn("qdrant point without artifact id", "point", pt.GetId().GetUuid())
			continue
		}
		r.ArtifactID = id
		results = append(results, r)
	}
	return results, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ArtifactID.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"artifact_id":   {Kind: &pb.Value_StringValue{StringValue: e.ArtifactID.String()}},
				evidenceFileKey: {Kind: &pb.Value_StringValue{StringValue: e.EvidenceFileID.String()}},
				"model":         {Kind: &pb.Value_StringValue{StringValue: e.ModelName}},
			},
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
	})
	return err
}

func (s *QdrantStore) DeleteByEvidenceFileID(ctx context.Context, evidenceFileID uuid.UUID) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: fileFilter(evidenceFileID)},
		},
	})
	return err
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

// collectionName falls back to a name derived from the embedder and dimension
// so switching models never mixes incompatible vectors.
func collectionName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	embed := strings.ToLower(strings.TrimSpace(cfg.EmbedType))
	if embed == "" {
		embed = "local"
	}
	return fmt.Sprintf("ufdr-artifacts_%s-%d", embed, cfg.EmbeddingDimension)
}

var _ registryvector.VectorStore = (*QdrantStore)(nil)
