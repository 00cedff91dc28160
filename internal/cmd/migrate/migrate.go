package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	// Store plugins register their own migrators alongside their primary interface.
	_ "github.com/chirino/ufdr-service/internal/plugin/store/mongo"
	_ "github.com/chirino/ufdr-service/internal/plugin/store/postgres"
	_ "github.com/chirino/ufdr-service/internal/plugin/store/sqlite"
	_ "github.com/chirino/ufdr-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/ufdr-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the artifact index schema and vector indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("UFDR_SERVICE_DB_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Database connection URL",
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "db-kind",
				Sources:     cli.EnvVars("UFDR_SERVICE_DB_KIND"),
				Destination: &cfg.DatastoreType,
				Value:       cfg.DatastoreType,
				Usage:       "Store backend (postgres|sqlite|mongo)",
			},
			&cli.StringFlag{
				Name:        "db-mongo-database",
				Sources:     cli.EnvVars("UFDR_SERVICE_DB_MONGO_DATABASE"),
				Destination: &cfg.MongoDatabase,
				Value:       cfg.MongoDatabase,
				Usage:       "Mongo database name",
			},
			&cli.StringFlag{
				Name:        "vector-kind",
				Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_KIND"),
				Destination: &cfg.VectorType,
				Usage:       "Vector store whose indexes to create (pgvector|qdrant); empty skips",
			},
			&cli.StringFlag{
				Name:        "vector-qdrant-host",
				Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_HOST", "UFDR_SERVICE_QDRANT_HOST"),
				Destination: &cfg.QdrantHost,
				Value:       cfg.QdrantAddress(),
				Usage:       "Qdrant host:port",
			},
			&cli.StringFlag{
				Name:        "vector-qdrant-collection",
				Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_COLLECTION"),
				Destination: &cfg.QdrantCollectionName,
				Value:       cfg.QdrantCollectionName,
				Usage:       "Qdrant collection name",
			},
			&cli.IntFlag{
				Name:        "embedding-dimension",
				Sources:     cli.EnvVars("UFDR_SERVICE_EMBEDDING_DIMENSION"),
				Destination: &cfg.EmbeddingDimension,
				Value:       cfg.EmbeddingDimension,
				Usage:       "Embedding vector dimension used to size vector indexes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.DatastoreMigrateAtStart = true
			cfg.VectorMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "db", cfg.DatastoreType, "vector", cfg.VectorType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
