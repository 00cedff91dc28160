// Package pgvector keeps artifact embeddings in the artifacts table itself
// and searches them with the pgvector L2 distance operator.
package pgvector

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const indexSQL = `CREATE INDEX IF NOT EXISTS artifacts_embedding_l2_idx ON artifacts USING hnsw (embedding vector_l2_ops)`

// pgvectorMigrator builds the nearest-neighbour index once the store schema exists.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" || cfg.DBURL == "" || (cfg.DatastoreType != "" && cfg.DatastoreType != "postgres") {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.WithContext(ctx).Exec(indexSQL).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	if cfg.DatastoreType != "" && cfg.DatastoreType != "postgres" {
		return nil, fmt.Errorf("pgvector: requires the postgres datastore, got %q", cfg.DatastoreType)
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return New(db), nil
}

func openDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
}

// New creates a pgvector store on an open handle to the evidence database.
func New(db *gorm.DB) *PgvectorStore {
	return &PgvectorStore{db: db}
}

// PgvectorStore implements VectorStore using pgvector extension.
type PgvectorStore struct {
	db *gorm.DB
}

func (s *PgvectorStore) IsEnabled() bool { return true }
func (s *PgvectorStore) Name() string    { return "pgvector" }

func (s *PgvectorStore) Search(ctx context.Context, evidenceFileID uuid.UUID, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	if len(embedding) == 0 || limit <= 0 {
		return nil, nil
	}

	vec := pgvec.NewVector(embedding)
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, embedding <-> ?::vector AS distance
		FROM artifacts
		WHERE evidence_file_id = ? AND embedding IS NOT NULL
		ORDER BY embedding <-> ?::vector
		LIMIT ?`,
		vec, evidenceFileID, vec, limit,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []registryvector.SearchResult
	for rows.Next() {
		var r registryvector.SearchResult
		if err := rows.Scan(&r.ArtifactID, &r.Distance); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgvectorStore) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			vec := pgvec.NewVector(e.Embedding)
			if err := tx.Exec(
				`UPDATE artifacts SET embedding = ?::vector, embedding_model = ? WHERE id = ? AND evidence_file_id = ?`,
				vec, e.ModelName, e.ArtifactID, e.EvidenceFileID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PgvectorStore) DeleteByEvidenceFileID(ctx context.Context, evidenceFileID uuid.UUID) error {
	return s.db.WithContext(ctx).Exec(
		"UPDATE artifacts SET embedding = NULL, embedding_model = NULL WHERE evidence_file_id = ?",
		evidenceFileID,
	).Error
}

var _ registryvector.VectorStore = (*PgvectorStore)(nil)
