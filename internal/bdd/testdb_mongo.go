package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoTestDB implements cucumber.TestDB for MongoDB.
type MongoTestDB struct {
	DBURL    string
	Database string
}

var _ cucumber.TestDB = (*MongoTestDB)(nil)

func (m *MongoTestDB) db() (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(m.DBURL))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, client.Database(m.Database), nil
}

func (m *MongoTestDB) ClearAll(ctx context.Context) error {
	client, db, err := m.db()
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(ctx) }()

	for _, coll := range []string{"chat_sessions", "artifacts", "case_assignments", "cases", "audit_logs", "evidence_files"} {
		if _, err := db.Collection(coll).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("cleanup: failed to clear %s: %w", coll, err)
		}
	}
	return nil
}

func (m *MongoTestDB) CountArtifacts(ctx context.Context, evidenceFileID string) (int, error) {
	client, db, err := m.db()
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Disconnect(ctx) }()
	n, err := db.Collection("artifacts").CountDocuments(ctx, bson.M{"evidence_file_id": evidenceFileID})
	return int(n), err
}

func (m *MongoTestDB) IsSoftDeleted(ctx context.Context, evidenceFileID string) (bool, error) {
	client, db, err := m.db()
	if err != nil {
		return false, err
	}
	defer func() { _ = client.Disconnect(ctx) }()
	n, err := db.Collection("evidence_files").CountDocuments(ctx, bson.M{
		"_id":        evidenceFileID,
		"deleted_at": bson.M{"$ne": nil},
	})
	return n > 0, err
}
