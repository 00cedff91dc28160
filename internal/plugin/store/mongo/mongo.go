package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/model"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/datatypes"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.EvidenceStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return New(client.Database(databaseName(cfg))), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func databaseName(cfg *config.Config) string {
	if cfg != nil && cfg.MongoDatabase != "" {
		return cfg.MongoDatabase
	}
	return "ufdr_service"
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "mongo" {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureIndexes(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// EnsureIndexes creates the collections and their indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		"evidence_files": {
			{Keys: bson.D{{Key: "case_id", Value: 1}}},
			{Keys: bson.D{{Key: "deleted_at", Value: 1}}},
		},
		"artifacts": {
			{Keys: bson.D{{Key: "evidence_file_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "embedded_at", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		"chat_sessions": {
			{Keys: bson.D{{Key: "evidence_file_id", Value: 1}}},
		},
		"case_assignments": {
			{
				Keys:    bson.D{{Key: "case_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		"cases": {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		"audit_logs": {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}
	for name, indexes := range collections {
		// Already existing collections are fine.
		_ = db.CreateCollection(ctx, name)
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// Store implements registrystore.EvidenceStore using MongoDB. Embeddings are
// never kept here; pair it with the qdrant vector plugin.
type Store struct {
	db *mongo.Database
}

// New wraps a database handle.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) files() *mongo.Collection       { return s.db.Collection("evidence_files") }
func (s *Store) artifacts() *mongo.Collection   { return s.db.Collection("artifacts") }
func (s *Store) sessions() *mongo.Collection    { return s.db.Collection("chat_sessions") }
func (s *Store) assignments() *mongo.Collection { return s.db.Collection("case_assignments") }
func (s *Store) cases() *mongo.Collection       { return s.db.Collection("cases") }
func (s *Store) auditLogs() *mongo.Collection   { return s.db.Collection("audit_logs") }

// --- Document types ---

type fileDoc struct {
	ID          string         `bson:"_id"`
	CaseID      *string        `bson:"case_id,omitempty"`
	Filename    string         `bson:"filename"`
	StoragePath string         `bson:"storage_path"`
	Meta        map[string]any `bson:"meta"`
	UploadedAt  time.Time      `bson:"uploaded_at"`
	DeletedAt   *time.Time     `bson:"deleted_at,omitempty"`
}

type artifactDoc struct {
	ID             string     `bson:"_id"`
	EvidenceFileID string     `bson:"evidence_file_id"`
	CaseID         *string    `bson:"case_id,omitempty"`
	Type           string     `bson:"type"`
	ExtractedText  *string    `bson:"extracted_text,omitempty"`
	Raw            string     `bson:"raw,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	EmbeddedAt     *time.Time `bson:"embedded_at,omitempty"`
}

type messageDoc struct {
	Role      string    `bson:"role"`
	Text      string    `bson:"text"`
	Timestamp time.Time `bson:"ts"`
}

type sessionDoc struct {
	ID             string       `bson:"_id"`
	EvidenceFileID *string      `bson:"evidence_file_id,omitempty"`
	UserID         *string      `bson:"user_id,omitempty"`
	Messages       []messageDoc `bson:"messages"`
	CreatedAt      time.Time    `bson:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at"`
}

type caseDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description *string   `bson:"description,omitempty"`
	CreatedBy   string    `bson:"created_by"`
	CreatedAt   time.Time `bson:"created_at"`
}

type auditDoc struct {
	ID         string    `bson:"_id"`
	Method     string    `bson:"method"`
	Path       string    `bson:"path"`
	StatusCode int       `bson:"status_code"`
	UserID     *string   `bson:"user_id,omitempty"`
	ClientID   *string   `bson:"client_id,omitempty"`
	IPAddress  string    `bson:"ip_address"`
	UserAgent  string    `bson:"user_agent"`
	Timestamp  time.Time `bson:"timestamp"`
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (d fileDoc) toModel() model.EvidenceFile {
	meta := d.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return model.EvidenceFile{
		ID:          uuid.MustParse(d.ID),
		CaseID:      parseUUIDPtr(d.CaseID),
		Filename:    d.Filename,
		StoragePath: d.StoragePath,
		Meta:        meta,
		UploadedAt:  d.UploadedAt,
		DeletedAt:   d.DeletedAt,
	}
}

func (d artifactDoc) toModel() model.Artifact {
	a := model.Artifact{
		ID:             uuid.MustParse(d.ID),
		EvidenceFileID: uuid.MustParse(d.EvidenceFileID),
		CaseID:         parseUUIDPtr(d.CaseID),
		Type:           d.Type,
		ExtractedText:  d.ExtractedText,
		CreatedAt:      d.CreatedAt,
		EmbeddedAt:     d.EmbeddedAt,
	}
	if d.Raw != "" {
		a.Raw = datatypes.JSON(d.Raw)
	}
	return a
}

func (d sessionDoc) toModel() model.ChatSession {
	msgs := make([]model.Message, len(d.Messages))
	for i, m := range d.Messages {
		msgs[i] = model.Message{Role: model.Role(m.Role), Text: m.Text, Timestamp: m.Timestamp}
	}
	return model.ChatSession{
		ID:             uuid.MustParse(d.ID),
		EvidenceFileID: parseUUIDPtr(d.EvidenceFileID),
		UserID:         d.UserID,
		Messages:       msgs,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (d caseDoc) toModel() model.Case {
	return model.Case{
		ID:          uuid.MustParse(d.ID),
		Name:        d.Name,
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
	}
}

func (d auditDoc) toModel() model.AuditLog {
	return model.AuditLog{
		ID:         uuid.MustParse(d.ID),
		Method:     d.Method,
		Path:       d.Path,
		StatusCode: d.StatusCode,
		UserID:     d.UserID,
		ClientID:   d.ClientID,
		IPAddress:  d.IPAddress,
		UserAgent:  d.UserAgent,
		Timestamp:  d.Timestamp,
	}
}

// --- Evidence files ---

func (s *Store) CreateEvidenceFile(ctx context.Context, file *model.EvidenceFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	if file.Meta == nil {
		file.Meta = map[string]interface{}{}
	}
	doc := fileDoc{
		ID:          file.ID.String(),
		CaseID:      uuidPtrString(file.CaseID),
		Filename:    file.Filename,
		StoragePath: file.StoragePath,
		Meta:        file.Meta,
		UploadedAt:  file.UploadedAt,
	}
	if _, err := s.files().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create evidence file: %w", err)
	}
	return nil
}

func (s *Store) GetEvidenceFile(ctx context.Context, id uuid.UUID) (*model.EvidenceFile, error) {
	var doc fileDoc
	err := s.files().FindOne(ctx, bson.M{"_id": id.String(), "deleted_at": nil}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence file: %w", err)
	}
	file := doc.toModel()
	return &file, nil
}

func (s *Store) DeleteEvidenceFile(ctx context.Context, id uuid.UUID, hard bool) error {
	if !hard {
		res, err := s.files().UpdateOne(ctx,
			bson.M{"_id": id.String(), "deleted_at": nil},
			bson.M{"$set": bson.M{"deleted_at": time.Now().UTC()}})
		if err != nil {
			return fmt.Errorf("failed to delete evidence file: %w", err)
		}
		if res.MatchedCount == 0 {
			return &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
		}
		return nil
	}

	// Children first, so a failure part way leaves the file visible for a retry.
	if _, err := s.artifacts().DeleteMany(ctx, bson.M{"evidence_file_id": id.String()}); err != nil {
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}
	if _, err := s.sessions().DeleteMany(ctx, bson.M{"evidence_file_id": id.String()}); err != nil {
		return fmt.Errorf("failed to delete chat sessions: %w", err)
	}
	res, err := s.files().DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete evidence file: %w", err)
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
	}
	return nil
}

func (s *Store) ListEvidenceFiles(ctx context.Context, uploadedBefore time.Time, limit int) ([]model.EvidenceFile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.files().Find(ctx, bson.M{"deleted_at": nil, "uploaded_at": bson.M{"$lt": uploadedBefore}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}
	var docs []fileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode evidence files: %w", err)
	}
	out := make([]model.EvidenceFile, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

// --- Case assignments ---

func (s *Store) AssignCase(ctx context.Context, caseID uuid.UUID, userID string) error {
	_, err := s.assignments().UpdateOne(ctx,
		bson.M{"case_id": caseID.String(), "user_id": userID},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to assign case: %w", err)
	}
	return nil
}

func (s *Store) IsAssigned(ctx context.Context, caseID uuid.UUID, userID string) (bool, error) {
	n, err := s.assignments().CountDocuments(ctx, bson.M{"case_id": caseID.String(), "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check case assignment: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AssignedCaseIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	opts := options.Find().SetSort(bson.D{{Key: "case_id", Value: 1}})
	cursor, err := s.assignments().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list case assignments: %w", err)
	}
	var docs []struct {
		CaseID string `bson:"case_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode case assignments: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		if id, err := uuid.Parse(d.CaseID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// --- Cases ---

func (s *Store) CreateCase(ctx context.Context, c *model.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	doc := caseDoc{
		ID:          c.ID.String(),
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
	if _, err := s.cases().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, ids []uuid.UUID) ([]model.Case, error) {
	if ids != nil && len(ids) == 0 {
		return []model.Case{}, nil
	}
	filter := bson.M{}
	if ids != nil {
		filter["_id"] = bson.M{"$in": idStrings(ids)}
	}
	cursor, err := s.cases().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	var docs []caseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cases: %w", err)
	}
	out := make([]model.Case, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *Store) Summarize(ctx context.Context, caseIDs []uuid.UUID, recent int) (*model.Summary, error) {
	sum := &model.Summary{RecentUploads: []model.EvidenceFile{}}
	if caseIDs != nil && len(caseIDs) == 0 {
		return sum, nil
	}
	fileFilter := bson.M{"deleted_at": nil}
	if caseIDs != nil {
		fileFilter["case_id"] = bson.M{"$in": idStrings(caseIDs)}
		sum.Cases = int64(len(caseIDs))
	} else {
		n, err := s.cases().CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("failed to count cases: %w", err)
		}
		sum.Cases = n
	}

	cursor, err := s.files().Find(ctx, fileFilter, options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}
	var docs []fileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode evidence files: %w", err)
	}
	sum.EvidenceFiles = int64(len(docs))
	fileIDs := make([]string, len(docs))
	for i, d := range docs {
		fileIDs[i] = d.ID
		if i < recent {
			sum.RecentUploads = append(sum.RecentUploads, d.toModel())
		}
	}

	n, err := s.artifacts().CountDocuments(ctx, bson.M{"evidence_file_id": bson.M{"$in": fileIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	sum.Artifacts = n
	return sum, nil
}

// --- Artifacts ---

func (s *Store) CreateArtifacts(ctx context.Context, artifacts []model.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]any, len(artifacts))
	for i := range artifacts {
		a := &artifacts[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		docs[i] = artifactDoc{
			ID:             a.ID.String(),
			EvidenceFileID: a.EvidenceFileID.String(),
			CaseID:         uuidPtrString(a.CaseID),
			Type:           a.Type,
			ExtractedText:  a.ExtractedText,
			Raw:            string(a.Raw),
			CreatedAt:      a.CreatedAt,
			EmbeddedAt:     a.EmbeddedAt,
		}
	}
	if _, err := s.artifacts().InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to create artifacts: %w", err)
	}
	return nil
}

func (s *Store) findArtifacts(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.Artifact, error) {
	cursor, err := s.artifacts().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	var docs []artifactDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode artifacts: %w", err)
	}
	out := make([]model.Artifact, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *Store) GetArtifactsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Artifact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findArtifacts(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}}, options.Find())
}

func (s *Store) SearchArtifactsByText(ctx context.Context, evidenceFileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error) {
	if len(terms) == 0 {
		return s.ListArtifacts(ctx, evidenceFileID, limit)
	}
	or := make(bson.A, len(terms))
	for i, t := range terms {
		or[i] = bson.M{"extracted_text": bson.M{"$regex": regexp.QuoteMeta(t), "$options": "i"}}
	}
	filter := bson.M{"evidence_file_id": evidenceFileID.String(), "$or": or}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	return s.findArtifacts(ctx, filter, opts)
}

func (s *Store) ListArtifacts(ctx context.Context, evidenceFileID uuid.UUID, limit int) ([]model.Artifact, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	return s.findArtifacts(ctx, bson.M{"evidence_file_id": evidenceFileID.String()}, opts)
}

func (s *Store) FindArtifactsPendingEmbedding(ctx context.Context, limit int) ([]model.Artifact, error) {
	cursor, err := s.files().Find(ctx, bson.M{"deleted_at": nil}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence files: %w", err)
	}
	var live []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &live); err != nil {
		return nil, fmt.Errorf("failed to decode evidence files: %w", err)
	}
	fileIDs := make([]string, len(live))
	for i, f := range live {
		fileIDs[i] = f.ID
	}
	filter := bson.M{
		"embedded_at":      nil,
		"extracted_text":   bson.M{"$nin": bson.A{nil, ""}},
		"evidence_file_id": bson.M{"$in": fileIDs},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))
	return s.findArtifacts(ctx, filter, opts)
}

func (s *Store) MarkArtifactsEmbedded(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.artifacts().UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": idStrings(ids)}},
		bson.M{"$set": bson.M{"embedded_at": at}})
	if err != nil {
		return fmt.Errorf("failed to mark artifacts embedded: %w", err)
	}
	return nil
}

// --- Chat sessions ---

func (s *Store) GetChatSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	var doc sessionDoc
	err := s.sessions().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	session := doc.toModel()
	return &session, nil
}

func (s *Store) UpsertChatSession(ctx context.Context, session *model.ChatSession) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	msgs := make([]messageDoc, len(session.Messages))
	for i, m := range session.Messages {
		msgs[i] = messageDoc{Role: string(m.Role), Text: m.Text, Timestamp: m.Timestamp}
	}
	_, err := s.sessions().UpdateOne(ctx,
		bson.M{"_id": session.ID.String()},
		bson.M{
			"$set": bson.M{"messages": msgs, "updated_at": session.UpdatedAt},
			"$setOnInsert": bson.M{
				"evidence_file_id": uuidPtrString(session.EvidenceFileID),
				"user_id":          session.UserID,
				"created_at":       session.CreatedAt,
			},
		},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save chat session: %w", err)
	}
	return nil
}

// --- Audit trail ---

func (s *Store) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	doc := auditDoc{
		ID:         entry.ID.String(),
		Method:     entry.Method,
		Path:       entry.Path,
		StatusCode: entry.StatusCode,
		UserID:     entry.UserID,
		ClientID:   entry.ClientID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Timestamp:  entry.Timestamp,
	}
	if _, err := s.auditLogs().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit))
	cursor, err := s.auditLogs().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	var docs []auditDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode audit logs: %w", err)
	}
	out := make([]model.AuditLog, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

var _ registrystore.EvidenceStore = (*Store)(nil)
