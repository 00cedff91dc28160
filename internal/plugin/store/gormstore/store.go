// Package gormstore implements the evidence store on top of GORM. It is shared
// by the postgres and sqlite plugins.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements registrystore.EvidenceStore using GORM.
type Store struct {
	db *gorm.DB
}

// New wraps an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

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
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("failed to create evidence file: %w", err)
	}
	return nil
}

func (s *Store) GetEvidenceFile(ctx context.Context, id uuid.UUID) (*model.EvidenceFile, error) {
	var file model.EvidenceFile
	err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence file: %w", err)
	}
	return &file, nil
}

func (s *Store) DeleteEvidenceFile(ctx context.Context, id uuid.UUID, hard bool) error {
	if !hard {
		res := s.db.WithContext(ctx).Model(&model.EvidenceFile{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Update("deleted_at", time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to delete evidence file: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
		}
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("evidence_file_id = ?", id).Delete(&model.Artifact{}).Error; err != nil {
			return fmt.Errorf("failed to delete artifacts: %w", err)
		}
		if err := tx.Where("evidence_file_id = ?", id).Delete(&model.ChatSession{}).Error; err != nil {
			return fmt.Errorf("failed to delete chat sessions: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.EvidenceFile{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete evidence file: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
		}
		return nil
	})
}

func (s *Store) ListEvidenceFiles(ctx context.Context, uploadedBefore time.Time, limit int) ([]model.EvidenceFile, error) {
	var out []model.EvidenceFile
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL AND uploaded_at < ?", uploadedBefore).
		Order("uploaded_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// --- Case assignments ---

func (s *Store) AssignCase(ctx context.Context, caseID uuid.UUID, userID string) error {
	a := model.CaseAssignment{CaseID: caseID, UserID: userID, CreatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error
}

func (s *Store) IsAssigned(ctx context.Context, caseID uuid.UUID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CaseAssignment{}).
		Where("case_id = ? AND user_id = ?", caseID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) AssignedCaseIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.CaseAssignment{}).
		Where("user_id = ?", userID).
		Order("case_id").
		Pluck("case_id", &ids).Error
	return ids, err
}

// --- Cases ---

func (s *Store) CreateCase(ctx context.Context, c *model.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, ids []uuid.UUID) ([]model.Case, error) {
	if ids != nil && len(ids) == 0 {
		return []model.Case{}, nil
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if ids != nil {
		q = q.Where("id IN ?", ids)
	}
	out := []model.Case{}
	err := q.Find(&out).Error
	return out, err
}

func (s *Store) Summarize(ctx context.Context, caseIDs []uuid.UUID, recent int) (*model.Summary, error) {
	sum := &model.Summary{RecentUploads: []model.EvidenceFile{}}
	if caseIDs != nil && len(caseIDs) == 0 {
		return sum, nil
	}
	db := s.db.WithContext(ctx)
	files := func() *gorm.DB {
		q := db.Model(&model.EvidenceFile{}).Where("deleted_at IS NULL")
		if caseIDs != nil {
			q = q.Where("case_id IN ?", caseIDs)
		}
		return q
	}

	if caseIDs == nil {
		if err := db.Model(&model.Case{}).Count(&sum.Cases).Error; err != nil {
			return nil, fmt.Errorf("failed to count cases: %w", err)
		}
	} else {
		sum.Cases = int64(len(caseIDs))
	}
	if err := files().Count(&sum.EvidenceFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count evidence files: %w", err)
	}
	err := db.Model(&model.Artifact{}).
		Where("evidence_file_id IN (?)", files().Select("id")).
		Count(&sum.Artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	if err := files().Order("uploaded_at DESC").Limit(recent).Find(&sum.RecentUploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent uploads: %w", err)
	}
	return sum, nil
}

// --- Artifacts ---

func (s *Store) CreateArtifacts(ctx context.Context, artifacts []model.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range artifacts {
		if artifacts[i].ID == uuid.Nil {
			artifacts[i].ID = uuid.New()
		}
		if artifacts[i].CreatedAt.IsZero() {
			artifacts[i].CreatedAt = now
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(artifacts, 500).Error; err != nil {
		return fmt.Errorf("failed to create artifacts: %w", err)
	}
	return nil
}

func (s *Store) GetArtifactsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Artifact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Artifact
	err := s.db.WithContext(ctx).Omit("embedding").Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (s *Store) SearchArtifactsByText(ctx context.Context, evidenceFileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error) {
	if len(terms) == 0 {
		return s.ListArtifacts(ctx, evidenceFileID, limit)
	}
	clauses := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		clauses[i] = `LOWER(extracted_text) LIKE ? ESCAPE '\'`
		args[i] = "%" + escapeLike(strings.ToLower(t)) + "%"
	}
	var out []model.Artifact
	err := s.db.WithContext(ctx).Omit("embedding").
		Where("evidence_file_id = ?", evidenceFileID).
		Where("("+strings.Join(clauses, " OR ")+")", args...).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) ListArtifacts(ctx context.Context, evidenceFileID uuid.UUID, limit int) ([]model.Artifact, error) {
	var out []model.Artifact
	err := s.db.WithContext(ctx).Omit("embedding").
		Where("evidence_file_id = ?", evidenceFileID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) FindArtifactsPendingEmbedding(ctx context.Context, limit int) ([]model.Artifact, error) {
	var out []model.Artifact
	err := s.db.WithContext(ctx).Omit("embedding").
		Where("embedded_at IS NULL AND extracted_text IS NOT NULL AND extracted_text <> ''").
		Where("evidence_file_id IN (?)", s.db.Model(&model.EvidenceFile{}).Select("id").Where("deleted_at IS NULL")).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) MarkArtifactsEmbedded(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.Artifact{}).
		Where("id IN ?", ids).
		Update("embedded_at", at).Error
}

// --- Chat sessions ---

func (s *Store) GetChatSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
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
	if session.Messages == nil {
		session.Messages = []model.Message{}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages", "updated_at"}),
	}).Create(session).Error
}

// --- Audit trail ---

func (s *Store) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	out := []model.AuditLog{}
	err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

// escapeLike escapes LIKE wildcards so terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ registrystore.EvidenceStore = (*Store)(nil)
