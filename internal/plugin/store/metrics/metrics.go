package metrics

import (
	"context"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/google/uuid"
)

// Wrap returns an EvidenceStore that records StoreLatency for every operation.
func Wrap(inner store.EvidenceStore) store.EvidenceStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.EvidenceStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateEvidenceFile(ctx context.Context, file *model.EvidenceFile) error {
	defer observe("create_evidence_file", time.Now())
	return m.inner.CreateEvidenceFile(ctx, file)
}

func (m *metricsStore) GetEvidenceFile(ctx context.Context, id uuid.UUID) (*model.EvidenceFile, error) {
	defer observe("get_evidence_file", time.Now())
	return m.inner.GetEvidenceFile(ctx, id)
}

func (m *metricsStore) DeleteEvidenceFile(ctx context.Context, id uuid.UUID, hard bool) error {
	defer observe("delete_evidence_file", time.Now())
	return m.inner.DeleteEvidenceFile(ctx, id, hard)
}

func (m *metricsStore) ListEvidenceFiles(ctx context.Context, uploadedBefore time.Time, limit int) ([]model.EvidenceFile, error) {
	defer observe("list_evidence_files", time.Now())
	return m.inner.ListEvidenceFiles(ctx, uploadedBefore, limit)
}

func (m *metricsStore) AssignCase(ctx context.Context, caseID uuid.UUID, userID string) error {
	defer observe("assign_case", time.Now())
	return m.inner.AssignCase(ctx, caseID, userID)
}

func (m *metricsStore) IsAssigned(ctx context.Context, caseID uuid.UUID, userID string) (bool, error) {
	defer observe("is_assigned", time.Now())
	return m.inner.IsAssigned(ctx, caseID, userID)
}

func (m *metricsStore) CreateArtifacts(ctx context.Context, artifacts []model.Artifact) error {
	defer observe("create_artifacts", time.Now())
	return m.inner.CreateArtifacts(ctx, artifacts)
}

func (m *metricsStore) GetArtifactsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Artifact, error) {
	defer observe("get_artifacts_by_ids", time.Now())
	return m.inner.GetArtifactsByIDs(ctx, ids)
}

func (m *metricsStore) SearchArtifactsByText(ctx context.Context, evidenceFileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error) {
	defer observe("search_artifacts_by_text", time.Now())
	return m.inner.SearchArtifactsByText(ctx, evidenceFileID, terms, limit)
}

func (m *metricsStore) ListArtifacts(ctx context.Context, evidenceFileID uuid.UUID, limit int) ([]model.Artifact, error) {
	defer observe("list_artifacts", time.Now())
	return m.inner.ListArtifacts(ctx, evidenceFileID, limit)
}

func (m *metricsStore) FindArtifactsPendingEmbedding(ctx context.Context, limit int) ([]model.Artifact, error) {
	defer observe("find_artifacts_pending_embedding", time.Now())
	return m.inner.FindArtifactsPendingEmbedding(ctx, limit)
}

func (m *metricsStore) MarkArtifactsEmbedded(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	defer observe("mark_artifacts_embedded", time.Now())
	return m.inner.MarkArtifactsEmbedded(ctx, ids, at)
}

func (m *metricsStore) GetChatSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	defer observe("get_chat_session", time.Now())
	return m.inner.GetChatSession(ctx, id)
}

func (m *metricsStore) UpsertChatSession(ctx context.Context, session *model.ChatSession) error {
	defer observe("upsert_chat_session", time.Now())
	return m.inner.UpsertChatSession(ctx, session)
}

func (m *metricsStore) AssignedCaseIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	defer observe("assigned_case_ids", time.Now())
	return m.inner.AssignedCaseIDs(ctx, userID)
}

func (m *metricsStore) CreateCase(ctx context.Context, c *model.Case) error {
	defer observe("create_case", time.Now())
	return m.inner.CreateCase(ctx, c)
}

func (m *metricsStore) ListCases(ctx context.Context, ids []uuid.UUID) ([]model.Case, error) {
	defer observe("list_cases", time.Now())
	return m.inner.ListCases(ctx, ids)
}

func (m *metricsStore) Summarize(ctx context.Context, caseIDs []uuid.UUID, recent int) (*model.Summary, error) {
	defer observe("summarize", time.Now())
	return m.inner.Summarize(ctx, caseIDs, recent)
}

func (m *metricsStore) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	defer observe("create_audit_log", time.Now())
	return m.inner.CreateAuditLog(ctx, entry)
}

func (m *metricsStore) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	defer observe("list_audit_logs", time.Now())
	return m.inner.ListAuditLogs(ctx, limit)
}

var _ store.EvidenceStore = (*metricsStore)(nil)
