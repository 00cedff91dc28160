package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	"github.com/google/uuid"
)

// EvidenceStore is the durable store for evidence files, their artifacts,
// cases, chat sessions and the request audit trail.
type EvidenceStore interface {
	// Evidence files

	CreateEvidenceFile(ctx context.Context, file *model.EvidenceFile) error
	// GetEvidenceFile returns a NotFoundError for unknown or soft-deleted files.
	GetEvidenceFile(ctx context.Context, id uuid.UUID) (*model.EvidenceFile, error)
	// DeleteEvidenceFile soft-deletes the file, or removes it together with its
	// artifacts and sessions when hard is set.
	DeleteEvidenceFile(ctx context.Context, id uuid.UUID, hard bool) error
	// ListEvidenceFiles returns up to limit live files uploaded before the
	// given time, most recent first.
	ListEvidenceFiles(ctx context.Context, uploadedBefore time.Time, limit int) ([]model.EvidenceFile, error)

	// Case assignments

	AssignCase(ctx context.Context, caseID uuid.UUID, userID string) error
	IsAssigned(ctx context.Context, caseID uuid.UUID, userID string) (bool, error)
	// AssignedCaseIDs returns the cases userID is assigned to.
	AssignedCaseIDs(ctx context.Context, userID string) ([]uuid.UUID, error)

	// Cases

	CreateCase(ctx context.Context, c *model.Case) error
	// ListCases returns the cases with the given ids, or every case when ids
	// is nil, most recent first.
	ListCases(ctx context.Context, ids []uuid.UUID) ([]model.Case, error)
	// Summarize counts the live evidence of the given cases, or of everything
	// when caseIDs is nil, with up to recent of the latest uploads.
	Summarize(ctx context.Context, caseIDs []uuid.UUID, recent int) (*model.Summary, error)

	// Artifacts

	CreateArtifacts(ctx context.Context, artifacts []model.Artifact) error
	// GetArtifactsByIDs returns the artifacts that still exist, in no particular order.
	GetArtifactsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Artifact, error)
	// SearchArtifactsByText returns up to limit artifacts of the file whose text
	// contains any of terms, compared case-insensitively.
	SearchArtifactsByText(ctx context.Context, evidenceFileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error)
	// ListArtifacts returns up to limit artifacts of the file, most recent first.
	ListArtifacts(ctx context.Context, evidenceFileID uuid.UUID, limit int) ([]model.Artifact, error)
	// FindArtifactsPendingEmbedding returns artifacts with text that have not been embedded yet.
	FindArtifactsPendingEmbedding(ctx context.Context, limit int) ([]model.Artifact, error)
	MarkArtifactsEmbedded(ctx context.Context, ids []uuid.UUID, at time.Time) error

	// Chat sessions

	// GetChatSession returns nil with a nil error when no session exists.
	GetChatSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)
	// UpsertChatSession inserts the session or replaces its messages and bumps UpdatedAt.
	UpsertChatSession(ctx context.Context, session *model.ChatSession) error

	// Audit trail

	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
	// ListAuditLogs returns up to limit entries, most recent first.
	ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Loader creates an EvidenceStore from config.
type Loader func(ctx context.Context) (EvidenceStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
