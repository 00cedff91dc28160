package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registryblob "github.com/chirino/ufdr-service/internal/registry/blob"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MaxArtifactsPerIngest bounds a single ingestion request.
const MaxArtifactsPerIngest = 10000

// EvidenceService owns the lifecycle of evidence files: upload, artifact
// ingestion and deletion across the store, vector index and blob store.
type EvidenceService struct {
	store     registrystore.EvidenceStore
	blobs     registryblob.BlobStore
	vectors   registryvector.VectorStore
	indexer   *BackgroundIndexer
	maxUpload int64
}

// NewEvidenceService wires the collaborators. vectors and indexer may be nil.
func NewEvidenceService(store registrystore.EvidenceStore, blobs registryblob.BlobStore, vectors registryvector.VectorStore, indexer *BackgroundIndexer, maxUpload int64) *EvidenceService {
	return &EvidenceService{
		store:     store,
		blobs:     blobs,
		vectors:   vectors,
		indexer:   indexer,
		maxUpload: maxUpload,
	}
}

// UploadRequest describes one archive upload.
type UploadRequest struct {
	Filename    string
	ContentType string
	CaseID      *uuid.UUID
	UploadedBy  string
	Body        io.Reader
}

// Upload streams the archive into the blob store and records the evidence file.
func (s *EvidenceService) Upload(ctx context.Context, req UploadRequest) (*model.EvidenceFile, error) {
	name := sanitizeFilename(req.Filename)
	if name == "" {
		return nil, &registrystore.ValidationError{Field: "file", Message: "a file name is required"}
	}
	stored, err := s.blobs.Store(ctx, req.Body, s.maxUpload, req.ContentType)
	if err != nil {
		var tooLarge *registryblob.ErrTooLarge
		if errors.As(err, &tooLarge) {
			return nil, &registrystore.ValidationError{Field: "file", Message: tooLarge.Error()}
		}
		return nil, fmt.Errorf("store evidence archive: %w", err)
	}

	file := &model.EvidenceFile{
		ID:          uuid.New(),
		CaseID:      req.CaseID,
		Filename:    name,
		StoragePath: stored.StorageKey,
		Meta: map[string]interface{}{
			"sha256":      stored.SHA256,
			"size":        stored.Size,
			"contentType": req.ContentType,
			"uploadedBy":  req.UploadedBy,
		},
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.CreateEvidenceFile(ctx, file); err != nil {
		if delErr := s.blobs.Delete(ctx, stored.StorageKey); delErr != nil {
			log.Warn("Failed to remove orphaned evidence archive", "storageKey", stored.StorageKey, "err", delErr)
		}
		return nil, err
	}
	log.Info("Evidence uploaded", "evidenceFileId", file.ID, "size", stored.Size, "sha256", stored.SHA256)
	return file, nil
}

// sanitizeFilename keeps only the final path element of a client supplied name.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// ArtifactInput is one parsed artifact supplied by an extraction tool.
type ArtifactInput struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
}

// IngestArtifacts stores artifacts for a live evidence file and embeds them
// when an indexer is configured. Embedding failures are left to the
// background indexer.
func (s *EvidenceService) IngestArtifacts(ctx context.Context, file *model.EvidenceFile, inputs []ArtifactInput) ([]model.Artifact, error) {
	if len(inputs) == 0 {
		return nil, &registrystore.ValidationError{Field: "artifacts", Message: "at least one artifact is required"}
	}
	if len(inputs) > MaxArtifactsPerIngest {
		return nil, &registrystore.ValidationError{Field: "artifacts", Message: fmt.Sprintf("at most %d artifacts per request", MaxArtifactsPerIngest)}
	}
	now := time.Now().UTC()
	artifacts := make([]model.Artifact, len(inputs))
	for i, in := range inputs {
		typ := strings.TrimSpace(in.Type)
		if typ == "" {
			return nil, &registrystore.ValidationError{Field: fmt.Sprintf("artifacts[%d].type", i), Message: "type is required"}
		}
		a := model.Artifact{
			ID:             uuid.New(),
			EvidenceFileID: file.ID,
			CaseID:         file.CaseID,
			Type:           typ,
			ExtractedText:  in.Text,
			CreatedAt:      now,
		}
		if len(in.Raw) > 0 {
			a.Raw = datatypes.JSON(in.Raw)
		}
		if in.CreatedAt != nil {
			a.CreatedAt = in.CreatedAt.UTC()
		}
		artifacts[i] = a
	}
	if err := s.store.CreateArtifacts(ctx, artifacts); err != nil {
		return nil, err
	}
	if s.indexer != nil {
		if n, err := s.indexer.IndexArtifacts(ctx, artifacts); err != nil {
			log.Warn("Inline artifact embedding failed; leaving it to the background indexer", "evidenceFileId", file.ID, "err", err)
		} else if n > 0 {
			log.Debug("Embedded artifacts inline", "evidenceFileId", file.ID, "count", n)
		}
	}
	return artifacts, nil
}

// Delete soft-deletes an evidence file, or removes it together with its
// artifacts, sessions, vectors and archive when hard is set.
func (s *EvidenceService) Delete(ctx context.Context, id uuid.UUID, hard bool) error {
	if !hard {
		return s.store.DeleteEvidenceFile(ctx, id, false)
	}

	// The archive location is only readable while the file is live.
	var storageKey string
	if file, err := s.store.GetEvidenceFile(ctx, id); err == nil {
		storageKey = file.StoragePath
	}
	if s.vectors != nil && s.vectors.IsEnabled() {
		if err := s.vectors.DeleteByEvidenceFileID(ctx, id); err != nil {
			log.Warn("Failed to delete evidence vectors", "evidenceFileId", id, "err", err)
		}
	}
	if err := s.store.DeleteEvidenceFile(ctx, id, true); err != nil {
		return err
	}
	if storageKey != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, storageKey); err != nil {
			log.Warn("Failed to delete evidence archive", "evidenceFileId", id, "storageKey", storageKey, "err", err)
		}
	}
	return nil
}

// Sweep deletes live evidence files uploaded before cutoff, in batches, and
// returns the ids it deleted.
func (s *EvidenceService) Sweep(ctx context.Context, cutoff time.Time, hard bool, batchSize int) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	var deleted []uuid.UUID
	failed := map[uuid.UUID]bool{}
	for {
		files, err := s.store.ListEvidenceFiles(ctx, cutoff, batchSize)
		if err != nil {
			return deleted, fmt.Errorf("list expired evidence: %w", err)
		}
		progressed := false
		for _, f := range files {
			if failed[f.ID] {
				continue
			}
			if err := s.Delete(ctx, f.ID, hard); err != nil {
				log.Error("Retention: delete failed", "evidenceFileId", f.ID, "err", err)
				failed[f.ID] = true
				continue
			}
			deleted = append(deleted, f.ID)
			progressed = true
		}
		if !progressed {
			return deleted, nil
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
	}
}
