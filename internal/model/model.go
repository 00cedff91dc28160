package model

import (
	"time"

	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Common artifact type tags produced by the extraction parsers. The set is open.
const (
	ArtifactContact  = "contact"
	ArtifactMessage  = "message"
	ArtifactWhatsApp = "whatsapp"
	ArtifactCall     = "call"
	ArtifactCSV      = "csv_record"
	ArtifactImage    = "image"
	ArtifactAudio    = "audio"
	ArtifactVideo    = "video"
	ArtifactDocument = "document"
	ArtifactText     = "text"
)

// EvidenceFile is one uploaded device-extraction archive.
type EvidenceFile struct {
	ID          uuid.UUID              `json:"id"                  gorm:"primaryKey;type:uuid"`
	CaseID      *uuid.UUID             `json:"caseId,omitempty"    gorm:"type:uuid"`
	Filename    string                 `json:"filename"            gorm:"not null"`
	StoragePath string                 `json:"storagePath"         gorm:"not null"`
	Meta        map[string]interface{} `json:"meta"                gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	UploadedAt  time.Time              `json:"uploadedAt"          gorm:"not null"`
	DeletedAt   *time.Time             `json:"deletedAt,omitempty"`
}

func (EvidenceFile) TableName() string { return "evidence_files" }

// Artifact is one parsed unit of evidence: a message, a call record, a contact, etc.
// Embedding and EmbeddedAt are the only columns written after creation.
type Artifact struct {
	ID             uuid.UUID      `json:"id"                      gorm:"primaryKey;type:uuid"`
	EvidenceFileID uuid.UUID      `json:"evidenceFileId"          gorm:"not null;type:uuid;index"`
	CaseID         *uuid.UUID     `json:"caseId,omitempty"        gorm:"type:uuid"`
	Type           string         `json:"type"                    gorm:"not null"`
	ExtractedText  *string        `json:"extractedText,omitempty"`
	Raw            datatypes.JSON `json:"raw,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"               gorm:"not null"`
	Embedding      *pgvec.Vector  `json:"-"                       gorm:"type:vector"`
	EmbeddedAt     *time.Time     `json:"embeddedAt,omitempty"`
}

func (Artifact) TableName() string { return "artifacts" }

// Text returns the extracted text, or "" when absent.
func (a Artifact) Text() string {
	if a.ExtractedText == nil {
		return ""
	}
	return *a.ExtractedText
}

// Message is one turn of a chat session.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// ChatSession is the running dialogue of one user about one evidence file.
// Messages are append-only and kept in insertion order.
type ChatSession struct {
	ID             uuid.UUID  `json:"id"                       gorm:"primaryKey;type:uuid"`
	EvidenceFileID *uuid.UUID `json:"evidenceFileId,omitempty" gorm:"type:uuid;index"`
	UserID         *string    `json:"userId,omitempty"`
	Messages       []Message  `json:"messages"                 gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt      time.Time  `json:"createdAt"                gorm:"not null"`
	UpdatedAt      time.Time  `json:"updatedAt"                gorm:"not null"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// CaseAssignment grants a user access to every evidence file of a case.
type CaseAssignment struct {
	CaseID    uuid.UUID `json:"caseId"    gorm:"primaryKey;type:uuid"`
	UserID    string    `json:"userId"    gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (CaseAssignment) TableName() string { return "case_assignments" }

// Case groups the evidence files of one investigation.
type Case struct {
	ID          uuid.UUID `json:"id"                    gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name"                  gorm:"not null"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"             gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"             gorm:"not null"`
}

func (Case) TableName() string { return "cases" }

// AuditLog records one handled HTTP request.
type AuditLog struct {
	ID         uuid.UUID `json:"id"                 gorm:"primaryKey;type:uuid"`
	Method     string    `json:"method"             gorm:"not null"`
	Path       string    `json:"path"               gorm:"not null"`
	StatusCode int       `json:"statusCode"         gorm:"not null"`
	UserID     *string   `json:"userId,omitempty"`
	ClientID   *string   `json:"clientId,omitempty"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	Timestamp  time.Time `json:"timestamp"          gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Summary is the dashboard overview of the evidence a caller can see.
type Summary struct {
	Cases         int64          `json:"cases"`
	EvidenceFiles int64          `json:"evidenceFiles"`
	Artifacts     int64          `json:"artifacts"`
	RecentUploads []EvidenceFile `json:"recentUploads"`
}
