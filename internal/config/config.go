package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the ufdr service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	Mode string

	// Database
	DBURL         string
	DatastoreType string // "postgres", "sqlite" or "mongo"
	MongoDatabase string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type
	CacheType string // "redis", "infinispan", "local" or "none"

	// Redis
	RedisURL string

	// Infinispan (RESP protocol, connects via go-redis)
	InfinispanHost           string
	InfinispanUsername       string
	InfinispanPassword       string
	InfinispanStartupTimeout time.Duration

	// Maximum total size in bytes of the in-process cache.
	LocalCacheMaxCost int64

	// Cache lifetimes.
	SearchCacheTTL time.Duration
	AnswerCacheTTL time.Duration
	SessionTTL     time.Duration

	// Vector store type
	VectorType string // "pgvector", "qdrant", or "" (disabled)

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// Background indexer.
	VectorIndexerBatchSize int
	VectorIndexerInterval  time.Duration

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// Embedding type
	EmbedType          string // "none", "local", "openai" or "genai"
	EmbeddingDimension int

	// OpenAI
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
	OpenAIChatModel      string

	// Google Gemini
	GenAIAPIKey         string
	GenAIEmbeddingModel string

	// Answering model
	AnswerType            string // "genai", "openai" or "none"
	AnswerModel           string
	AnswerTemperature     float64
	AnswerMaxOutputTokens int

	// Context assembly and retrieval.
	ChunkSize     int
	ChunkOverlap  int
	ContextBudget int
	HistoryTurns  int
	DefaultTopK   int
	MaxTopK       int

	// Evidence blob storage
	BlobType      string // "fs" or "s3"
	BlobDir       string
	MaxUploadSize int64

	// S3
	S3Bucket       string
	S3Prefix       string
	S3UsePathStyle bool

	// OIDC
	OIDCIssuer string

	// Security
	// APIKeys maps API key values to client IDs.
	APIKeys         map[string]string
	AdminOIDCRole   string
	AuditorOIDCRole string
	AdminUsers      string
	AuditorUsers    string

	// Directory holding an evidence.rego override for the access policy.
	AccessPolicyDir string

	// Admin
	RequireJustification bool
	// AuditTrail persists a record of every API request to the store.
	AuditTrail bool

	// Retention sweep. Zero RetentionDays disables the periodic sweep.
	RetentionDays     int
	RetentionHard     bool
	RetentionInterval time.Duration

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener            ListenerConfig
	ManagementAccessLog bool

	// Management listener. When disabled, health and metrics are served on
	// the main listener.
	ManagementListener        ListenerConfig
	ManagementListenerEnabled bool

	// CORS
	CORSEnabled bool
	CORSOrigins string

	// Body size limit (bytes) for non-upload requests.
	MaxBodySize int64

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeProd,
		AuditTrail:               true,
		DatastoreType:            "postgres",
		MongoDatabase:            "ufdr_service",
		DatastoreMigrateAtStart:  true,
		DBMaxOpenConns:           25,
		DBMaxIdleConns:           5,
		CacheType:                "none",
		InfinispanStartupTimeout: 30 * time.Second,
		LocalCacheMaxCost:        64 * 1024 * 1024,
		SearchCacheTTL:           24 * time.Hour,
		AnswerCacheTTL:           7 * 24 * time.Hour,
		SessionTTL:               7 * 24 * time.Hour,
		VectorType:               "",
		VectorMigrateAtStart:     true,
		VectorIndexerBatchSize:   500,
		VectorIndexerInterval:    30 * time.Second,
		QdrantHost:               "localhost",
		QdrantPort:               6334,
		QdrantCollectionName:     "ufdr-artifacts",
		QdrantStartupTimeout:     30 * time.Second,
		EmbedType:                "local",
		EmbeddingDimension:       384,
		OpenAIBaseURL:            "https://api.openai.com/v1",
		OpenAIEmbeddingModel:     "text-embedding-3-small",
		OpenAIChatModel:          "gpt-4o-mini",
		GenAIEmbeddingModel:      "gemini-embedding-001",
		AnswerType:               "genai",
		AnswerModel:              "gemini-2.5-flash",
		AnswerTemperature:        0.3,
		AnswerMaxOutputTokens:    8192,
		ChunkSize:                3000,
		ChunkOverlap:             300,
		ContextBudget:            200000,
		HistoryTurns:             10,
		DefaultTopK:              100,
		MaxTopK:                  300,
		BlobType:                 "fs",
		BlobDir:                  "data/evidence",
		MaxUploadSize:            2 * 1024 * 1024 * 1024, // 2 GB
		RetentionInterval:        time.Hour,
		AdminOIDCRole:            "admin",
		AuditorOIDCRole:          "auditor",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         false,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			Port:              9090,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  20 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// QdrantAddress returns host:port for the qdrant gRPC endpoint. A port
// embedded in QdrantHost wins over QdrantPort.
func (c *Config) QdrantAddress() string {
	host := strings.TrimSpace(c.QdrantHost)
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	port := c.QdrantPort
	if port <= 0 {
		port = 6334
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseAPIKeys parses "clientId=key" pairs separated by commas into a key → clientId map.
func ParseAPIKeys(raw string) (map[string]string, error) {
	result := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clientID, key, ok := strings.Cut(part, "=")
		clientID = strings.TrimSpace(clientID)
		key = strings.TrimSpace(key)
		if !ok || clientID == "" || key == "" {
			return nil, fmt.Errorf("invalid api key entry %q: expected clientId=key", part)
		}
		result[key] = clientID
	}
	return result, nil
}
