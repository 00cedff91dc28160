package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/config"
	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
	registryblob "github.com/chirino/ufdr-service/internal/registry/blob"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/ufdr-service/internal/plugin/answer/genai"
	_ "github.com/chirino/ufdr-service/internal/plugin/answer/none"
	_ "github.com/chirino/ufdr-service/internal/plugin/answer/openai"
	_ "github.com/chirino/ufdr-service/internal/plugin/blob/fsstore"
	_ "github.com/chirino/ufdr-service/internal/plugin/blob/s3store"
	_ "github.com/chirino/ufdr-service/internal/plugin/cache/infinispan"
	_ "github.com/chirino/ufdr-service/internal/plugin/cache/local"
	_ "github.com/chirino/ufdr-service/internal/plugin/cache/noop"
	_ "github.com/chirino/ufdr-service/internal/plugin/cache/redis"
	_ "github.com/chirino/ufdr-service/internal/plugin/embed/disabled"
	_ "github.com/chirino/ufdr-service/internal/plugin/embed/genai"
	_ "github.com/chirino/ufdr-service/internal/plugin/embed/local"
	_ "github.com/chirino/ufdr-service/internal/plugin/embed/openai"
	_ "github.com/chirino/ufdr-service/internal/plugin/route/admin"
	_ "github.com/chirino/ufdr-service/internal/plugin/route/cases"
	_ "github.com/chirino/ufdr-service/internal/plugin/route/evidence"
	_ "github.com/chirino/ufdr-service/internal/plugin/route/system"
	_ "github.com/chirino/ufdr-service/internal/plugin/store/mongo"
	_ "github.com/chirino/ufdr-service/internal/plugin/store/postgres"
	_ "github.com/chirino/ufdr-service/internal/plugin/store/sqlite"
	_ "github.com/chirino/ufdr-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/ufdr-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	var apiKeys string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the UFDR evidence service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &apiKeys),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			keys, err := config.ParseAPIKeys(apiKeys)
			if err != nil {
				return err
			}
			cfg.APIKeys = keys
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int, apiKeys *string) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing also accepts plain bearer tokens as user ids when OIDC is enabled",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for temporary upload files; defaults to OS temp directory",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes for non-upload requests",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any origin",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c + gRPC health",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2 + gRPC health",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Artifact index backend (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (sqlite: file path or DSN)",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "db-mongo-database",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "Mongo database name",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run datastore migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-hosts",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_REDIS_HOSTS"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.StringFlag{
			Name:        "infinispan-host",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_INFINISPAN_HOST"),
			Destination: &cfg.InfinispanHost,
			Usage:       "Infinispan RESP host:port (e.g. localhost:11222)",
		},
		&cli.StringFlag{
			Name:        "infinispan-username",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_INFINISPAN_USERNAME"),
			Destination: &cfg.InfinispanUsername,
			Usage:       "Infinispan username",
		},
		&cli.StringFlag{
			Name:        "infinispan-password",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_INFINISPAN_PASSWORD"),
			Destination: &cfg.InfinispanPassword,
			Usage:       "Infinispan password",
		},
		&cli.Int64Flag{
			Name:        "local-cache-max-cost",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_LOCAL_CACHE_MAX_COST"),
			Destination: &cfg.LocalCacheMaxCost,
			Value:       cfg.LocalCacheMaxCost,
			Usage:       "Maximum bytes held by the in-process cache",
		},
		&cli.DurationFlag{
			Name:        "cache-search-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CACHE_SEARCH_TTL"),
			Destination: &cfg.SearchCacheTTL,
			Value:       cfg.SearchCacheTTL,
			Usage:       "Lifetime of cached retrieval results",
		},
		&cli.DurationFlag{
			Name:        "cache-answer-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CACHE_ANSWER_TTL"),
			Destination: &cfg.AnswerCacheTTL,
			Value:       cfg.AnswerCacheTTL,
			Usage:       "Lifetime of cached model answers",
		},
		&cli.DurationFlag{
			Name:        "cache-session-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CACHE_SESSION_TTL"),
			Destination: &cfg.SessionTTL,
			Value:       cfg.SessionTTL,
			Usage:       "Lifetime of cached chat sessions",
		},

		// ── Evidence Storage ──────────────────────────────────────
		&cli.StringFlag{
			Name:        "blob-kind",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_KIND"),
			Destination: &cfg.BlobType,
			Value:       cfg.BlobType,
			Usage:       "Archive store (" + strings.Join(registryblob.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "blob-dir",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_DIR"),
			Destination: &cfg.BlobDir,
			Value:       cfg.BlobDir,
			Usage:       "Directory for the fs archive store",
		},
		&cli.Int64Flag{
			Name:        "blob-max-upload-size",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_MAX_UPLOAD_SIZE"),
			Destination: &cfg.MaxUploadSize,
			Value:       cfg.MaxUploadSize,
			Usage:       "Maximum archive size in bytes",
		},
		&cli.StringFlag{
			Name:        "blob-s3-bucket",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for archives",
		},
		&cli.StringFlag{
			Name:        "blob-s3-prefix",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix for archives in the S3 bucket",
		},
		&cli.BoolFlag{
			Name:        "blob-s3-use-path-style",
			Category:    "Evidence Storage:",
			Sources:     cli.EnvVars("UFDR_SERVICE_BLOB_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},

		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (" + strings.Join(registryvector.Names(), "|") + "); empty disables semantic retrieval",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Create vector indexes and collections on startup",
		},
		&cli.IntFlag{
			Name:        "vector-indexer-batch-size",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_INDEXER_BATCH_SIZE"),
			Destination: &cfg.VectorIndexerBatchSize,
			Value:       cfg.VectorIndexerBatchSize,
			Usage:       "Number of artifacts to embed and index per background indexer tick",
		},
		&cli.DurationFlag{
			Name:        "vector-indexer-interval",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_INDEXER_INTERVAL"),
			Destination: &cfg.VectorIndexerInterval,
			Value:       cfg.VectorIndexerInterval,
			Usage:       "Background indexer tick interval",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_HOST", "UFDR_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantAddress(),
			Usage:       "Qdrant host or host:port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Value:       cfg.QdrantCollectionName,
			Usage:       "Qdrant collection name",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "vector-qdrant-use-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("UFDR_SERVICE_VECTOR_QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Use TLS for the qdrant gRPC connection",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_EMBEDDING_DIMENSION"),
			Destination: &cfg.EmbeddingDimension,
			Value:       cfg.EmbeddingDimension,
			Usage:       "Embedding vector dimension",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI compatible API base URL",
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.OpenAIEmbeddingModel,
			Value:       cfg.OpenAIEmbeddingModel,
			Usage:       "OpenAI embedding model",
		},
		&cli.StringFlag{
			Name:        "genai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_GENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
			Destination: &cfg.GenAIAPIKey,
			Usage:       "Google Gemini API key",
		},
		&cli.StringFlag{
			Name:        "genai-embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("UFDR_SERVICE_GENAI_EMBEDDING_MODEL"),
			Destination: &cfg.GenAIEmbeddingModel,
			Value:       cfg.GenAIEmbeddingModel,
			Usage:       "Gemini embedding model",
		},

		// ── Answering Model ───────────────────────────────────────
		&cli.StringFlag{
			Name:        "answer-kind",
			Category:    "Answering Model:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ANSWER_KIND"),
			Destination: &cfg.AnswerType,
			Value:       cfg.AnswerType,
			Usage:       "Answering model provider (" + strings.Join(registryanswer.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "answer-model",
			Category:    "Answering Model:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ANSWER_MODEL"),
			Destination: &cfg.AnswerModel,
			Value:       cfg.AnswerModel,
			Usage:       "Gemini model name for the genai provider",
		},
		&cli.StringFlag{
			Name:        "openai-chat-model",
			Category:    "Answering Model:",
			Sources:     cli.EnvVars("UFDR_SERVICE_OPENAI_CHAT_MODEL"),
			Destination: &cfg.OpenAIChatModel,
			Value:       cfg.OpenAIChatModel,
			Usage:       "Chat model name for the openai provider",
		},
		&cli.Float64Flag{
			Name:        "answer-temperature",
			Category:    "Answering Model:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ANSWER_TEMPERATURE"),
			Destination: &cfg.AnswerTemperature,
			Value:       cfg.AnswerTemperature,
			Usage:       "Sampling temperature",
		},
		&cli.IntFlag{
			Name:        "answer-max-output-tokens",
			Category:    "Answering Model:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ANSWER_MAX_OUTPUT_TOKENS"),
			Destination: &cfg.AnswerMaxOutputTokens,
			Value:       cfg.AnswerMaxOutputTokens,
			Usage:       "Maximum tokens in a generated answer",
		},

		// ── Retrieval ─────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "chunk-size",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CHUNK_SIZE"),
			Destination: &cfg.ChunkSize,
			Value:       cfg.ChunkSize,
			Usage:       "Context chunk size in characters",
		},
		&cli.IntFlag{
			Name:        "chunk-overlap",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CHUNK_OVERLAP"),
			Destination: &cfg.ChunkOverlap,
			Value:       cfg.ChunkOverlap,
			Usage:       "Overlap between consecutive chunks in characters",
		},
		&cli.IntFlag{
			Name:        "context-budget",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_CONTEXT_BUDGET"),
			Destination: &cfg.ContextBudget,
			Value:       cfg.ContextBudget,
			Usage:       "Maximum prompt context length",
		},
		&cli.IntFlag{
			Name:        "history-turns",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_HISTORY_TURNS"),
			Destination: &cfg.HistoryTurns,
			Value:       cfg.HistoryTurns,
			Usage:       "Number of prior session messages included in the prompt (0 selects the default, negative omits history)",
		},
		&cli.IntFlag{
			Name:        "default-top-k",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_DEFAULT_TOP_K"),
			Destination: &cfg.DefaultTopK,
			Value:       cfg.DefaultTopK,
			Usage:       "Artifacts retrieved when a request does not set topK",
		},
		&cli.IntFlag{
			Name:        "max-top-k",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("UFDR_SERVICE_MAX_TOP_K"),
			Destination: &cfg.MaxTopK,
			Value:       cfg.MaxTopK,
			Usage:       "Largest topK a request may ask for",
		},

		// ── Retention ─────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "retention-days",
			Category:    "Retention:",
			Sources:     cli.EnvVars("UFDR_SERVICE_RETENTION_DAYS"),
			Destination: &cfg.RetentionDays,
			Usage:       "Delete evidence uploaded more than this many days ago (0 disables)",
		},
		&cli.BoolFlag{
			Name:        "retention-hard",
			Category:    "Retention:",
			Sources:     cli.EnvVars("UFDR_SERVICE_RETENTION_HARD"),
			Destination: &cfg.RetentionHard,
			Usage:       "Hard delete expired evidence instead of soft deleting it",
		},
		&cli.DurationFlag{
			Name:        "retention-interval",
			Category:    "Retention:",
			Sources:     cli.EnvVars("UFDR_SERVICE_RETENTION_INTERVAL"),
			Destination: &cfg.RetentionInterval,
			Value:       cfg.RetentionInterval,
			Usage:       "How often the retention sweep runs",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "api-keys",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_API_KEYS"),
			Destination: apiKeys,
			Usage:       "Comma-separated clientId=key pairs accepted in the X-API-Key header",
		},
		&cli.StringFlag{
			Name:        "roles-admin-oidc-role",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ROLES_ADMIN_OIDC_ROLE"),
			Destination: &cfg.AdminOIDCRole,
			Value:       cfg.AdminOIDCRole,
			Usage:       "OIDC role name that maps to admin permissions",
		},
		&cli.StringFlag{
			Name:        "roles-auditor-oidc-role",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ROLES_AUDITOR_OIDC_ROLE"),
			Destination: &cfg.AuditorOIDCRole,
			Value:       cfg.AuditorOIDCRole,
			Usage:       "OIDC role name that maps to auditor permissions",
		},
		&cli.StringFlag{
			Name:        "roles-admin-users",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ROLES_ADMIN_USERS"),
			Destination: &cfg.AdminUsers,
			Usage:       "Comma-separated user IDs with admin permissions",
		},
		&cli.StringFlag{
			Name:        "roles-auditor-users",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ROLES_AUDITOR_USERS"),
			Destination: &cfg.AuditorUsers,
			Usage:       "Comma-separated user IDs with auditor permissions",
		},
		&cli.StringFlag{
			Name:        "access-policy-dir",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ACCESS_POLICY_DIR"),
			Destination: &cfg.AccessPolicyDir,
			Usage:       "Directory containing an evidence.rego override for the access policy",
		},
		&cli.BoolFlag{
			Name:        "admin-require-justification",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_ADMIN_REQUIRE_JUSTIFICATION"),
			Destination: &cfg.RequireJustification,
			Usage:       "Require justification for admin API calls",
		},
		&cli.BoolFlag{
			Name:        "audit-trail",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("UFDR_SERVICE_AUDIT_TRAIL"),
			Destination: &cfg.AuditTrail,
			Value:       cfg.AuditTrail,
			Usage:       "Record every API request in the stored audit trail",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("UFDR_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=ufdr-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

// maxBodySizeMiddleware caps request bodies. Archive uploads are exempt: the
// blob store enforces the upload limit while streaming.
func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreamingRequest(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

func isStreamingRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/v1/evidence" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
