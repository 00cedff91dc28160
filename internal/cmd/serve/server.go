package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/access"
	"github.com/chirino/ufdr-service/internal/assistant"
	"github.com/chirino/ufdr-service/internal/config"
	routesystem "github.com/chirino/ufdr-service/internal/plugin/route/system"
	storemetrics "github.com/chirino/ufdr-service/internal/plugin/store/metrics"
	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
	registryblob "github.com/chirino/ufdr-service/internal/registry/blob"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	registryembed "github.com/chirino/ufdr-service/internal/registry/embed"
	registrymigrate "github.com/chirino/ufdr-service/internal/registry/migrate"
	registryroute "github.com/chirino/ufdr-service/internal/registry/route"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/chirino/ufdr-service/internal/service"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.EvidenceStore
	Router          *gin.Engine
	GRPCServer      *grpc.Server
	Health          *health.Server
	Running         *RunningServers
	stopBackground  context.CancelFunc
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Health.Shutdown()
	s.stopBackground()
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts HTTP and gRPC health on a
// single port. Use cfg.Listener.Port=0 for a random port. Actual port:
// Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting UFDR evidence service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"answer", cfg.AnswerType,
		"blob", cfg.BlobType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// The cache is optional: an unavailable backend degrades to no caching.
	var cache registrycache.Cache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if cache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		cache = nil
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	blobLoader, err := registryblob.Select(cfg.BlobType)
	if err != nil {
		return nil, err
	}
	blobs, err := blobLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize evidence storage: %w", err)
	}

	// Initialize embedder and vector store (optional, for semantic retrieval)
	var embedder registryembed.Embedder
	var vectorStore registryvector.VectorStore
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		embedLoader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			log.Warn("Embedder not available", "err", err)
		} else {
			embedder, err = embedLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize embedder", "err", err)
			}
		}
	}
	if cfg.VectorType != "" && cfg.VectorType != "none" {
		if embedder == nil {
			return nil, fmt.Errorf("vector store %q requires an embedding provider: set --embedding-kind to a value other than 'none'", cfg.VectorType)
		}
		vectorLoader, err := registryvector.Select(cfg.VectorType)
		if err != nil {
			log.Warn("Vector store not available", "err", err)
		} else {
			vectorStore, err = vectorLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize vector store", "err", err)
			}
		}
	}

	answerLoader, err := registryanswer.Select(cfg.AnswerType)
	if err != nil {
		return nil, err
	}
	answerModel, err := answerLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize answering model: %w", err)
	}

	policy, err := access.NewPolicyEngine(ctx, cfg.AccessPolicyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load access policy: %w", err)
	}
	guard := access.NewGuard(policy, store)

	assembler := assistant.Assembler{
		Splitter: assistant.Splitter{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		Budget:   cfg.ContextBudget,
	}
	retriever := assistant.NewRetriever(store, cache, embedder, vectorStore, assembler, cfg.SearchCacheTTL)
	sessions := assistant.NewSessions(cache, store, cfg.SessionTTL)
	orchestrator := assistant.NewOrchestrator(store, guard, retriever, sessions, answerModel, cache, assistant.Options{
		DefaultTopK:  cfg.DefaultTopK,
		HistoryTurns: cfg.HistoryTurns,
		AnswerTTL:    cfg.AnswerCacheTTL,
	})

	indexer := service.NewBackgroundIndexer(store, embedder, vectorStore, cfg.VectorIndexerBatchSize, cfg.VectorIndexerInterval)
	evidenceSvc := service.NewEvidenceService(store, blobs, vectorStore, indexer, cfg.MaxUploadSize)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(security.AdminAuditMiddleware(cfg.RequireJustification))
	if cfg.AuditTrail {
		router.Use(security.AuditTrailMiddleware(store, "/health", "/ready", "/metrics"))
	}
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	deps := registryroute.Deps{
		Config:       cfg,
		Store:        store,
		Cache:        cache,
		Evidence:     evidenceSvc,
		Guard:        guard,
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Auth:         security.AuthMiddleware(security.NewTokenResolver(cfg)),
	}
	if err := registryroute.Mount(registryroute.RouteTypeMain, router, deps); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	log.Debug("Mounted routes", "main", registryroute.Names(registryroute.RouteTypeMain), "management", registryroute.Names(registryroute.RouteTypeManagement))

	// Background services stop with the server, not with the caller's context.
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	go indexer.Start(bgCtx)
	retention := service.NewRetentionService(evidenceSvc, time.Duration(cfg.RetentionDays)*24*time.Hour, cfg.RetentionHard, cfg.RetentionInterval)
	go retention.Start(bgCtx)

	// gRPC carries only the standard health service, so load balancers can
	// check the same port over HTTP/2.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.Mount(registryroute.RouteTypeManagement, mgmtRouter, deps); err != nil {
			stopBackground()
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			stopBackground()
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		if err := registryroute.Mount(registryroute.RouteTypeManagement, router, deps); err != nil {
			stopBackground()
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	running, err := StartSinglePortHTTPAndGRPC(ctx, cfg.Listener, router, grpcServer)
	if err != nil {
		stopBackground()
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
		"semanticRetrieval", indexer.Enabled(),
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		GRPCServer:      grpcServer,
		Health:          healthServer,
		Running:         running,
		stopBackground:  stopBackground,
		closeManagement: closeManagement,
	}, nil
}
