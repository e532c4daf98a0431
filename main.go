package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)

	_ "github.com/orchestra-run/queryweave/pkg/adapters/datasource/mssql"    // Register mssql adapter
	_ "github.com/orchestra-run/queryweave/pkg/adapters/datasource/postgres" // Register postgres adapter
	"github.com/orchestra-run/queryweave/pkg/audit"
	"github.com/orchestra-run/queryweave/pkg/auth"
	"github.com/orchestra-run/queryweave/pkg/config"
	"github.com/orchestra-run/queryweave/pkg/database"
	"github.com/orchestra-run/queryweave/pkg/dbmanager"
	"github.com/orchestra-run/queryweave/pkg/handlers"
	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/mcp"
	mcpauth "github.com/orchestra-run/queryweave/pkg/mcp/auth"
	"github.com/orchestra-run/queryweave/pkg/middleware"
	"github.com/orchestra-run/queryweave/pkg/orchestration"
	"github.com/orchestra-run/queryweave/pkg/ragadapter"
	"github.com/orchestra-run/queryweave/pkg/registry"
	"github.com/orchestra-run/queryweave/pkg/state"
	"github.com/orchestra-run/queryweave/pkg/svcadapter"
	"github.com/orchestra-run/queryweave/pkg/webfetch"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	var (
		requestText = flag.String("request", "", "run one request through the engine and exit")
		databaseArg = flag.String("database", "", "logical database name to prefer for a one-shot request")
		registryURL = flag.String("registry-url", "", "override MCP_REGISTRY_URL")
	)
	flag.Parse()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *registryURL != "" {
		cfg.Orchestrator.MCPRegistryURL = *registryURL
	}

	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	app, err := buildApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	defer app.Close()

	if *requestText != "" {
		os.Exit(runOnce(app, *requestText, *databaseArg))
	}

	serve(cfg, logger, app)
}

// app holds everything main wires together, so the one-shot CLI path and
// the HTTP server share one construction.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *dbmanager.Manager
	metadataDB *database.DB
	recorder   *llm.AsyncConversationRecorder
	store      *audit.Store

	registryClient *registry.Client
	localRegistry  *registry.Store
	serviceID      string

	engine *orchestration.Engine
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	orch := cfg.Orchestrator
	a := &app{cfg: cfg, logger: logger}

	// Metadata database: conversation records + SQL attempt audit. Optional -
	// the engine runs without it, it just records less.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metadataDB, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Warn("metadata database unavailable, continuing without conversation recording", zap.Error(err))
	} else {
		a.metadataDB = metadataDB
		sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
		if err == nil {
			if err := database.RunMigrations(sqlDB, logger); err != nil {
				logger.Warn("metadata migrations failed", zap.Error(err))
			}
			sqlDB.Close()
		}
		a.store = audit.NewStore(metadataDB)
	}

	// LLM role set, breaker-wrapped, recording when the metadata DB is up
	factory := llm.NewClientFactory(logger)
	if a.store != nil {
		a.recorder = llm.NewAsyncConversationRecorder(a.store, logger, 100)
		factory.SetRecorder(a.recorder)
	}
	roleSet, err := factory.BuildRoleSet(orch.Roles)
	if err != nil {
		return nil, fmt.Errorf("build LLM clients: %w", err)
	}

	// Subject databases
	endpoints := make(map[string]config.DatabaseEndpoint, len(orch.Databases)+1)
	for name, ep := range orch.Databases {
		endpoints[name] = ep
	}
	if orch.DatabaseURL != "" {
		endpoints["primary"] = config.DatabaseEndpoint{Name: "primary", URL: orch.DatabaseURL}
	}
	a.db = dbmanager.New(endpoints, cfg.Datasource, logger.Named("dbmanager"))

	// Registry: external URL, or a self-hosted in-process store
	regURL := orch.MCPRegistryURL
	if regURL == "" {
		a.localRegistry = registry.NewStore(logger)
		regURL = cfg.BaseURL + "/registry"
		logger.Info("no MCP_REGISTRY_URL configured, hosting in-process registry", zap.String("url", regURL))
	}
	a.registryClient = registry.NewClient(regURL, logger)
	a.serviceID = "queryweave-" + uuid.NewString()

	adapter := svcadapter.New(a.registryClient, 30*time.Second, logger)

	// RAG collaborators
	var (
		rag      orchestration.RAGCollaborator
		reranker orchestration.Reranker
	)
	if orch.RAG.Enabled {
		embed, err := ragadapter.NewEmbeddingClient(orch.RAG, logger.Named("rag"))
		if err != nil {
			return nil, fmt.Errorf("build embedding client: %w", err)
		}
		chroma, err := ragadapter.NewChromaStore(orch.RAG.ChromaURL, orch.RAG, embed, logger.Named("rag"))
		if err != nil {
			return nil, fmt.Errorf("build vector store: %w", err)
		}
		rag = chroma
		reranker = ragadapter.NewEmbeddingReranker(embed, logger.Named("rerank"))
	}

	deps := &orchestration.Deps{
		LLMs:           roleSet,
		DB:             a.db,
		Adapter:        adapter,
		Download:       webfetch.New(15 * time.Second),
		Reranker:       reranker,
		RAG:            rag,
		UseSecurityLLM: orch.UseSecurityLLM,
		Logger:         logger.Named("graph"),
		Auditor:        audit.NewSecurityAuditor(logger),
		CallTimeout:    30 * time.Second,
	}

	engine, err := orchestration.NewEngine(deps, orchestration.EngineConfig{
		RecursionCap:       0, // default
		DisableDatabases:   orch.DisableDatabases,
		DisableSQLBlocking: !orch.TerminateOnPotentiallyHarmfulSQL,
		RegistryURL:        regURL,
	})
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	engine.Discover = func(ctx context.Context) ([]state.ServiceRef, error) {
		services, err := a.registryClient.Discover(ctx, "")
		if err != nil {
			return nil, err
		}
		refs := make([]state.ServiceRef, 0, len(services))
		for _, svc := range services {
			refs = append(refs, state.ServiceRef{
				ID:           svc.ID,
				Type:         svc.Type,
				Capabilities: svc.Metadata.Capabilities,
			})
		}
		return refs, nil
	}

	if a.store != nil {
		store := a.store
		engine.AttemptSink = func(ctx context.Context, requestID string, attempts []state.SQLAttempt) {
			for _, attempt := range attempts {
				rec := audit.SQLAttemptRecord{
					RequestID: requestID,
					Query:     attempt.Query,
					ErrorTag:  attempt.ErrorTag,
					RetryKind: attempt.RetryKind,
				}
				if err := store.RecordSQLAttempt(ctx, rec); err != nil {
					logger.Warn("failed to persist SQL attempt", zap.Error(err))
				}
			}
		}
	}

	a.engine = engine
	return a, nil
}

func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.metadataDB != nil {
		a.metadataDB.Close()
	}
	if a.localRegistry != nil {
		a.localRegistry.Shutdown()
	}
}

// runOnce executes a single request and prints the answer. Exit code 0 for
// any completed run (including apologetic answers), non-zero on unhandled
// runtime failure.
func runOnce(a *app, request, databaseName string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	final, err := a.engine.Run(ctx, orchestration.Request{
		UserRequest:  request,
		DatabaseName: databaseName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Println(final.FinalResponse)
	return 0
}

func serve(cfg *config.Config, logger *zap.Logger, a *app) {
	auth.InitSessionStore(cfg.Auth.SessionSecret, auth.DeriveCookieSettings(cfg.BaseURL, ""))

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg).RegisterRoutes(mux)
	handlers.NewConsoleHandler(cfg, nil, logger).RegisterRoutes(mux)

	var wrap func(http.HandlerFunc) http.HandlerFunc
	if cfg.Auth.Enabled {
		wrap = auth.NewMiddleware(authService, logger).RequireBearerToken
	}
	handlers.NewQueryHandler(a.engine, 5*time.Minute, logger).RegisterRoutes(mux, wrap)

	// MCP surface: the orchestrator is itself MCP-callable via run_query
	var auditRecorder mcp.EventRecorder
	if a.store != nil {
		auditRecorder = a.store
	}
	mcpServer := mcp.NewServer("queryweave", cfg.Version, mcp.NewAuditLogger(auditRecorder, logger).Hooks(), logger)
	mcp.RegisterRunQueryTool(mcpServer, a.engine, logger)
	mcpHTTP := middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer())
	if cfg.Auth.Enabled {
		mcpHTTP = mcpauth.NewMiddleware(authService, logger).RequireAuth(mcpHTTP)
	}
	mux.Handle("/mcp", mcpHTTP)

	if a.localRegistry != nil {
		mux.Handle("/registry", a.localRegistry.Handler(logger))
	}

	handler := middleware.RequestLogger(logger)(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Register self with the registry and keep the record fresh
	ctx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	port, _ := strconv.Atoi(cfg.Port)
	selfInfo := registry.ServiceInfo{
		ID:   a.serviceID,
		Host: cfg.BindAddr,
		Port: port,
		Type: "orchestrator",
		Metadata: registry.Metadata{
			Capabilities: []string{"run_query"},
			StartedAt:    time.Now(),
		},
	}
	go func() {
		// One best-effort registration attempt. If it fails, the failure is
		// logged and no heartbeat is started; registration is not retried.
		regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.registryClient.Register(regCtx, selfInfo, int(registry.DefaultTTL.Seconds())); err != nil {
			logger.Warn("self-registration failed", zap.Error(err))
			return
		}
		a.registryClient.StartHeartbeat(ctx, a.serviceID, registry.DefaultHeartbeatInterval)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("queryweave listening",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("disable_databases", cfg.Orchestrator.DisableDatabases))
		if cfg.TLSCertPath != "" {
			errCh <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Orderly shutdown: stop heartbeats, deregister, drain HTTP
	a.registryClient.StopHeartbeat()
	deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.registryClient.Deregister(deregCtx, a.serviceID); err != nil {
		logger.Warn("deregister failed", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
