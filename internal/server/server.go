package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/costs"
	"github.com/pyqvault/pyqvault/internal/extract"
	"github.com/pyqvault/pyqvault/internal/home"
	"github.com/pyqvault/pyqvault/internal/jobs"
	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/server/endpoints"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// Server is the main pyqvault HTTP server. It owns the Postgres
// connection and the background job pool, bringing both up on Start and
// tearing them down on shutdown.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	homeDir    *home.Dir
	logger     *slog.Logger

	st   *store.Store
	pool *jobs.Pool

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the pyqvault home directory (blobs live under it)
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: endpoints.GetSwaggerSpecPath()}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	appCfg := cfg.ConfigManager.Get()
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: appCfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(appCfg.Server.Host, strconv.Itoa(appCfg.Server.Port)),
		Handler:      corsHandler.Handler(s.withServices(mux)),
		ReadTimeout:  5 * time.Minute, // Large PDF uploads
		WriteTimeout: 0,               // SSE streams stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start connects to Postgres, runs migrations, wires the extraction
// pipeline and serves HTTP. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	appCfg := s.configMgr.Get()

	s.logger.Info("connecting to database", "host", appCfg.Database.Host, "name", appCfg.Database.Name)
	db, err := store.Connect(appCfg.Database)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		s.setNotRunning()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.st = store.New(db, s.logger)

	blobs, err := blob.NewLocal(s.homeDir.BlobPath())
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	registry, err := providers.NewRegistry(appCfg, s.logger)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	services, err := buildServices(appCfg, s.st, blobs, registry, s.configMgr, s.homeDir, s.logger)
	if err != nil {
		_ = s.shutdown()
		return err
	}
	s.pool = services.Pool
	s.services = services

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices wires the extraction pipeline from its parts.
func buildServices(appCfg *config.Config, st *store.Store, blobs blob.Store, registry *providers.Registry, configMgr *config.Manager, homeDir *home.Dir, logger *slog.Logger) (*svcctx.Services, error) {
	ec := appCfg.Extraction

	visionClient, err := registry.Client(ec.VisionProvider)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	metadataClient, err := registry.Client(ec.MetadataProvider)
	if err != nil {
		return nil, fmt.Errorf("metadata provider: %w", err)
	}

	ledger := costs.NewRecorder(st, logger)
	splitter := extract.NewSplitter(st, blobs, ec.RenderDPI, ec.PageConcurrency, logger)
	extractor := extract.NewExtractor(st, blobs, visionClient, ledger, ec.MaxPageAttempts, logger)
	aggregator := extract.NewAggregator(st, ec, logger)
	orchestrator := extract.NewOrchestrator(st, blobs, splitter, extractor, aggregator, ec, logger)

	return &svcctx.Services{
		Store:        st,
		Blobs:        blobs,
		Registry:     registry,
		Costs:        ledger,
		Pool:         jobs.NewPool(ec.Workers, ec.QueueSize, logger),
		Orchestrator: orchestrator,
		Detector:     extract.NewDetector(st),
		Inferencer:   extract.NewInferencer(metadataClient, ledger, logger),
		Advisor:      extract.NewAdvisor(st, ec.RetryCostPerPageUSD, ec.RetrySecondsPerPage),
		Reporter:     extract.NewReporter(st, logger),
		Config:       configMgr,
		Logger:       logger,
		Home:         homeDir,
	}, nil
}

// shutdown performs graceful shutdown of the HTTP server, job pool and
// database connection.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.pool != nil {
		s.pool.Shutdown()
	}

	if s.st != nil {
		if err := s.st.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Services returns the wired services.
// Returns nil if the server hasn't started yet.
func (s *Server) Services() *svcctx.Services {
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the database or job pool aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
