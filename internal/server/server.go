package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/cache"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/events"
	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/mask"
	"github.com/veilhq/veil/internal/web"
)

// Server represents the main masking gateway server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	maskLog *zap.Logger
	engine  atomic.Pointer[mask.Engine]
	router  *mux.Router
	server  *http.Server
	hub     *events.Hub
	cache   *cache.ResultCache // nil when disabled
	store   *audit.Store       // nil when disabled
	limiter *clientLimiter     // nil when disabled
	started time.Time
}

// New creates a new gateway server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	// Create event hub
	hub := events.NewHub(&events.HubConfig{
		BroadcastMaskings:    cfg.WebSocket.Events.BroadcastMaskings,
		BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log.WithComponent("events").Logger)

	server := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		maskLog: log.WithComponent("mask").Logger,
		router:  mux.NewRouter(),
		hub:     hub,
		started: time.Now(),
	}
	server.engine.Store(buildEngine(cfg.Masking, server.maskLog))

	// Connect the result cache (optional)
	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		server.cache = resultCache
	}

	// Connect the audit store (optional)
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		server.store = store
	}

	if cfg.RateLimit.Enabled {
		server.limiter = newClientLimiter(cfg.RateLimit)
		server.limiter.StartCleanupRoutine()
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// buildEngine constructs a masking engine from configuration
func buildEngine(masking config.MaskingConfig, log *zap.Logger) *mask.Engine {
	opts := []mask.Option{
		mask.WithPattern(masking.Pattern),
		mask.WithLogger(log),
	}
	if len(masking.SensitiveNames) > 0 {
		opts = append(opts, mask.WithSensitiveNames(masking.SensitiveNames...))
	}
	return mask.New(opts...)
}

// maskEngine returns the current masking engine. Requests in flight keep
// the engine they loaded even across a reload.
func (s *Server) maskEngine() *mask.Engine {
	return s.engine.Load()
}

// ReloadMasking swaps in a fresh engine built from updated masking
// settings. Only the pattern and sensitive-name set take effect without
// a restart; server-level settings need a new process.
func (s *Server) ReloadMasking(masking config.MaskingConfig) {
	s.engine.Store(buildEngine(masking, s.maskLog))
	s.logger.Info("Masking configuration reloaded",
		zap.String("pattern", masking.Pattern),
		zap.Int("sensitive_names", len(masking.SensitiveNames)),
	)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket event feed
	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.handleWebSocket).Methods("GET")
	}

	// Masking API
	apiRouter := s.router.PathPrefix("/v1").Subrouter()
	apiRouter.Use(s.loggingMiddleware)
	apiRouter.Use(s.rateLimitMiddleware)
	apiRouter.HandleFunc("/mask", s.handleMask).Methods("POST")
	apiRouter.HandleFunc("/findings", s.handleFindings).Methods("GET")

	// Masking reverse proxy
	proxyRouter := s.router.PathPrefix("/proxy/{target}").Subrouter()
	proxyRouter.Use(s.loggingMiddleware)
	proxyRouter.Use(s.rateLimitMiddleware)
	proxyRouter.Use(s.maskingMiddleware)
	proxyRouter.PathPrefix("/").HandlerFunc(s.handleProxy)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting Veil masking gateway",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("masking_enabled", s.config.Masking.Enabled),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("audit_enabled", s.store != nil),
		zap.Int("upstream_targets", len(s.config.Upstream.Targets)),
	)

	// Start event hub in a separate goroutine
	go s.hub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes backends
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Veil masking gateway")

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close result cache", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close audit store", zap.Error(err))
		}
	}

	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"veil",
		"version":"0.1.0",
		"masking_enabled":%t,
		"audit_enabled":%t,
		"sensitive_names":%d,
		"uptime":"%s"
	}`, s.config.Masking.Enabled, s.store != nil, len(s.maskEngine().SensitiveNames()), time.Since(s.started).Round(time.Second))
}

// handleWebSocket handles WebSocket connections for the event feed
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

// GetHub returns the event hub for broadcasting events
func (s *Server) GetHub() *events.Hub {
	return s.hub
}
