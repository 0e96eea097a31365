package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/ingestion"
	"github.com/medical-report-analyzer/internal/middleware"
	"github.com/medical-report-analyzer/internal/service"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
)

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithVersion sets the version reported by GET /health.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	analyzer      *service.AnalyzerService
	collector     *ingestion.Collector
	checks        map[string]HealthCheck
	version       string
	upgrader      websocket.Upgrader
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, analyzer *service.AnalyzerService, opts ...ServerOption) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" && !configManager.IsProduction() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	server := &Server{
		configManager: configManager,
		logger:        logger,
		analyzer:      analyzer,
		collector: ingestion.NewCollector(logger,
			ingestion.NewPlainTextExtractor(int64(cfg.Analysis.MaxUploadBytes))),
		checks:  make(map[string]HealthCheck),
		version: cfg.MCP.ServerVersion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		router: router,
	}

	// Cross-origin stream clients are only accepted in development; elsewhere
	// the upgrader's same-host check applies.
	if configManager.IsDevelopment() {
		server.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	for _, opt := range opts {
		opt(server)
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	// The stream lives for the whole connection and is not bounded by the request timeout.
	v1.GET("/analyze/stream", s.handleStream)

	timed := v1.Group("", middleware.RequestTimeout(s.configManager.GetServerConfig().RequestTimeout))
	{
		timed.POST("/analyze", s.handleAnalyze)
		timed.POST("/extract", s.handleExtract)
		timed.GET("/rules", s.handleRules)
		timed.GET("/analyses", s.handleListAnalyses)
		timed.GET("/analyses/export", s.handleExportAnalyses)
		timed.POST("/analyses/import", s.handleImportAnalyses)
		timed.GET("/analyses/:id", s.handleGetAnalysis)
		timed.DELETE("/analyses/:id", s.handleDeleteAnalysis)
		timed.DELETE("/cache", s.handlePurgeCache)
	}
}

// handleHealth runs every registered check; any failure reports the service as degraded.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC(),
		"version":         s.version,
		"history_enabled": s.analyzer.HistoryEnabled(),
		"components":      components,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, "+middleware.CorrelationIDHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Length, "+middleware.CorrelationIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
