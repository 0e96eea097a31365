package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/cache"
	litecfg "github.com/medical-report-analyzer/internal/config"
	"github.com/medical-report-analyzer/internal/history"
	"github.com/medical-report-analyzer/internal/service"
)

// LiteServerName identifies the lite server to MCP clients.
const LiteServerName = "medical-report-analyzer-lite"

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses in-memory caching and SQLite for persistence.
type LiteServer struct {
	config       *litecfg.LiteConfig
	mcpServer    *mcp.Server
	historyStore history.Store
	cache        *cache.MemoryCache
	analyzer     *service.AnalyzerService
	tools        []string
	version      string
	logger       *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithHistoryStore sets a custom history store.
func WithHistoryStore(store history.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.historyStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(version string) LiteServerOption {
	return func(s *LiteServer) error {
		s.version = version
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config:  cfg,
		logger:  logrus.New(),
		version: "v0.1.0",
	}

	// Configure default logger; stdout belongs to the stdio transport
	server.logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		server.logger.SetLevel(level)
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.cache = memCache

	analyzerOpts := []service.AnalyzerOption{
		service.WithResultCache(memCache),
		service.WithMaxTextBytes(cfg.MaxTextBytes),
	}
	if server.historyStore == nil && cfg.PersistResults {
		store, err := history.NewSQLiteStore(cfg.HistoryDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
		server.historyStore = store
	}
	if server.historyStore != nil {
		analyzerOpts = append(analyzerOpts, service.WithHistory(server.historyStore))
	}

	rules := service.DefaultRuleSet(service.WithRecommendationDedup(cfg.DedupeRecommendations))
	server.analyzer = service.NewAnalyzerService(server.logger, rules, analyzerOpts...)

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    LiteServerName,
		Version: server.version,
	}, nil)

	handlers := &toolHandlers{analyzer: server.analyzer, logger: server.logger}
	server.tools = registerTools(server.mcpServer, handlers)
	registerResources(server.mcpServer, handlers)
	if server.analyzer.HistoryEnabled() {
		mcp.AddTool(server.mcpServer, &mcp.Tool{
			Name:        "export_analyses",
			Description: "Export every stored analysis to a JSON file in the data directory and return its path.",
		}, server.handleExportAnalyses)
		server.tools = append(server.tools, "export_analyses")
	}

	server.logger.WithFields(logrus.Fields{
		"tools":    server.tools,
		"data_dir": cfg.DataDir,
		"history":  server.analyzer.HistoryEnabled(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

// ExportAnalysesParams defines parameters for the export_analyses tool
type ExportAnalysesParams struct{}

func (s *LiteServer) handleExportAnalyses(ctx context.Context, req *mcp.CallToolRequest, params ExportAnalysesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "export_analyses").Info("Tool invoked")
	handlers := &toolHandlers{analyzer: s.analyzer, logger: s.logger}

	path := filepath.Join(s.config.ExportDir(), fmt.Sprintf("analyses-%s.json", time.Now().UTC().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return handlers.createErrorResult("Export failed", err), nil, nil
	}
	defer f.Close()

	if err := s.analyzer.ExportAnalyses(ctx, f); err != nil {
		os.Remove(path)
		return handlers.createErrorResult("Export failed", err), nil, nil
	}

	s.logger.WithField("path", path).Info("Analyses exported")
	return jsonResult(map[string]string{"path": path})
}

// Start starts the lite MCP server.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting medical report analyzer MCP server (lite)...")

	transport := DetectTransport(os.Args[1:], os.Getenv("MCP_TRANSPORT"), s.config.Transport, s.logger)
	return serve(ctx, s.mcpServer, transport, fmt.Sprintf("127.0.0.1:%d", s.config.HTTPPort), s.logger)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.historyStore != nil {
		if err := s.historyStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close history store")
			return err
		}
	}
	return nil
}

// Tools returns the registered tool names.
func (s *LiteServer) Tools() []string {
	return s.tools
}

// Analyzer returns the analyzer service for external access.
func (s *LiteServer) Analyzer() *service.AnalyzerService {
	return s.analyzer
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
