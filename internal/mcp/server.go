// Package mcp exposes the report analyzer as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/service"
)

// Server is the MCP server backed by the full configuration stack
type Server struct {
	config    domain.ConfigManager
	mcpServer *mcp.Server
	tools     []string
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(configManager domain.ConfigManager, analyzer *service.AnalyzerService, logger *logrus.Logger) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer service is required")
	}
	cfg := configManager.GetConfig()

	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}
	mcpServer := mcp.NewServer(serverInfo, nil)

	server := &Server{
		config:    configManager,
		mcpServer: mcpServer,
		logger:    logger,
	}
	handlers := &toolHandlers{analyzer: analyzer, logger: logger}
	server.tools = registerTools(mcpServer, handlers)
	registerResources(mcpServer, handlers)

	logger.WithField("tools", server.tools).Info("Successfully registered all MCP tools")
	return server, nil
}

// Tools returns the registered tool names.
func (s *Server) Tools() []string {
	return s.tools
}

// Start starts the MCP server with the appropriate transport
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting medical report analyzer MCP server...")

	cfg := s.config.GetConfig().MCP
	transport := DetectTransport(os.Args[1:], os.Getenv("MCP_TRANSPORT"), cfg.TransportType, s.logger)
	return serve(ctx, s.mcpServer, transport, fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort), s.logger)
}
