// Package main runs the medical report analyzer as an MCP server backed by the
// full configuration stack.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/app"
	"github.com/medical-report-analyzer/internal/config"
	"github.com/medical-report-analyzer/internal/mcp"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	// Stdout carries the stdio transport, so logs always go elsewhere
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	mcpServer, err := mcp.NewServer(configManager, application.Analyzer, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create MCP server")
		application.Close()
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"name":    cfg.MCP.ServerName,
		"version": cfg.MCP.ServerVersion,
		"tools":   mcpServer.Tools(),
	}).Info("Starting medical report analyzer MCP server")

	if err := mcpServer.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("MCP server stopped")
}
