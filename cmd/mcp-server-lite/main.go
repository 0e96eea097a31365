// Package main provides the lightweight entry point for the medical report analyzer MCP server.
// This version requires no external services - it uses in-memory caching and SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/config"
	"github.com/medical-report-analyzer/internal/mcp"
	"github.com/medical-report-analyzer/internal/setup"
)

var version = "v0.1.0"

func main() {
	// Check for setup subcommand
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI(os.Stdin, os.Stdout)
		if err := cli.Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	server, err := mcp.NewLiteServer(cfg, mcp.WithVersion(version))
	if err != nil {
		logrus.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server failed: %v\n", err)
		server.Close()
		os.Exit(1)
	}
}
