// Package main runs the medical report analyzer HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/api"
	"github.com/medical-report-analyzer/internal/app"
	"github.com/medical-report-analyzer/internal/config"
	"github.com/medical-report-analyzer/internal/database"
	"github.com/medical-report-analyzer/internal/domain"
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
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// "server migrate up|down" manages the Postgres schema and exits
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, configManager, logger, os.Args[2:]); err != nil {
			logger.WithError(err).Fatal("Migration failed")
		}
		return
	}

	application, err := app.New(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	// SIGHUP re-reads the configuration file
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hangup:
				if err := application.Reload(); err != nil {
					logger.WithError(err).Error("Configuration reload failed")
				}
			}
		}
	}()

	opts := make([]api.ServerOption, 0, len(application.HealthChecks))
	for name, check := range application.HealthChecks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	server := api.NewServer(configManager, logger, application.Analyzer, opts...)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting medical report analyzer API")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

func runMigrate(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger, args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	dbURL := configManager.GetDatabaseURL()
	path := configManager.GetDatabaseConfig().MigrationsPath
	switch direction {
	case "up":
		return database.Migrate(ctx, dbURL, path, logger)
	case "down":
		return database.Rollback(ctx, dbURL, path, logger)
	default:
		return fmt.Errorf("unknown migrate direction %q, expected up or down", direction)
	}
}
