// Package app wires configuration, storage, caching and the analyzer service
// shared by the HTTP and MCP entry points.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/cache"
	"github.com/medical-report-analyzer/internal/database"
	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/history"
	"github.com/medical-report-analyzer/internal/service"
)

// App holds the long-lived components built from configuration.
type App struct {
	Config       domain.ConfigManager
	Logger       *logrus.Logger
	Analyzer     *service.AnalyzerService
	HealthChecks map[string]func(ctx context.Context) error

	closers []func() error
}

// NewLogger builds the process logger. Output is stdout, stderr or a file path.
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	logger.SetFormatter(formatterFor(cfg.Format))

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
	}
	logger.SetOutput(out)

	return logger, nil
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{}
}

// New builds the history store, result cache and analyzer service. Postgres is
// used for history when the database is enabled, otherwise SQLite when results
// are persisted. Redis is layered under the memory cache when a URL is set.
func New(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (*App, error) {
	cfg := configManager.GetConfig()
	a := &App{
		Config:       configManager,
		Logger:       logger,
		HealthChecks: make(map[string]func(ctx context.Context) error),
	}

	store, err := a.openHistory(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	resultCache, err := a.openCache(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []service.AnalyzerOption{
		service.WithResultCache(resultCache),
		service.WithMaxTextBytes(cfg.Analysis.MaxTextBytes),
	}
	if store != nil {
		opts = append(opts, service.WithHistory(store))
	}

	rules := service.DefaultRuleSet(service.WithRecommendationDedup(cfg.Analysis.DedupeRecommendations))
	if err := rules.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	a.Analyzer = service.NewAnalyzerService(logger, rules, opts...)

	logger.WithFields(logrus.Fields{
		"history": a.Analyzer.HistoryEnabled(),
		"redis":   resultCache.HasRedis(),
	}).Info("Application initialized")
	return a, nil
}

func (a *App) openHistory(ctx context.Context, cfg *domain.Config) (history.Store, error) {
	if cfg.Database.Enabled {
		dbURL := a.Config.GetDatabaseURL()
		if err := database.Migrate(ctx, dbURL, cfg.Database.MigrationsPath, a.Logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		a.HealthChecks["database"] = db.Health

		store, err := history.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}

	if !cfg.Analysis.PersistResults || cfg.Analysis.HistoryDBPath == "" {
		return nil, nil
	}

	store, err := history.NewSQLiteStore(cfg.Analysis.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.HealthChecks["history"] = func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	}
	a.Logger.WithField("path", store.Path()).Info("Using SQLite analysis history")
	return store, nil
}

func (a *App) openCache(cfg domain.CacheConfig) (*cache.TieredCache, error) {
	memory, err := cache.NewMemoryCache(cfg.MemoryMaxItems, cfg.MemoryTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		redisCache, err = cache.NewRedisCache(cache.RedisConfig{
			URL:         cfg.RedisURL,
			TTL:         cfg.DefaultTTL,
			MaxRetries:  cfg.MaxRetries,
			PoolSize:    cfg.PoolSize,
			PoolTimeout: cfg.PoolTimeout,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
	}

	tiered := cache.NewTieredCache(memory, redisCache, a.Logger)
	a.closers = append(a.closers, tiered.Close)
	if tiered.HasRedis() {
		a.HealthChecks["cache"] = tiered.Health
	}
	return tiered, nil
}

// Reload re-reads the configuration and applies its logging level and format.
// Storage, cache and server settings take effect on restart.
func (a *App) Reload() error {
	if err := a.Config.Reload(); err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("reloaded configuration is invalid: %w", err)
	}

	cfg := a.Config.GetConfig().Logging
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	a.Logger.SetLevel(level)
	a.Logger.SetFormatter(formatterFor(cfg.Format))
	a.Logger.WithField("level", level.String()).Info("Configuration reloaded")
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
