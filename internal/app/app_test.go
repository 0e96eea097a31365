package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-report-analyzer/internal/config"
	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/service"
)

func newManager(t *testing.T, content string) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	m, err := config.NewManagerFromFile(path)
	require.NoError(t, err)
	return m
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)

	logger, err = NewLogger(domain.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stdout, logger.Out)

	logPath := filepath.Join(t.TempDir(), "server.log")
	logger, err = NewLogger(domain.LoggingConfig{Level: "warn", Output: logPath})
	require.NoError(t, err)
	logger.Warn("written to file")
	assert.FileExists(t, logPath)

	_, err = NewLogger(domain.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithSQLiteHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	m := newManager(t, "analysis:\n  history_db_path: "+dbPath+"\n")

	a, err := New(context.Background(), m, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Analyzer.HistoryEnabled())
	assert.FileExists(t, dbPath)
	assert.Contains(t, a.HealthChecks, "history")
	assert.NotContains(t, a.HealthChecks, "cache")

	record, err := a.Analyzer.AnalyzeReport(context.Background(), &service.AnalyzeRequest{Text: "Weight 95 kg. History of arthritis."})
	require.NoError(t, err)
	assert.Equal(t, []string{"Arthritis"}, record.Result.Diseases)

	for name, check := range a.HealthChecks {
		assert.NoError(t, check(context.Background()), name)
	}
}

func TestNewWithoutHistory(t *testing.T) {
	m := newManager(t, "analysis:\n  persist_results: false\n  dedupe_recommendations: true\n")

	a, err := New(context.Background(), m, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Analyzer.HistoryEnabled())
	assert.True(t, a.Analyzer.Rules().DedupeRecommendations)
	assert.Empty(t, a.HealthChecks)

	_, _, err = a.Analyzer.ListAnalyses(context.Background(), 10, 0)
	assert.ErrorIs(t, err, service.ErrHistoryDisabled)
}

func TestNewRejectsBadCacheConfig(t *testing.T) {
	m := newManager(t, "analysis:\n  persist_results: false\ncache:\n  memory_max_items: 0\n")

	_, err := New(context.Background(), m, quietLogger())
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newManager(t, "analysis:\n  history_db_path: "+filepath.Join(t.TempDir(), "h.db")+"\n")
	a, err := New(context.Background(), m, quietLogger())
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestReloadAppliesLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  persist_results: false\nlogging:\n  level: warn\n"), 0644))
	m, err := config.NewManagerFromFile(path)
	require.NoError(t, err)

	logger := quietLogger()
	a, err := New(context.Background(), m, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  persist_results: false\nlogging:\n  level: debug\n  format: text\n"), 0644))
	require.NoError(t, a.Reload())
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))
	assert.Error(t, a.Reload())
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel(), "a rejected reload leaves logging unchanged")
}
