package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-report-analyzer/internal/cache"
	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/history"
	"github.com/medical-report-analyzer/internal/middleware"
	"github.com/medical-report-analyzer/internal/service"
)

type stubConfigManager struct {
	cfg         *domain.Config
	environment string
}

func newStubConfigManager() *stubConfigManager {
	return &stubConfigManager{cfg: &domain.Config{
		Server: domain.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			RequestTimeout: 5 * time.Second,
		},
		Logging: domain.LoggingConfig{Level: "error"},
		MCP:     domain.MCPConfig{ServerVersion: "test"},
		Analysis: domain.AnalysisConfig{
			MaxTextBytes:   1024,
			MaxUploadBytes: 2048,
		},
	}}
}

func (m *stubConfigManager) GetConfig() *domain.Config { return m.cfg }
func (m *stubConfigManager) GetDatabaseConfig() *domain.DatabaseConfig { return &m.cfg.Database }
func (m *stubConfigManager) GetServerConfig() *domain.ServerConfig { return &m.cfg.Server }
func (m *stubConfigManager) GetAnalysisConfig() *domain.AnalysisConfig { return &m.cfg.Analysis }
func (m *stubConfigManager) Reload() error { return nil }
func (m *stubConfigManager) Validate() error { return nil }
func (m *stubConfigManager) GetDatabaseURL() string { return "" }
func (m *stubConfigManager) GetRedisConnectionString() string { return "" }
func (m *stubConfigManager) IsProduction() bool { return m.environment == "production" }
func (m *stubConfigManager) IsDevelopment() bool {
	return m.environment == "" || m.environment == "development"
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestServer(t *testing.T, withHistory bool, opts ...ServerOption) *Server {
	t.Helper()

	cfg := newStubConfigManager()
	analyzerOpts := []service.AnalyzerOption{service.WithMaxTextBytes(cfg.cfg.Analysis.MaxTextBytes)}
	if withHistory {
		store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		analyzerOpts = append(analyzerOpts, service.WithHistory(store))
	}

	logger := newTestLogger()
	analyzer := service.NewAnalyzerService(logger, service.DefaultRuleSet(), analyzerOpts...)
	return NewServer(cfg, logger, analyzer, opts...)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeAnalyze(t *testing.T, w *httptest.ResponseRecorder) AnalyzeResponse {
	t.Helper()
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, true, WithHealthCheck("history", func(context.Context) error { return nil }))
		w := doJSON(t, s, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "test", body["version"])
		assert.Equal(t, true, body["history_enabled"])
		assert.Equal(t, map[string]any{"history": "ok"}, body["components"])
	})

	t.Run("degraded", func(t *testing.T) {
		s := newTestServer(t, false,
			WithHealthCheck("cache", func(context.Context) error { return errors.New("redis unreachable") }),
			WithVersion("2.0.0"))
		w := doJSON(t, s, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "2.0.0", body["version"])
		assert.Equal(t, map[string]any{"cache": "redis unreachable"}, body["components"])
	})
}

func TestAnalyzeJSON(t *testing.T) {
	s := newTestServer(t, true)

	w := doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{
		Text:   "BP 190/120 mmHg. History of pneumonia.",
		Source: "manual",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeAnalyze(t, w)
	assert.NotEmpty(t, resp.AnalysisID)
	assert.Equal(t, service.ReportHash("BP 190/120 mmHg. History of pneumonia."), resp.ReportHash)
	assert.Equal(t, []string{"Hypertensive Crisis", "Pneumonia"}, resp.Result.Diseases)
	assert.Equal(t, []string{"Blood Pressure: 190/120 mmHg (Hypertensive Crisis)"}, resp.Result.CriticalValues)
	assert.NotEmpty(t, w.Header().Get(middleware.CorrelationIDHeader))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAnalyzeEmptyText(t *testing.T) {
	s := newTestServer(t, false)

	w := doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: ""})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeAnalyze(t, w)
	assert.Equal(t, []string{"No significant abnormalities detected"}, resp.Result.KeyFindings)
	assert.Empty(t, resp.Result.Diseases)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	s := newTestServer(t, false)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.CorrelationIDHeader, "corr-1")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		apiErr := decodeError(t, w)
		assert.Equal(t, domain.ErrInvalidInput, apiErr.Code)
		assert.Equal(t, "corr-1", apiErr.RequestID)
	})

	t.Run("text over limit", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: strings.Repeat("a", 2000)})

		require.Equal(t, http.StatusBadRequest, w.Code)
		apiErr := decodeError(t, w)
		assert.Equal(t, domain.ErrValidation, apiErr.Code)
		assert.Equal(t, "text", apiErr.Details)
	})

	t.Run("body over limit", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: strings.Repeat("a", 200<<10)})

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, domain.ErrInvalidInput, decodeError(t, w).Code)
	})
}

func TestAnalyzeMultipart(t *testing.T) {
	s := newTestServer(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text", "Diagnosed with pneumonia."))
	require.NoError(t, mw.WriteField("source", "upload"))
	part, err := mw.CreateFormFile("files[]", "labs.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Fasting Glucose: 130 mg/dL"))
	require.NoError(t, err)
	part, err = mw.CreateFormFile("files", "scan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeAnalyze(t, w)
	assert.Equal(t, []string{"Diabetes Mellitus Type 2", "Pneumonia"}, resp.Result.Diseases)

	// files come before files[] in the combined text: the pdf notice, then the lab text.
	expected := "Diagnosed with pneumonia.\n\nUnable to extract specific medical data from this file format\n\nFasting Glucose: 130 mg/dL"
	assert.Equal(t, service.ReportHash(expected), resp.ReportHash)
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	first := decodeAnalyze(t, doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: "migraine"}))
	second := decodeAnalyze(t, doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: "arthritis"}))

	w := doJSON(t, s, http.MethodGet, "/api/v1/analyses?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Analyses, 1)

	w = doJSON(t, s, http.MethodGet, "/api/v1/analyses/"+first.AnalysisID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var record history.AnalysisRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, []string{"Myocardial Infarction (Heart Attack)", "Migraine Headache"}, record.Result.Diseases)

	w = doJSON(t, s, http.MethodGet, "/api/v1/analyses/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	var export history.Export
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Equal(t, 2, export.Count)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/analyses/"+second.AnalysisID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/analyses/"+second.AnalysisID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrNotFoundCode, decodeError(t, w).Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/analyses?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/v1/analyses?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/api/v1/analyses", "/api/v1/analyses/export", "/api/v1/analyses/abc"} {
		w := doJSON(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, domain.ErrStorage, decodeError(t, w).Code, path)
	}
}

func TestImportAnalyses(t *testing.T) {
	source := newTestServer(t, true)
	doJSON(t, source, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: "pneumonia"})
	doJSON(t, source, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: "appendicitis"})
	export := doJSON(t, source, http.MethodGet, "/api/v1/analyses/export", nil)
	require.Equal(t, http.StatusOK, export.Code)

	target := newTestServer(t, true)
	postRaw := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/import", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		return w
	}

	w := postRaw(export.Body.Bytes())
	require.Equal(t, http.StatusOK, w.Code)
	var resp ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ImportResponse{Imported: 2, Skipped: 0}, resp)

	w = postRaw(export.Body.Bytes())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ImportResponse{Imported: 0, Skipped: 2}, resp)

	w = postRaw([]byte("{broken"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidInput, decodeError(t, w).Code)

	w = postRaw(bytes.Repeat([]byte(" "), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestExtract(t *testing.T) {
	s := newTestServer(t, false)

	w := doJSON(t, s, http.MethodPost, "/api/v1/extract",
		service.AnalyzeRequest{Text: "BP 150/95 mmHg. Temperature 101.2 F, heart rate 88 bpm."})

	require.Equal(t, http.StatusOK, w.Code)
	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Measurements, 3)
	assert.Equal(t, domain.Measurement{Kind: domain.BLOOD_PRESSURE, Value: 150, Secondary: 95, Raw: "150/95 mmHg"}, resp.Measurements[0])
	assert.Equal(t, domain.TEMPERATURE, resp.Measurements[1].Kind)
	assert.Equal(t, 101.2, resp.Measurements[1].Value)
	assert.Equal(t, domain.HEART_RATE, resp.Measurements[2].Kind)
	assert.Equal(t, 88.0, resp.Measurements[2].Value)

	w = doJSON(t, s, http.MethodPost, "/api/v1/extract", service.AnalyzeRequest{Text: strings.Repeat("x", 1025)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrValidation, decodeError(t, w).Code)
}

func TestRules(t *testing.T) {
	s := newTestServer(t, false)

	w := doJSON(t, s, http.MethodGet, "/api/v1/rules", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var catalog service.RuleCatalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalog))
	assert.Len(t, catalog.Measurements, 5)
	assert.Len(t, catalog.Mentions, 11)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, false)

	w := doJSON(t, s, http.MethodOptions, "/api/v1/analyze", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyzeStream(t *testing.T) {
	s := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/analyze/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	reports := []string{"Hemoglobin: 10.2 g/dL", "Glucose: 95 mg/dL"}
	for _, report := range reports {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(report)))
	}

	var anemia AnalyzeResponse
	require.NoError(t, conn.ReadJSON(&anemia))
	assert.Equal(t, service.ReportHash(reports[0]), anemia.ReportHash)
	assert.Equal(t, []string{"Iron Deficiency Anemia"}, anemia.Result.Diseases)

	var normal AnalyzeResponse
	require.NoError(t, conn.ReadJSON(&normal))
	assert.Equal(t, []string{"Fasting Glucose: 95 mg/dL (Normal)"}, normal.Result.NormalValues)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	var streamErr StreamError
	require.NoError(t, conn.ReadJSON(&streamErr))
	require.NotNil(t, streamErr.Error)
	assert.Equal(t, domain.ErrInvalidInput, streamErr.Error.Code)
}

func TestEnvironmentModes(t *testing.T) {
	logger := newTestLogger()
	analyzer := service.NewAnalyzerService(logger, service.DefaultRuleSet())
	foreign := http.Header{"Origin": {"http://elsewhere.example"}}

	dial := func(t *testing.T, s *Server) (*http.Response, error) {
		ts := httptest.NewServer(s.Handler())
		t.Cleanup(ts.Close)
		conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/analyze/stream", foreign)
		if err == nil {
			conn.Close()
		}
		return resp, err
	}

	t.Run("development", func(t *testing.T) {
		cfg := newStubConfigManager()
		cfg.cfg.Logging.Level = "debug"
		s := NewServer(cfg, logger, analyzer)
		assert.Equal(t, gin.DebugMode, gin.Mode())

		_, err := dial(t, s)
		assert.NoError(t, err, "cross-origin streams are accepted in development")
	})

	t.Run("production", func(t *testing.T) {
		cfg := newStubConfigManager()
		cfg.cfg.Logging.Level = "debug"
		cfg.environment = "production"
		s := NewServer(cfg, logger, analyzer)
		assert.Equal(t, gin.ReleaseMode, gin.Mode(), "production never runs gin in debug mode")

		resp, err := dial(t, s)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestPurgeCache(t *testing.T) {
	memory, err := cache.NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	logger := newTestLogger()
	s := NewServer(newStubConfigManager(), logger,
		service.NewAnalyzerService(logger, service.DefaultRuleSet(), service.WithResultCache(memory)))

	require.Equal(t, http.StatusOK, doJSON(t, s, http.MethodPost, "/api/v1/analyze", service.AnalyzeRequest{Text: "arthritis"}).Code)
	require.Equal(t, 1, memory.Len())

	w := doJSON(t, s, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, memory.Len())
}
