package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/history"
	"github.com/medical-report-analyzer/internal/ingestion"
	"github.com/medical-report-analyzer/internal/middleware"
	"github.com/medical-report-analyzer/internal/service"
)

// multipartOverhead is added to the text and upload limits to cover form boundaries and headers.
const multipartOverhead = 64 << 10

// AnalyzeResponse is returned for every analysis, over HTTP and the stream.
type AnalyzeResponse struct {
	AnalysisID       string                 `json:"analysis_id"`
	ReportHash       string                 `json:"report_hash"`
	Result           *domain.AnalysisResult `json:"result"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	CreatedAt        time.Time              `json:"created_at"`
}

func newAnalyzeResponse(record *history.AnalysisRecord) AnalyzeResponse {
	return AnalyzeResponse{
		AnalysisID:       record.ID,
		ReportHash:       record.ReportHash,
		Result:           record.Result,
		ProcessingTimeMs: record.ProcessingTimeMs,
		CreatedAt:        record.CreatedAt,
	}
}

// ListResponse is a page of stored analyses.
type ListResponse struct {
	Analyses []*history.AnalysisRecord `json:"analyses"`
	Total    int64                     `json:"total"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// handleAnalyze accepts a JSON body or a multipart form with a text field and uploaded files.
func (s *Server) handleAnalyze(c *gin.Context) {
	cfg := s.configManager.GetAnalysisConfig()
	if limit := int64(cfg.MaxTextBytes) + int64(cfg.MaxUploadBytes); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	var (
		req *service.AnalyzeRequest
		err error
	)
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		req, err = s.bindMultipart(c)
	} else {
		req = &service.AnalyzeRequest{}
		if bindErr := c.ShouldBindJSON(req); bindErr != nil {
			err = bindErr
		}
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.respondError(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput,
				"Request body too large", fmt.Sprintf("limit is %d bytes", maxBytesErr.Limit))
			return
		}
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid analysis request", err.Error())
		return
	}

	record, err := s.analyzer.AnalyzeReport(c.Request.Context(), req)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAnalyzeResponse(record))
}

func (s *Server) bindMultipart(c *gin.Context) (*service.AnalyzeRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	var files []*multipart.FileHeader
	files = append(files, form.File["files"]...)
	files = append(files, form.File["files[]"]...)

	docs := make([]ingestion.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		defer f.Close()
		docs = append(docs, ingestion.Document{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		})
	}

	text, err := s.collector.Collect(c.Request.Context(), c.PostForm("text"), docs...)
	if err != nil {
		return nil, err
	}

	return &service.AnalyzeRequest{
		Text:   text,
		Source: c.PostForm("source"),
	}, nil
}

// ExtractResponse lists the raw measurements found in a report.
type ExtractResponse struct {
	Measurements []domain.Measurement `json:"measurements"`
}

// ImportResponse reports the outcome of a history import.
type ImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// handleExtract shows what the extractor reads from a report without classifying it.
func (s *Server) handleExtract(c *gin.Context) {
	cfg := s.configManager.GetAnalysisConfig()
	if cfg.MaxTextBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(cfg.MaxTextBytes)+multipartOverhead)
	}

	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid extraction request", err.Error())
		return
	}
	if cfg.MaxTextBytes > 0 && len(req.Text) > cfg.MaxTextBytes {
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation,
			fmt.Sprintf("report text exceeds %d bytes", cfg.MaxTextBytes), "text")
		return
	}

	c.JSON(http.StatusOK, ExtractResponse{Measurements: s.analyzer.ExtractMeasurements(req.Text)})
}

// handleRules returns the threshold tables and condition vocabulary.
func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, service.DescribeRules(s.analyzer.Rules()))
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	limit, err := queryInt(c, "limit", history.DefaultPageSize)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid limit", err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid offset", c.Query("offset"))
		return
	}
	if limit <= 0 || limit > history.MaxPageSize {
		limit = history.DefaultPageSize
	}

	records, total, err := s.analyzer.ListAnalyses(c.Request.Context(), limit, offset)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	if records == nil {
		records = []*history.AnalysisRecord{}
	}

	c.JSON(http.StatusOK, ListResponse{
		Analyses: records,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	record, err := s.analyzer.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleDeleteAnalysis(c *gin.Context) {
	if err := s.analyzer.DeleteAnalysis(c.Request.Context(), c.Param("id")); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePurgeCache(c *gin.Context) {
	if err := s.analyzer.PurgeCache(c.Request.Context()); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleExportAnalyses buffers the export so a storage failure can still be reported as an error response.
func (s *Server) handleExportAnalyses(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.analyzer.ExportAnalyses(c.Request.Context(), &buf); err != nil {
		s.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("analyses-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// handleImportAnalyses loads an export produced by the export endpoint.
func (s *Server) handleImportAnalyses(c *gin.Context) {
	if limit := s.configManager.GetAnalysisConfig().MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limit))
	}

	imported, skipped, err := s.analyzer.ImportAnalyses(c.Request.Context(), c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			s.respondError(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput,
				"Request body too large", fmt.Sprintf("limit is %d bytes", maxBytesErr.Limit))
		case errors.Is(err, history.ErrInvalidExport):
			s.respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid export document", err.Error())
		default:
			s.handleServiceError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, ImportResponse{Imported: imported, Skipped: skipped})
}

// handleServiceError maps service errors onto API error responses.
func (s *Server) handleServiceError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		s.respondError(c, http.StatusBadRequest, domain.ErrValidation, validationErr.Message, validationErr.Field)
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Analysis not found", c.Param("id"))
	case errors.Is(err, service.ErrHistoryDisabled):
		s.respondError(c, http.StatusServiceUnavailable, domain.ErrStorage, "Analysis history is not enabled", "")
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(c, http.StatusGatewayTimeout, domain.ErrInternalServer, "Request timeout", "")
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"path":           c.FullPath(),
		}).WithError(err).Error("Request failed")
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Internal error", "")
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
