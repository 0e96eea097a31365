package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/history"
)

// ErrHistoryDisabled is returned by history operations when no store is configured.
var ErrHistoryDisabled = errors.New("analysis history is not enabled")

// Analyze runs extraction, classification, the mention scan and the summary over
// text. It has no side effects and returns a result for every input.
func Analyze(text string, rules *domain.RuleSet) *domain.AnalysisResult {
	result := domain.NewAnalysisResult()
	if rules == nil {
		Summarize(result)
		return result
	}

	Classify(Extract(text, rules), rules, result)
	applyMentions(result, ScanMentions(text, rules.Mentions), rules.DedupeRecommendations)
	Summarize(result)
	return result
}

// ReportHash returns the hex SHA-256 digest used as the cache and history key for a report.
func ReportHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AnalyzeRequest is a report submitted for analysis.
type AnalyzeRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// cacheInvalidator is implemented by result caches that can drop entries.
type cacheInvalidator interface {
	Remove(ctx context.Context, key string) error
	Purge(ctx context.Context) error
}

// AnalyzerOption configures an AnalyzerService.
type AnalyzerOption func(*AnalyzerService)

// WithResultCache serves repeated reports from cache.
func WithResultCache(cache domain.ResultCache) AnalyzerOption {
	return func(s *AnalyzerService) {
		s.cache = cache
	}
}

// WithHistory persists every analysis to store.
func WithHistory(store history.Store) AnalyzerOption {
	return func(s *AnalyzerService) {
		s.store = store
	}
}

// WithMaxTextBytes rejects reports longer than limit. Zero disables the check.
func WithMaxTextBytes(limit int) AnalyzerOption {
	return func(s *AnalyzerService) {
		s.maxTextBytes = limit
	}
}

// AnalyzerService wraps Analyze with caching, persistence and logging.
type AnalyzerService struct {
	logger       *logrus.Logger
	rules        *domain.RuleSet
	cache        domain.ResultCache
	store        history.Store
	maxTextBytes int
}

// NewAnalyzerService creates a new analyzer service
func NewAnalyzerService(logger *logrus.Logger, rules *domain.RuleSet, opts ...AnalyzerOption) *AnalyzerService {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	s := &AnalyzerService{
		logger: logger,
		rules:  rules,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule set the service analyzes with.
func (s *AnalyzerService) Rules() *domain.RuleSet {
	return s.rules
}

// HistoryEnabled reports whether analyses are persisted.
func (s *AnalyzerService) HistoryEnabled() bool {
	return s.store != nil
}

// AnalyzeReport analyzes one report and returns the stored record.
func (s *AnalyzerService) AnalyzeReport(ctx context.Context, req *AnalyzeRequest) (*history.AnalysisRecord, error) {
	if req == nil {
		return nil, domain.NewValidationError("request", "request body is required", nil)
	}
	if s.maxTextBytes > 0 && len(req.Text) > s.maxTextBytes {
		return nil, domain.NewValidationError("text",
			fmt.Sprintf("report text exceeds %d bytes", s.maxTextBytes), len(req.Text))
	}

	startTime := time.Now()
	hash := ReportHash(req.Text)

	result, cached := s.lookup(ctx, hash)
	if !cached {
		result = Analyze(req.Text, s.rules)
		if s.cache != nil {
			if err := s.cache.Set(ctx, hash, result); err != nil {
				s.logger.WithError(err).Warn("Failed to cache analysis result")
			}
		}
	}

	record := &history.AnalysisRecord{
		ID:               uuid.New().String(),
		ReportHash:       hash,
		Source:           req.Source,
		TextLength:       len(req.Text),
		Result:           result,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save analysis: %w", err)
		}
	}

	fields := logrus.Fields{
		"analysis_id": record.ID,
		"report_hash": hash[:12],
		"text_length": record.TextLength,
		"cached":      cached,
		"duration_ms": record.ProcessingTimeMs,
	}
	for k, v := range result.LogFields() {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("Report analysis completed")

	return record, nil
}

// lookup serves a report from the cache, then from the newest stored analysis
// of the same text, refilling the cache on a history hit.
func (s *AnalyzerService) lookup(ctx context.Context, hash string) (*domain.AnalysisResult, bool) {
	if s.cache != nil {
		if result, ok := s.cache.Get(ctx, hash); ok && result != nil {
			return result, true
		}
	}
	if s.store == nil {
		return nil, false
	}

	record, err := s.store.GetByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithError(err).Warn("History lookup failed")
		}
		return nil, false
	}
	if record.Result == nil {
		return nil, false
	}

	s.logger.WithField("analysis_id", record.ID).Debug("Serving result from analysis history")
	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, record.Result); err != nil {
			s.logger.WithError(err).Warn("Failed to cache analysis result")
		}
	}
	return record.Result, true
}

// GetAnalysis returns a stored analysis by ID.
func (s *AnalyzerService) GetAnalysis(ctx context.Context, id string) (*history.AnalysisRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.Get(ctx, id)
}

// ListAnalyses returns a page of stored analyses, newest first, and the total count.
func (s *AnalyzerService) ListAnalyses(ctx context.Context, limit, offset int) ([]*history.AnalysisRecord, int64, error) {
	if s.store == nil {
		return nil, 0, ErrHistoryDisabled
	}
	if limit <= 0 || limit > history.MaxPageSize {
		limit = history.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return records, total, nil
}

// DeleteAnalysis removes a stored analysis. Deleting the last analysis of a
// report also drops its cached result.
func (s *AnalyzerService) DeleteAnalysis(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrHistoryDisabled
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("analysis_id", id).Info("Analysis deleted")

	if _, err := s.store.GetByHash(ctx, record.ReportHash); errors.Is(err, domain.ErrNotFound) {
		s.forget(ctx, record.ReportHash)
	}
	return nil
}

func (s *AnalyzerService) forget(ctx context.Context, hash string) {
	invalidator, ok := s.cache.(cacheInvalidator)
	if !ok {
		return
	}
	if err := invalidator.Remove(ctx, hash); err != nil {
		s.logger.WithError(err).Warn("Failed to drop cached result")
	}
}

// PurgeCache empties the result cache. It is a no-op when the cache cannot be purged.
func (s *AnalyzerService) PurgeCache(ctx context.Context) error {
	invalidator, ok := s.cache.(cacheInvalidator)
	if !ok {
		return nil
	}
	if err := invalidator.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge result cache: %w", err)
	}
	s.logger.Info("Result cache purged")
	return nil
}

// ExportAnalyses writes every stored analysis as JSON.
func (s *AnalyzerService) ExportAnalyses(ctx context.Context, w io.Writer) error {
	if s.store == nil {
		return ErrHistoryDisabled
	}
	return s.store.ExportJSON(ctx, w)
}

// ImportAnalyses saves the records of an export whose IDs are not stored yet.
func (s *AnalyzerService) ImportAnalyses(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	if s.store == nil {
		return 0, 0, ErrHistoryDisabled
	}
	imported, skipped, err = s.store.ImportJSON(ctx, r)
	if err != nil {
		return imported, skipped, err
	}
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Analyses imported")
	return imported, skipped, nil
}

// ExtractMeasurements returns the raw measurements found in text, including the
// kinds that have no classification rules.
func (s *AnalyzerService) ExtractMeasurements(text string) []domain.Measurement {
	found := Extract(text, s.rules)
	measurements := make([]domain.Measurement, 0, len(found))
	for _, kind := range domain.AllMeasurementKinds() {
		if m, ok := found[kind]; ok {
			measurements = append(measurements, m)
		}
	}
	return measurements
}
