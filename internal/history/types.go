// Package history persists analysis records so past reports can be listed,
// retrieved, exported and re-imported.
package history

import (
	"context"
	"io"
	"time"

	"github.com/medical-report-analyzer/internal/domain"
)

const (
	// DefaultPageSize is used when a list request gives no usable limit.
	DefaultPageSize = 20
	// MaxPageSize caps a single list request.
	MaxPageSize = 200

	// exportVersion is written into every JSON export.
	exportVersion = "1.0"
	// maxExportLimit is the maximum number of records exported at once.
	maxExportLimit = 1000000
)

// AnalysisRecord is one stored analysis of a report.
type AnalysisRecord struct {
	ID               string                 `json:"id"`
	ReportHash       string                 `json:"report_hash"`
	Source           string                 `json:"source,omitempty"`
	TextLength       int                    `json:"text_length"`
	Result           *domain.AnalysisResult `json:"result"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Store defines the interface for analysis history storage.
type Store interface {
	// Save inserts a record, replacing any record with the same ID.
	Save(ctx context.Context, record *AnalysisRecord) error

	// Get returns the record with the given ID or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*AnalysisRecord, error)

	// GetByHash returns the most recent record for a report hash or domain.ErrNotFound.
	GetByHash(ctx context.Context, reportHash string) (*AnalysisRecord, error)

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*AnalysisRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record by ID, returning domain.ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export and saves records whose IDs are not yet stored.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close releases resources.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Analyses   []*AnalysisRecord `json:"analyses"`
}
