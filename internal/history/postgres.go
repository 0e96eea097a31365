package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medical-report-analyzer/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewPostgresStore creates a history store on an existing pool.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromURL creates a history store with its own pool. Close releases the pool.
func NewPostgresStoreFromURL(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.ownsPool = true

	return store, nil
}

const pgSelectColumns = `SELECT id, report_hash, source, text_length, result, processing_time_ms, created_at FROM analyses`

// Save inserts a record, replacing any record with the same ID.
func (s *PostgresStore) Save(ctx context.Context, record *AnalysisRecord) error {
	resultJSON, err := encodeResult(record)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO analyses (
			id, report_hash, source, text_length, result, processing_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			report_hash = EXCLUDED.report_hash,
			source = EXCLUDED.source,
			text_length = EXCLUDED.text_length,
			result = EXCLUDED.result,
			processing_time_ms = EXCLUDED.processing_time_ms
	`

	_, err = s.pool.Exec(ctx, query,
		record.ID,
		record.ReportHash,
		record.Source,
		record.TextLength,
		string(resultJSON),
		record.ProcessingTimeMs,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*AnalysisRecord, error) {
	return s.queryOne(ctx, pgSelectColumns+` WHERE id = $1`, id)
}

// GetByHash retrieves the most recent record for a report hash.
func (s *PostgresStore) GetByHash(ctx context.Context, reportHash string) (*AnalysisRecord, error) {
	return s.queryOne(ctx, pgSelectColumns+` WHERE report_hash = $1 ORDER BY created_at DESC LIMIT 1`, reportHash)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg string) (*AnalysisRecord, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return record, nil
}

// List returns records newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*AnalysisRecord, error) {
	rows, err := s.pool.Query(ctx, pgSelectColumns+` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	result := []*AnalysisRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}

	return result, rows.Err()
}

// Count returns the total number of records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analyses").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// Delete removes a record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM analyses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExportJSON writes every record to writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list analyses: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports records from an export, skipping IDs already stored.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Close releases the pool when the store created it.
func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
