package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/medical-report-analyzer/internal/domain"
)

// ErrInvalidExport is returned when an import is not a readable export document.
var ErrInvalidExport = errors.New("invalid export document")

// scanner is satisfied by sql.Row, sql.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*AnalysisRecord, error) {
	record := &AnalysisRecord{}
	var resultJSON []byte

	err := s.Scan(
		&record.ID, &record.ReportHash, &record.Source, &record.TextLength,
		&resultJSON, &record.ProcessingTimeMs, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Result = domain.NewAnalysisResult()
	if err := json.Unmarshal(resultJSON, record.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func encodeResult(record *AnalysisRecord) ([]byte, error) {
	if record.Result == nil {
		return nil, errors.New("record has no result")
	}
	return json.Marshal(record.Result)
}

// writeExport encodes records in the export format.
func writeExport(writer io.Writer, records []*AnalysisRecord) error {
	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Analyses:   records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importRecords saves each exported record whose ID is not stored yet.
func importRecords(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}

	for _, record := range export.Analyses {
		if record == nil || record.ID == "" || record.Result == nil {
			skipped++
			continue
		}

		_, err := store.Get(ctx, record.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := store.Save(ctx, record); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
