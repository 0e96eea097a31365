package history

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-report-analyzer/internal/domain"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newRecord(id, hash string, offset time.Duration) *AnalysisRecord {
	result := domain.NewAnalysisResult()
	result.Summary = "Medical report analysis completed using AI-powered extraction. Identified conditions: Pneumonia. " +
		"Please review the identified conditions and follow medical recommendations."
	result.KeyFindings = []string{"Diagnosed: Pneumonia"}
	result.Recommendations = []string{"Complete antibiotic course and follow-up chest imaging"}
	result.Diseases = []string{"Pneumonia"}

	return &AnalysisRecord{
		ID:               id,
		ReportHash:       hash,
		Source:           "test",
		TextLength:       42,
		Result:           result,
		ProcessingTimeMs: 3,
		CreatedAt:        baseTime.Add(offset),
	}
}

// runStoreTests exercises the Store contract against any implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		record := newRecord("rec-1", "hash-a", 0)
		require.NoError(t, store.Save(ctx, record))

		got, err := store.Get(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, "hash-a", got.ReportHash)
		assert.Equal(t, "test", got.Source)
		assert.Equal(t, 42, got.TextLength)
		assert.Equal(t, int64(3), got.ProcessingTimeMs)
		assert.True(t, record.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, record.CreatedAt)
		assert.Equal(t, record.Result, got.Result)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)

		got, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("SaveRejectsMissingResult", func(t *testing.T) {
		store := newStore(t)

		err := store.Save(context.Background(), &AnalysisRecord{ID: "empty"})
		assert.Error(t, err)
	})

	t.Run("SaveReplacesSameID", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, newRecord("rec-1", "hash-a", 0)))
		updated := newRecord("rec-1", "hash-b", 0)
		updated.Source = "upload"
		require.NoError(t, store.Save(ctx, updated))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		got, err := store.Get(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, "hash-b", got.ReportHash)
		assert.Equal(t, "upload", got.Source)
	})

	t.Run("GetByHashReturnsNewest", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, newRecord("old", "same", 0)))
		require.NoError(t, store.Save(ctx, newRecord("new", "same", time.Minute)))
		require.NoError(t, store.Save(ctx, newRecord("other", "different", 2*time.Minute)))

		got, err := store.GetByHash(ctx, "same")
		require.NoError(t, err)
		assert.Equal(t, "new", got.ID)

		_, err = store.GetByHash(ctx, "unknown")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListNewestFirstWithPagination", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i, id := range []string{"a", "b", "c", "d"} {
			require.NoError(t, store.Save(ctx, newRecord(id, "hash-"+id, time.Duration(i)*time.Minute)))
		}

		page, err := store.List(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "d", page[0].ID)
		assert.Equal(t, "c", page[1].ID)

		page, err = store.List(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "b", page[0].ID)
		assert.Equal(t, "a", page[1].ID)

		page, err = store.List(ctx, 2, 10)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.NotNil(t, page)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, newRecord("rec-1", "hash-a", 0)))
		require.NoError(t, store.Delete(ctx, "rec-1"))

		_, err := store.Get(ctx, "rec-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "rec-1"), domain.ErrNotFound)
	})

	t.Run("ExportThenImport", func(t *testing.T) {
		source := newStore(t)
		ctx := context.Background()

		require.NoError(t, source.Save(ctx, newRecord("rec-1", "hash-a", 0)))
		require.NoError(t, source.Save(ctx, newRecord("rec-2", "hash-b", time.Minute)))

		var buf bytes.Buffer
		require.NoError(t, source.ExportJSON(ctx, &buf))
		assert.Contains(t, buf.String(), `"version": "1.0"`)
		assert.Contains(t, buf.String(), `"count": 2`)
		assert.Contains(t, buf.String(), "Diagnosed: Pneumonia")

		target := newStore(t)
		require.NoError(t, target.Save(ctx, newRecord("rec-1", "kept", 0)))

		imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 1, imported)
		assert.Equal(t, 1, skipped)

		existing, err := target.Get(ctx, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, "kept", existing.ReportHash, "existing record should not be overwritten")

		added, err := target.Get(ctx, "rec-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"Pneumonia"}, added.Result.Diseases)
	})

	t.Run("ImportSkipsIncompleteRecords", func(t *testing.T) {
		store := newStore(t)

		jsonData := `{
			"version": "1.0",
			"count": 2,
			"analyses": [
				{"id": "", "report_hash": "x", "result": {"summary": "s"}},
				{"id": "no-result", "report_hash": "y"}
			]
		}`

		imported, skipped, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte(jsonData)))
		require.NoError(t, err)
		assert.Equal(t, 0, imported)
		assert.Equal(t, 2, skipped)
	})

	t.Run("ImportRejectsInvalidJSON", func(t *testing.T) {
		store := newStore(t)

		_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))
		assert.ErrorIs(t, err, ErrInvalidExport)
	})
}
