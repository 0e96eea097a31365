// Package ingestion turns manually entered text and uploaded documents into the
// single report string the analysis engine consumes.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// UnsupportedFormatNotice replaces the content of documents whose format cannot be read.
const UnsupportedFormatNotice = "Unable to extract specific medical data from this file format"

// documentSeparator precedes each document's text in the combined report.
const documentSeparator = "\n\n"

// Document is an uploaded file.
type Document struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// TextExtractor produces the text content of a document.
type TextExtractor interface {
	Supports(doc Document) bool
	Extract(ctx context.Context, doc Document) (string, error)
}

// PlainTextExtractor reads text/plain and .txt documents verbatim.
type PlainTextExtractor struct {
	maxBytes int64
}

// NewPlainTextExtractor creates an extractor that reads at most maxBytes per document.
// A non-positive maxBytes means no limit.
func NewPlainTextExtractor(maxBytes int64) *PlainTextExtractor {
	return &PlainTextExtractor{maxBytes: maxBytes}
}

// Supports reports whether doc is plain text by media type or extension.
func (e *PlainTextExtractor) Supports(doc Document) bool {
	if mediaType, _, err := mime.ParseMediaType(doc.ContentType); err == nil && mediaType == "text/plain" {
		return true
	}
	return strings.EqualFold(filepath.Ext(doc.Name), ".txt")
}

// Extract reads the document, failing when it exceeds the size limit or is not UTF-8.
func (e *PlainTextExtractor) Extract(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader := doc.Reader
	if e.maxBytes > 0 {
		reader = io.LimitReader(doc.Reader, e.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", doc.Name, err)
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", doc.Name, e.maxBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", doc.Name)
	}
	return string(data), nil
}

// Collector concatenates manual text with the text of each uploaded document.
type Collector struct {
	extractors []TextExtractor
	logger     *logrus.Logger
}

// NewCollector creates a collector trying extractors in order for each document.
func NewCollector(logger *logrus.Logger, extractors ...TextExtractor) *Collector {
	return &Collector{
		extractors: extractors,
		logger:     logger,
	}
}

// Collect returns manualText followed by "\n\n" and the text of each document.
// Documents no extractor supports contribute UnsupportedFormatNotice.
func (c *Collector) Collect(ctx context.Context, manualText string, docs ...Document) (string, error) {
	var b strings.Builder
	b.WriteString(manualText)

	for _, doc := range docs {
		text, err := c.extract(ctx, doc)
		if err != nil {
			return "", err
		}
		b.WriteString(documentSeparator)
		b.WriteString(text)
	}

	return b.String(), nil
}

func (c *Collector) extract(ctx context.Context, doc Document) (string, error) {
	for _, extractor := range c.extractors {
		if !extractor.Supports(doc) {
			continue
		}
		text, err := extractor.Extract(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("extracting document text: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"document":     doc.Name,
			"content_type": doc.ContentType,
			"bytes":        len(text),
		}).Debug("Extracted document text")
		return text, nil
	}

	c.logger.WithFields(logrus.Fields{
		"document":     doc.Name,
		"content_type": doc.ContentType,
	}).Warn("Unsupported document format")
	return UnsupportedFormatNotice, nil
}
