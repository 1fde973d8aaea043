// Package extract turns raw documents into record sequences for the
// ingestion pipeline: a CSV extractor for tabular sources and a labeled-text
// extractor for unstructured sources (PDF reports, text dumps).
//
// Both extractors classify the dataset kind themselves (filename first,
// content fallback for unstructured) and surface document-level failures as
// errors from Extract; per-row CSV decode failures come back from the record
// reader wrapping ingest.ErrBadRow so one bad line never aborts a file.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/compliance-io/compliance/internal/ingest"
)

// Sentinel errors for document-level extraction failures.
var (
	// ErrUnknownDataset is returned when neither filename nor content
	// identifies which domain entity a document describes.
	ErrUnknownDataset = errors.New("could not determine dataset kind")

	// ErrEmptyDocument is returned for documents with no header row.
	ErrEmptyDocument = errors.New("document has no header row")
)

// TabularExtractor reads CSV documents. The header row supplies field names
// (lowercased, spaces folded to underscores) so files with reordered or
// extra columns extract cleanly.
type TabularExtractor struct{}

// Ensure interface compliance at compile time.
var _ ingest.Extractor = (*TabularExtractor)(nil)

// NewTabularExtractor creates a CSV extractor.
func NewTabularExtractor() *TabularExtractor {
	return &TabularExtractor{}
}

// Extract opens the document, reads the header and classifies the dataset
// kind from the filename. The returned reader decodes rows lazily.
func (e *TabularExtractor) Extract(src ingest.Source) (ingest.RecordReader, ingest.DatasetKind, error) {
	kind, err := datasetKindFromFilename(src.Name())
	if err != nil {
		return nil, "", err
	}

	rc, err := src.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open source: %w", err)
	}

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1 // row width checked per record against the header
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		_ = rc.Close()

		return nil, "", ErrEmptyDocument
	}

	if err != nil {
		_ = rc.Close()

		return nil, "", fmt.Errorf("failed to read header row: %w", err)
	}

	fields := make([]string, len(header))
	for i, name := range header {
		fields[i] = canonicalFieldName(name)
	}

	return &csvRecordReader{
		closer: rc,
		reader: reader,
		fields: fields,
	}, kind, nil
}

// csvRecordReader decodes one CSV row per Next call.
type csvRecordReader struct {
	closer   io.Closer
	reader   *csv.Reader
	fields   []string
	position int
	closed   bool
}

// Next returns the next data row as a Record. A malformed line returns an
// error wrapping ingest.ErrBadRow; the reader stays usable. io.EOF ends the
// sequence and closes the underlying source.
func (r *csvRecordReader) Next() (ingest.Record, error) {
	row, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		_ = r.Close()

		return ingest.Record{}, io.EOF
	}

	r.position++

	if err != nil {
		return ingest.Record{}, fmt.Errorf("row %d: %w: %s", r.position, ingest.ErrBadRow, err)
	}

	if len(row) != len(r.fields) {
		return ingest.Record{}, fmt.Errorf(
			"row %d: %w: has %d columns, header has %d",
			r.position, ingest.ErrBadRow, len(row), len(r.fields),
		)
	}

	fields := make(map[string]string, len(r.fields))
	for i, name := range r.fields {
		fields[name] = row[i]
	}

	return ingest.Record{Fields: fields, Position: r.position}, nil
}

// Close releases the underlying source. Idempotent: Next already closes on
// io.EOF, and the pipeline closes again on its error paths.
func (r *csvRecordReader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	return r.closer.Close()
}

// datasetKindFromFilename routes a tabular document by filename substring.
func datasetKindFromFilename(filename string) (ingest.DatasetKind, error) {
	name := strings.ToLower(filename)

	switch {
	case strings.Contains(name, "inspection"):
		return ingest.DatasetInspections, nil
	case strings.Contains(name, "ncr"):
		return ingest.DatasetNCRs, nil
	case strings.Contains(name, "maintenance"), strings.Contains(name, "maint"):
		return ingest.DatasetMaintenance, nil
	default:
		return "", fmt.Errorf("%w: filename %q", ErrUnknownDataset, filename)
	}
}

// canonicalFieldName folds a header cell to the canonical field naming:
// trimmed, lowercased, spaces and dashes to underscores.
func canonicalFieldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	return name
}
