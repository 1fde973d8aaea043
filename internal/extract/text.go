package extract

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/compliance-io/compliance/internal/ingest"
)

// minTextLength is the minimum amount of extracted text for a document to be
// considered readable. Scanned-image PDFs with no text layer fall below it.
const minTextLength = 50

// Sentinel errors for unstructured extraction failures.
var (
	// ErrInsufficientText is returned when a document yields less text than
	// minTextLength.
	ErrInsufficientText = errors.New("insufficient text extracted from document")

	// ErrLowConfidence is returned when too few labeled fields matched for
	// the extraction to be trusted.
	ErrLowConfidence = errors.New("low-confidence extraction")
)

// minLabeledFields is the acceptance threshold for unstructured extraction:
// the natural key must be present and at least this many labeled fields must
// have matched.
const minLabeledFields = 2

// fieldPattern binds a canonical field name to the label regex that locates
// its value in report text.
type fieldPattern struct {
	field   string
	pattern *regexp.Regexp
}

// Label patterns per document class, mirroring the layout of generated
// compliance reports: "Label: value" lines, with a few loosely anchored
// numeric fields (measurements, downtime).
var (
	inspectionPatterns = []fieldPattern{
		{"site", regexp.MustCompile(`(?im)Site(?: Location)?:\s*(.+?)\s*$`)},
		{"part_number", regexp.MustCompile(`(?im)Part Number:\s*(.+?)\s*$`)},
		{"part_description", regexp.MustCompile(`(?im)Description:\s*(.+?)\s*$`)},
		{"supplier", regexp.MustCompile(`(?im)Supplier:\s*(.+?)\s*$`)},
		{"inspector", regexp.MustCompile(`(?im)Inspector:\s*(.+?)\s*$`)},
		{"inspection_date", regexp.MustCompile(`(?im)Inspection Date:\s*(.+?)\s*$`)},
		{"result", regexp.MustCompile(`(?im)(?:INSPECTION )?RESULT:\s*(.+?)\s*$`)},
		{"measurement_value", regexp.MustCompile(`(?i)(?:Measured Value|Dimension).*?(\d+\.?\d*)`)},
		{"spec_min", regexp.MustCompile(`(?i)Spec Min.*?(\d+\.?\d*)`)},
		{"spec_max", regexp.MustCompile(`(?i)Spec Max.*?(\d+\.?\d*)`)},
	}

	ncrPatterns = []fieldPattern{
		{"site", regexp.MustCompile(`(?im)(?:Site|Location):\s*(.+?)\s*$`)},
		{"supplier", regexp.MustCompile(`(?im)Supplier:\s*(.+?)\s*$`)},
		{"part_number", regexp.MustCompile(`(?im)Part Number:\s*(.+?)\s*$`)},
		{"severity", regexp.MustCompile(`(?im)Severity:\s*(.+?)\s*$`)},
		{"status", regexp.MustCompile(`(?im)Status:\s*(.+?)\s*$`)},
		{"description", regexp.MustCompile(`(?is)Description:\s*(.+?)(?:\n|Initial)`)},
	}

	maintenancePatterns = []fieldPattern{
		{"site", regexp.MustCompile(`(?im)Site:\s*(.+?)\s*$`)},
		{"machine_id", regexp.MustCompile(`(?im)Machine ID:\s*(.+?)\s*$`)},
		{"machine_description", regexp.MustCompile(`(?is)Description:\s*(.+?)(?:\n|Location|Work)`)},
		{"event_type", regexp.MustCompile(`(?im)Type:\s*(.+?)\s*$`)},
		{"event_date", regexp.MustCompile(`(?im)Event Date:\s*(.+?)\s*$`)},
		{"technician", regexp.MustCompile(`(?im)Technician:\s*(.+?)\s*$`)},
		{"downtime_hours", regexp.MustCompile(`(?i)Downtime.*?(\d+\.?\d*)`)},
		{"description", regexp.MustCompile(`(?is)WORK DESCRIPTION\s+(.+?)(?:\n\n|PARTS)`)},
	}
)

// TextExtractor reads unstructured documents: PDF reports (text layer via
// the pdf library) and plain text dumps. Each document yields exactly one
// record whose natural key comes from the filename stem.
type TextExtractor struct {
	now func() time.Time
}

// Ensure interface compliance at compile time.
var _ ingest.Extractor = (*TextExtractor)(nil)

// NewTextExtractor creates an unstructured-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{now: time.Now}
}

// Extract reads the document's text, classifies it (filename prefix first,
// content keywords as fallback) and extracts labeled fields. Document-level
// failure conditions, in order of detection:
//
//   - unreadable bytes (PDF parse failure)
//   - insufficient text (ErrInsufficientText)
//   - unclassifiable content (ErrUnknownDataset)
//   - too few labeled matches (ErrLowConfidence)
func (e *TextExtractor) Extract(src ingest.Source) (ingest.RecordReader, ingest.DatasetKind, error) {
	text, err := readDocumentText(src)
	if err != nil {
		return nil, "", err
	}

	if len(strings.TrimSpace(text)) < minTextLength {
		return nil, "", fmt.Errorf("%w: %d chars", ErrInsufficientText, len(strings.TrimSpace(text)))
	}

	kind, err := classifyText(src.Name(), text)
	if err != nil {
		return nil, "", err
	}

	naturalKey := filenameStem(src.Name())
	fields, matched := extractFields(text, patternsFor(kind))

	if naturalKey == "" || matched < minLabeledFields {
		return nil, "", fmt.Errorf("%w: %d labeled fields matched (need %d)",
			ErrLowConfidence, matched, minLabeledFields)
	}

	e.applyDefaults(kind, naturalKey, text, fields)

	return &singleRecordReader{
		record: ingest.Record{Fields: fields, Position: 1},
	}, kind, nil
}

// applyDefaults fills the natural key and the class defaults generated
// reports may omit. A report with no parsable Description label still
// persists: its description defaults to the report's title line.
func (e *TextExtractor) applyDefaults(kind ingest.DatasetKind, naturalKey, text string, fields map[string]string) {
	setDefault := func(field, value string) {
		if strings.TrimSpace(fields[field]) == "" {
			fields[field] = value
		}
	}

	switch kind {
	case ingest.DatasetInspections:
		setDefault("inspection_id", naturalKey)
		setDefault("result", "FAIL")
	case ingest.DatasetNCRs:
		setDefault("ncr_id", naturalKey)
		setDefault("severity", "MEDIUM")
		setDefault("status", "OPEN")
		setDefault("description", firstContentLine(text))
		setDefault("opened_at", e.now().UTC().Format("2006-01-02 15:04:05"))
	case ingest.DatasetMaintenance:
		setDefault("event_id", naturalKey)
		setDefault("event_type", "Preventive")
	}
}

// firstContentLine returns the first non-blank line of a document's text,
// trimmed. Callers guarantee the text has content (minimum-length guard).
func firstContentLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}

	return ""
}

// singleRecordReader yields one record then io.EOF.
type singleRecordReader struct {
	record ingest.Record
	done   bool
}

func (r *singleRecordReader) Next() (ingest.Record, error) {
	if r.done {
		return ingest.Record{}, io.EOF
	}

	r.done = true

	return r.record, nil
}

// Close is a no-op: the source was fully read and released during Extract.
func (r *singleRecordReader) Close() error { return nil }

// readDocumentText returns a document's text content: the text layer for
// PDF bytes, the raw bytes otherwise.
func readDocumentText(src ingest.Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}

	defer func() {
		_ = rc.Close()
	}()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}

	if isPDF(content) {
		text, err := pdfPlainText(content)
		if err != nil {
			return "", fmt.Errorf("failed to extract PDF text: %w", err)
		}

		return text, nil
	}

	return string(content), nil
}

// classifyText determines the dataset kind: filename prefix first (ncr/ins/
// mnt naming convention for report files), then content keywords.
func classifyText(filename, text string) (ingest.DatasetKind, error) {
	name := strings.ToLower(filename)

	switch {
	case strings.HasPrefix(name, "ncr"):
		return ingest.DatasetNCRs, nil
	case strings.HasPrefix(name, "ins"):
		return ingest.DatasetInspections, nil
	case strings.HasPrefix(name, "mnt"):
		return ingest.DatasetMaintenance, nil
	}

	textUpper := strings.ToUpper(text)
	head := textUpper

	if len(head) > 500 {
		head = head[:500]
	}

	switch {
	case strings.Contains(textUpper, "NON-CONFORMANCE"), strings.Contains(head, "NCR"):
		return ingest.DatasetNCRs, nil
	case strings.Contains(textUpper, "INSPECTION CERTIFICATE"):
		return ingest.DatasetInspections, nil
	case strings.Contains(textUpper, "MAINTENANCE WORK ORDER"), strings.Contains(textUpper, "WORK ORDER"):
		return ingest.DatasetMaintenance, nil
	default:
		return "", fmt.Errorf("%w: no filename prefix or content keyword matched", ErrUnknownDataset)
	}
}

// extractFields runs each pattern over the text, collecting first-group
// matches. Returns the field map and how many patterns matched.
func extractFields(text string, patterns []fieldPattern) (map[string]string, int) {
	fields := make(map[string]string, len(patterns))
	matched := 0

	for _, fp := range patterns {
		m := fp.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		value := strings.TrimSpace(m[1])
		if value == "" {
			continue
		}

		fields[fp.field] = value
		matched++
	}

	return fields, matched
}

func patternsFor(kind ingest.DatasetKind) []fieldPattern {
	switch kind {
	case ingest.DatasetInspections:
		return inspectionPatterns
	case ingest.DatasetNCRs:
		return ncrPatterns
	default:
		return maintenancePatterns
	}
}

// filenameStem strips the extension: NCR-2024-001.pdf -> NCR-2024-001.
func filenameStem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
