// Package ingest provides the compliance document ingestion pipeline domain
// models and orchestration.
//
// A raw document flows Registry → Extractor → Normalizer → Validator →
// persistence, with every stage outcome recorded as an immutable
// ProcessingRun audit record. The package defines the storage interfaces it
// needs (Dependency Inversion); concrete PostgreSQL and in-memory
// implementations live in internal/storage.
package ingest

import (
	"io"
	"strings"
	"time"
)

type (
	// SourceKind identifies how a document's raw content is structured.
	SourceKind string

	// Stage is one phase of the ingestion pipeline. Stages are strictly
	// ordered: RECEIVE → PARSE → NORMALIZE → VALIDATE → PERSIST. The bulk
	// data stages (NORMALIZE, VALIDATE, PERSIST) are audited together as a
	// single PERSIST-stage run whose counters accumulate row by row.
	Stage string

	// RunStatus is the outcome of a ProcessingRun.
	RunStatus string

	// DatasetKind identifies which domain entity a document's rows describe.
	DatasetKind string

	// Document is one ingested raw file/blob, identified by content checksum.
	//
	// The checksum is unique: re-ingesting identical bytes resolves to the
	// same Document identity rather than creating a duplicate. Documents are
	// created on first sighting of a checksum and never mutated or deleted
	// by the pipeline.
	Document struct {
		ID         int64
		Source     SourceKind
		Filename   string
		Path       string
		Checksum   string // SHA-256 hex digest of the full byte stream
		SizeBytes  int64
		ReceivedAt time.Time
		Metadata   map[string]string
	}

	// ProcessingRun is one audit record of a pipeline stage's outcome for a
	// document. Created RUNNING at stage start, finalized exactly once with
	// status, counters and finish time — never updated afterwards.
	//
	// DocumentID is nil when the stage failed before a document existed
	// (e.g. registration itself failed).
	//
	// Invariant: RowsSucceeded + RowsFailed ≤ RowsAttempted.
	ProcessingRun struct {
		ID            string // client-generated UUID
		DocumentID    *int64
		Stage         Stage
		Status        RunStatus
		ErrorSummary  string // bounded-length, first-N-errors digest
		RowsAttempted int
		RowsSucceeded int
		RowsFailed    int
		StartedAt     time.Time
		FinishedAt    *time.Time
		Metadata      map[string]string
	}

	// Record is one semi-structured field mapping produced by an extractor:
	// raw field name → raw text value, plus a 1-based position hint (the data
	// row number for tabular sources, always 1 for unstructured sources) used
	// in error messages.
	//
	// Records deliberately stay string→string until normalization; all code
	// downstream of the Normalizer works against the closed, typed domain
	// structs instead.
	Record struct {
		Fields   map[string]string
		Position int
	}

	// Source supplies a document's raw bytes. Open may be called more than
	// once (checksum pass, then extraction pass), so implementations must be
	// restartable.
	Source interface {
		// Open returns a fresh reader over the full raw content.
		Open() (io.ReadCloser, error)
		// Name is the document's filename, used for dataset-kind routing.
		Name() string
		// Path is the storage path recorded on the Document row.
		Path() string
		// Kind declares how the content is structured.
		Kind() SourceKind
	}

	// RecordReader is a lazy, finite sequence of extracted records.
	// Next returns io.EOF after the last record. A row that could not be
	// decoded returns a non-nil error wrapping ErrBadRow together with its
	// position; the reader remains usable for subsequent rows.
	//
	// Close releases the underlying source. The pipeline calls it whether
	// or not the sequence was read to io.EOF, and it must be safe to call
	// after an exhausted read.
	RecordReader interface {
		Next() (Record, error)
		Close() error
	}

	// Extractor turns a raw document into a record sequence. Extraction of
	// the same bytes yields the same sequence (restartable). The returned
	// DatasetKind routes records to the matching domain builder.
	Extractor interface {
		Extract(src Source) (RecordReader, DatasetKind, error)
	}
)

const (
	// SourceTabular marks row-oriented documents (CSV).
	SourceTabular SourceKind = "TABULAR"

	// SourceUnstructured marks free-text documents (PDF reports, text dumps).
	SourceUnstructured SourceKind = "UNSTRUCTURED"

	// SourceManual marks records entered by hand through an operator tool.
	SourceManual SourceKind = "MANUAL"
)

const (
	// StageReceive covers checksum computation and document registration.
	StageReceive Stage = "RECEIVE"

	// StageParse covers decoding, classification and extractor setup.
	StageParse Stage = "PARSE"

	// StageNormalize converts raw fields to typed values (audited under PERSIST).
	StageNormalize Stage = "NORMALIZE"

	// StageValidate checks required fields (audited under PERSIST).
	StageValidate Stage = "VALIDATE"

	// StagePersist covers the per-row normalize/validate/insert loop.
	StagePersist Stage = "PERSIST"
)

const (
	// RunPending marks a run created but not yet started.
	RunPending RunStatus = "PENDING"

	// RunRunning marks a stage in progress.
	RunRunning RunStatus = "RUNNING"

	// RunSuccess marks a stage where every attempted row succeeded.
	RunSuccess RunStatus = "SUCCESS"

	// RunFailed marks a stage where no attempted row succeeded, or a
	// whole-document failure before any row was processed.
	RunFailed RunStatus = "FAILED"

	// RunPartial marks a stage where some rows succeeded and some failed.
	RunPartial RunStatus = "PARTIAL"
)

const (
	// DatasetInspections routes rows to the inspections table.
	DatasetInspections DatasetKind = "inspections"

	// DatasetNCRs routes rows to the non-conformance reports table.
	DatasetNCRs DatasetKind = "ncrs"

	// DatasetMaintenance routes rows to the maintenance events table.
	DatasetMaintenance DatasetKind = "maintenance_events"
)

// IsValid checks if the SourceKind is a known value.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceTabular, SourceUnstructured, SourceManual:
		return true
	default:
		return false
	}
}

// IsValid checks if the Stage is a known pipeline stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageReceive, StageParse, StageNormalize, StageValidate, StagePersist:
		return true
	default:
		return false
	}
}

// IsValid checks if the RunStatus is a known value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunPending, RunRunning, RunSuccess, RunFailed, RunPartial:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once a run has been finalized. Terminal runs are
// immutable audit records.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunPartial
}

// IsValid checks if the DatasetKind is a known value.
func (k DatasetKind) IsValid() bool {
	switch k {
	case DatasetInspections, DatasetNCRs, DatasetMaintenance:
		return true
	default:
		return false
	}
}

// Field returns the named raw field, trimmed. Missing fields return "".
func (r Record) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}
