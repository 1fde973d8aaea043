// Package ingest defines the storage interfaces the pipeline needs for
// persistence, following the Dependency Inversion Principle. Concrete
// implementations (PostgreSQL, in-memory) live in internal/storage.
package ingest

import (
	"context"
	"errors"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateChecksum is returned when inserting a document whose
	// checksum already exists. The registry treats this as a lost race and
	// retries as a lookup.
	ErrDuplicateChecksum = errors.New("document checksum already registered")
)

type (
	// DocumentStore persists Document rows. The checksum uniqueness
	// constraint is the serialization point for concurrent registration:
	// two workers inserting the same checksum must end up observing the
	// same Document identity, with the loser receiving ErrDuplicateChecksum.
	DocumentStore interface {
		// FindByChecksum returns the document with the given content hash,
		// or ErrNotFound.
		FindByChecksum(ctx context.Context, checksum string) (*Document, error)

		// Insert stores a new document and fills in its generated identity.
		// Returns ErrDuplicateChecksum when the checksum is already
		// registered (including a concurrent insert that committed first).
		Insert(ctx context.Context, doc *Document) error
	}

	// RunStore persists the append-only ProcessingRun audit log.
	RunStore interface {
		// Insert records a run at stage start (status RUNNING or a terminal
		// status for single-shot stages like RECEIVE).
		Insert(ctx context.Context, run *ProcessingRun) error

		// Finalize writes the terminal status, counters, error summary and
		// finish time of a run exactly once. Finalizing an already-terminal
		// run is an error: finalized runs are immutable audit records.
		Finalize(ctx context.Context, run *ProcessingRun) error
	}

	// RecordStore opens transactional scopes over the domain record tables.
	// Each document's PERSIST stage runs inside a single RecordTx so a fatal
	// mid-batch failure rolls back that document's partial inserts cleanly.
	RecordStore interface {
		Begin(ctx context.Context) (RecordTx, error)
	}

	// RecordTx is one document's persistence transaction.
	//
	// Lookups see rows inserted earlier in the same transaction, which is
	// what lets an NCR resolve a back reference to an inspection from an
	// earlier row of the same file.
	//
	// Insert* returns inserted=false without error when the natural key
	// already exists (uniqueness absorbed, row counted as already ingested).
	// Any other insert failure is contained to the row: the transaction
	// remains usable for subsequent rows.
	RecordTx interface {
		FindInspectionByKey(ctx context.Context, inspectionID string) (int64, error)
		InsertInspection(ctx context.Context, rec *Inspection) (bool, error)

		FindNCRByKey(ctx context.Context, ncrID string) (int64, error)
		InsertNCR(ctx context.Context, rec *NCR) (bool, error)

		FindMaintenanceEventByKey(ctx context.Context, eventID string) (int64, error)
		InsertMaintenanceEvent(ctx context.Context, rec *MaintenanceEvent) (bool, error)

		Commit() error
		Rollback() error
	}
)
