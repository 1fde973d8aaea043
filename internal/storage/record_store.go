package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/compliance-io/compliance/internal/ingest"
)

// PersistentRecordStore implements ingest.RecordStore with a PostgreSQL
// backend. Each document's PERSIST stage runs inside one transaction; the
// per-row savepoint protocol below keeps a single bad row from poisoning
// the rest of the batch.
type PersistentRecordStore struct {
	conn *Connection
}

// Ensure interface compliance at compile time.
var (
	_ ingest.RecordStore = (*PersistentRecordStore)(nil)
	_ ingest.RecordTx    = (*recordTx)(nil)
)

// NewPersistentRecordStore creates a record store backed by the given
// connection pool.
func NewPersistentRecordStore(conn *Connection) *PersistentRecordStore {
	return &PersistentRecordStore{conn: conn}
}

// Begin opens one document's persistence transaction.
func (s *PersistentRecordStore) Begin(ctx context.Context) (ingest.RecordTx, error) {
	tx, err := s.conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &recordTx{tx: tx}, nil
}

// recordTx wraps *sql.Tx with the row containment protocol.
//
// PostgreSQL aborts the whole transaction on any statement error, which
// would turn one bad row into a whole-document failure. Every insert
// therefore runs between SAVEPOINT and RELEASE; on error the savepoint is
// rolled back and the transaction stays usable for subsequent rows.
type recordTx struct {
	tx   *sql.Tx
	done bool
}

// FindInspectionByKey returns the identity of the inspection with the given
// natural key, or ingest.ErrNotFound. Sees rows inserted earlier in this
// transaction.
func (t *recordTx) FindInspectionByKey(ctx context.Context, inspectionID string) (int64, error) {
	return t.findByKey(ctx, "SELECT id FROM inspections WHERE inspection_id = $1", inspectionID)
}

// InsertInspection stores one inspection. Returns inserted=false without
// error when the natural key already exists.
func (t *recordTx) InsertInspection(ctx context.Context, rec *ingest.Inspection) (bool, error) {
	query := `
		INSERT INTO inspections (
			inspection_id, document_id, site, production_line, supplier,
			part_number, part_description, inspection_date, inspector, result,
			measurement_value, measurement_unit, spec_min, spec_max, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (inspection_id) DO NOTHING
	`

	return t.containedInsert(ctx, query,
		rec.InspectionID,
		rec.DocumentID,
		rec.Site,
		rec.ProductionLine,
		rec.Supplier,
		rec.PartNumber,
		rec.PartDescription,
		rec.InspectionDate,
		rec.Inspector,
		rec.Result,
		nullDecimal(rec.MeasurementValue),
		rec.MeasurementUnit,
		nullDecimal(rec.SpecMin),
		nullDecimal(rec.SpecMax),
		rec.Notes,
	)
}

// FindNCRByKey returns the identity of the NCR with the given natural key,
// or ingest.ErrNotFound.
func (t *recordTx) FindNCRByKey(ctx context.Context, ncrID string) (int64, error) {
	return t.findByKey(ctx, "SELECT id FROM ncrs WHERE ncr_id = $1", ncrID)
}

// InsertNCR stores one non-conformance report. Returns inserted=false
// without error when the natural key already exists.
func (t *recordTx) InsertNCR(ctx context.Context, rec *ingest.NCR) (bool, error) {
	query := `
		INSERT INTO ncrs (
			ncr_id, document_id, linked_inspection_id, site, supplier,
			part_number, part_description, severity, status, description,
			root_cause, corrective_action, opened_at, reviewed_at, closed_at, days_open
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (ncr_id) DO NOTHING
	`

	return t.containedInsert(ctx, query,
		rec.NCRID,
		rec.DocumentID,
		rec.LinkedInspectionID,
		rec.Site,
		rec.Supplier,
		rec.PartNumber,
		rec.PartDescription,
		rec.Severity,
		rec.Status,
		rec.Description,
		rec.RootCause,
		rec.CorrectiveAction,
		rec.OpenedAt,
		rec.ReviewedAt,
		rec.ClosedAt,
		rec.DaysOpen,
	)
}

// FindMaintenanceEventByKey returns the identity of the maintenance event
// with the given natural key, or ingest.ErrNotFound.
func (t *recordTx) FindMaintenanceEventByKey(ctx context.Context, eventID string) (int64, error) {
	return t.findByKey(ctx, "SELECT id FROM maintenance_events WHERE event_id = $1", eventID)
}

// InsertMaintenanceEvent stores one maintenance event. Returns
// inserted=false without error when the natural key already exists.
func (t *recordTx) InsertMaintenanceEvent(ctx context.Context, rec *ingest.MaintenanceEvent) (bool, error) {
	query := `
		INSERT INTO maintenance_events (
			event_id, document_id, site, machine_id, machine_description,
			event_type, event_date, downtime_hours, technician, description,
			parts_replaced, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING
	`

	return t.containedInsert(ctx, query,
		rec.EventID,
		rec.DocumentID,
		rec.Site,
		rec.MachineID,
		rec.MachineDescription,
		rec.EventType,
		rec.EventDate,
		nullDecimal(rec.DowntimeHours),
		rec.Technician,
		rec.Description,
		rec.PartsReplaced,
		rec.Notes,
	)
}

// Commit makes the document's inserts durable.
func (t *recordTx) Commit() error {
	t.done = true

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Rollback discards the transaction. Safe to call after Commit (no-op).
func (t *recordTx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (t *recordTx) findByKey(ctx context.Context, query, key string) (int64, error) {
	var id int64

	err := t.tx.QueryRowContext(ctx, query, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ingest.ErrNotFound, key)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to query by natural key: %w", err)
	}

	return id, nil
}

// containedInsert runs one insert inside a savepoint so a failure aborts
// only this row, not the transaction. ON CONFLICT DO NOTHING reports an
// existing natural key as zero rows affected.
func (t *recordTx) containedInsert(ctx context.Context, query string, args ...any) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT row_insert"); err != nil {
		return false, fmt.Errorf("failed to create savepoint: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT row_insert"); rbErr != nil {
			return false, fmt.Errorf("failed to rollback savepoint after insert error: %w", errors.Join(err, rbErr))
		}

		return false, fmt.Errorf("insert rejected: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT row_insert"); err != nil {
		return false, fmt.Errorf("failed to release savepoint: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// nullDecimal adapts an optional decimal for the SQL driver.
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
