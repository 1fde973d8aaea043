package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for pipeline-level failures.
var (
	// ErrBadRow wraps a row that could not be decoded by an extractor. The
	// row is counted as failed; extraction continues with the next row.
	ErrBadRow = errors.New("bad row")

	// ErrNoExtractor is returned when no extractor is registered for a
	// document's source kind.
	ErrNoExtractor = errors.New("no extractor for source kind")
)

type (
	// Pipeline drives a document through Registry → Extractor → Normalizer →
	// Validator → persistence, aggregating per-row outcomes and recording
	// every stage boundary through the RunTracker. It is the only component
	// with cross-cutting control flow.
	//
	// One document is processed end to end by a single caller; separate
	// documents may run on parallel goroutines, since the storage layer is
	// the only shared mutable state. Within a document, rows are processed
	// strictly in source order: later rows may reference natural keys
	// inserted by earlier rows of the same file.
	Pipeline struct {
		registry   *Registry
		tracker    *RunTracker
		records    RecordStore
		extractors map[SourceKind]Extractor
		logger     *slog.Logger
	}

	// Outcome is the caller-visible result of ingesting one document:
	// stage-by-stage audit statuses plus the aggregate row counters of the
	// PERSIST stage.
	Outcome struct {
		DocumentID    *int64
		NewDocument   bool
		Kind          DatasetKind
		Stages        []StageResult
		RowsAttempted int
		RowsSucceeded int
		RowsFailed    int
	}

	// StageResult is one stage's recorded outcome.
	StageResult struct {
		Stage  Stage
		Status RunStatus
		Error  string
	}
)

// NewPipeline wires the orchestrator. The extractors map routes documents by
// their declared source kind.
func NewPipeline(
	registry *Registry,
	tracker *RunTracker,
	records RecordStore,
	extractors map[SourceKind]Extractor,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		registry:   registry,
		tracker:    tracker,
		records:    records,
		extractors: extractors,
		logger:     logger,
	}
}

// Ingest processes one document end to end.
//
// Error taxonomy (see the stage results on the returned Outcome):
//   - Row-level problems (validation, normalization, insert constraint) are
//     counted and summarized; they never abort the document.
//   - Document-level failures (unreadable bytes, unclassifiable content,
//     commit failure) mark the failing stage FAILED with zero or partial
//     counters; Ingest returns the outcome with a nil error so a batch
//     driver simply moves on to the next document.
//   - A non-nil error is reserved for audit/storage infrastructure failures
//     where not even the failure itself could be recorded.
//
// Re-running Ingest over unchanged bytes is safe but not silent: the
// document resolves to its existing identity, every row is skipped by the
// natural-key idempotency check (counted as succeeded), and a fresh set of
// audit runs is appended.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (*Outcome, error) {
	outcome := &Outcome{}

	// RECEIVE: checksum + registration, committed atomically before any
	// further stage work.
	doc, isNew, err := p.registry.Register(ctx, src)
	if err != nil {
		if _, auditErr := p.tracker.Complete(ctx, nil, StageReceive, RunFailed, err.Error()); auditErr != nil {
			return nil, fmt.Errorf("registration failed and could not be audited: %w", errors.Join(err, auditErr))
		}

		outcome.Stages = append(outcome.Stages, StageResult{Stage: StageReceive, Status: RunFailed, Error: err.Error()})

		return outcome, nil
	}

	outcome.DocumentID = &doc.ID
	outcome.NewDocument = isNew

	if _, err := p.tracker.Complete(ctx, &doc.ID, StageReceive, RunSuccess, ""); err != nil {
		return nil, err
	}

	outcome.Stages = append(outcome.Stages, StageResult{Stage: StageReceive, Status: RunSuccess})

	// PARSE: decode, classify, construct the record sequence. Failures here
	// are fatal to the document with zero rows attempted.
	parseRun, err := p.tracker.Begin(ctx, &doc.ID, StageParse)
	if err != nil {
		return nil, err
	}

	reader, kind, extractErr := p.extract(src)
	if extractErr != nil {
		if err := p.tracker.Finish(ctx, parseRun, RunFailed, 0, 0, 0, extractErr.Error()); err != nil {
			return nil, err
		}

		outcome.Stages = append(outcome.Stages, StageResult{Stage: StageParse, Status: RunFailed, Error: extractErr.Error()})

		p.logger.Warn("document failed to parse",
			slog.String("filename", src.Name()),
			slog.Int64("document_id", doc.ID),
			slog.String("error", extractErr.Error()),
		)

		return outcome, nil
	}

	outcome.Kind = kind

	// The reader's own EOF handling releases the source on a full read;
	// this covers early exits (transaction or audit failures mid-sequence).
	defer func() { _ = reader.Close() }()

	if err := p.tracker.Finish(ctx, parseRun, RunSuccess, 0, 0, 0, ""); err != nil {
		return nil, err
	}

	outcome.Stages = append(outcome.Stages, StageResult{Stage: StageParse, Status: RunSuccess})

	// NORMALIZE + VALIDATE + PERSIST: tracked together as a single
	// PERSIST-stage run whose counters accumulate row by row.
	persistRun, err := p.tracker.Begin(ctx, &doc.ID, StagePersist)
	if err != nil {
		return nil, err
	}

	attempted, succeeded, failed, digest, rowErr := p.persistRows(ctx, doc, kind, reader)
	if rowErr != nil {
		// Whole-stage failure (transaction could not be opened or
		// committed): partial inserts rolled back, counters preserved for
		// the audit record.
		if err := p.tracker.Finish(ctx, persistRun, RunFailed, attempted, 0, attempted, rowErr.Error()); err != nil {
			return nil, err
		}

		outcome.RowsAttempted = attempted
		outcome.RowsFailed = attempted
		outcome.Stages = append(outcome.Stages, StageResult{Stage: StagePersist, Status: RunFailed, Error: rowErr.Error()})

		return outcome, nil
	}

	status := persistStatus(attempted, succeeded, failed)

	if err := p.tracker.Finish(ctx, persistRun, status, attempted, succeeded, failed, digest); err != nil {
		return nil, err
	}

	outcome.RowsAttempted = attempted
	outcome.RowsSucceeded = succeeded
	outcome.RowsFailed = failed
	outcome.Stages = append(outcome.Stages, StageResult{Stage: StagePersist, Status: status, Error: digest})

	p.logger.Info("document ingested",
		slog.String("filename", src.Name()),
		slog.Int64("document_id", doc.ID),
		slog.String("dataset", string(kind)),
		slog.String("status", string(status)),
		slog.Int("rows_attempted", attempted),
		slog.Int("rows_succeeded", succeeded),
		slog.Int("rows_failed", failed),
	)

	return outcome, nil
}

// extract resolves the extractor for the source kind and opens the sequence.
func (p *Pipeline) extract(src Source) (RecordReader, DatasetKind, error) {
	extractor, ok := p.extractors[src.Kind()]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNoExtractor, src.Kind())
	}

	return extractor.Extract(src)
}

// persistRows runs the per-row algorithm over the whole record sequence
// inside one transaction:
//
//  1. validate required fields — problems fail the row
//  2. normalize all fields — any condition fails the row
//  3. natural-key idempotency check — already-seen keys count as succeeded
//  4. resolve soft back references — unresolved stores null, never fails
//  5. insert — per-row constraint failures are contained by the store
//
// Deliberate row failures (steps 1–2) never reached an insert and are simply
// skipped, not rolled back. A non-nil error means the whole stage failed and
// the transaction was rolled back.
func (p *Pipeline) persistRows(
	ctx context.Context,
	doc *Document,
	kind DatasetKind,
	reader RecordReader,
) (attempted, succeeded, failed int, digestSummary string, err error) {
	tx, err := p.records.Begin(ctx)
	if err != nil {
		return 0, 0, 0, "", fmt.Errorf("begin persist transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	digest := NewErrorDigest(0, 0)
	required := RequiredFields(kind)

	for {
		rec, readErr := reader.Next()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			if errors.Is(readErr, ErrBadRow) {
				attempted++
				failed++

				digest.Add(readErr.Error())

				continue
			}

			// The sequence itself broke; abandon the document.
			return attempted, 0, attempted, "", fmt.Errorf("read record: %w", readErr)
		}

		attempted++

		// 1. Required fields.
		if problems := Validate(rec, required); len(problems) > 0 {
			failed++

			digest.Add(joinProblems(problems))

			continue
		}

		// 2–5. Normalize, dedupe, resolve, insert.
		ok, reason, rowErr := p.persistRow(ctx, tx, doc, kind, rec)
		if rowErr != nil {
			return attempted, succeeded, failed, "", rowErr
		}

		if ok {
			succeeded++
		} else {
			failed++

			digest.Add(reason)
		}
	}

	if err := tx.Commit(); err != nil {
		return attempted, 0, attempted, "", fmt.Errorf("commit persist transaction: %w", err)
	}

	return attempted, succeeded, failed, digest.String(), nil
}

// persistRow handles one record. Returns (ok, failureReason, error); error is
// reserved for transaction-fatal conditions.
func (p *Pipeline) persistRow(
	ctx context.Context,
	tx RecordTx,
	doc *Document,
	kind DatasetKind,
	rec Record,
) (bool, string, error) {
	switch kind {
	case DatasetInspections:
		return p.persistInspection(ctx, tx, doc, rec)
	case DatasetNCRs:
		return p.persistNCR(ctx, tx, doc, rec)
	case DatasetMaintenance:
		return p.persistMaintenance(ctx, tx, doc, rec)
	default:
		return false, "", fmt.Errorf("unsupported dataset kind %q", kind)
	}
}

func (p *Pipeline) persistInspection(ctx context.Context, tx RecordTx, doc *Document, rec Record) (bool, string, error) {
	insp, err := BuildInspection(rec, doc.ID)
	if err != nil {
		return false, rowReason(rec, err), nil
	}

	// Row-level idempotency: scoped to the business entity, not this document.
	if _, err := tx.FindInspectionByKey(ctx, insp.InspectionID); err == nil {
		return true, "", nil // already ingested
	} else if !errors.Is(err, ErrNotFound) {
		return false, "", fmt.Errorf("inspection lookup: %w", err)
	}

	return p.insertRow(rec, func() (bool, error) { return tx.InsertInspection(ctx, insp) })
}

func (p *Pipeline) persistNCR(ctx context.Context, tx RecordTx, doc *Document, rec Record) (bool, string, error) {
	ncr, linkedRef, err := BuildNCR(rec, doc.ID)
	if err != nil {
		return false, rowReason(rec, err), nil
	}

	if _, err := tx.FindNCRByKey(ctx, ncr.NCRID); err == nil {
		return true, "", nil // already ingested
	} else if !errors.Is(err, ErrNotFound) {
		return false, "", fmt.Errorf("ncr lookup: %w", err)
	}

	// Soft back reference: look up the inspection by natural key. A dangling
	// forward reference stores null — expected ordering artifact, not an error.
	if linkedRef != "" {
		id, err := tx.FindInspectionByKey(ctx, linkedRef)

		switch {
		case err == nil:
			ncr.LinkedInspectionID = &id
		case errors.Is(err, ErrNotFound):
			// leave nil
		default:
			return false, "", fmt.Errorf("linked inspection lookup: %w", err)
		}
	}

	return p.insertRow(rec, func() (bool, error) { return tx.InsertNCR(ctx, ncr) })
}

func (p *Pipeline) persistMaintenance(ctx context.Context, tx RecordTx, doc *Document, rec Record) (bool, string, error) {
	event, err := BuildMaintenanceEvent(rec, doc.ID)
	if err != nil {
		return false, rowReason(rec, err), nil
	}

	if _, err := tx.FindMaintenanceEventByKey(ctx, event.EventID); err == nil {
		return true, "", nil // already ingested
	} else if !errors.Is(err, ErrNotFound) {
		return false, "", fmt.Errorf("maintenance event lookup: %w", err)
	}

	return p.insertRow(rec, func() (bool, error) { return tx.InsertMaintenanceEvent(ctx, event) })
}

// insertRow executes a contained insert. A duplicate natural key reported by
// the store (inserted=false) counts as succeeded — a concurrent writer beat
// us to the same business record. A contained insert failure (constraint
// violation absorbed by the store's savepoint) fails only this row.
func (p *Pipeline) insertRow(rec Record, insert func() (bool, error)) (bool, string, error) {
	_, err := insert()
	if err != nil {
		return false, fmt.Sprintf("row %d: insert failed: %s", rec.Position, err), nil
	}

	return true, "", nil
}

// persistStatus derives the stage status from row counters: SUCCESS when no
// row failed, PARTIAL on a mix, FAILED when nothing succeeded out of at
// least one attempt.
func persistStatus(attempted, succeeded, failed int) RunStatus {
	switch {
	case failed == 0:
		return RunSuccess
	case succeeded > 0:
		return RunPartial
	case attempted > 0:
		return RunFailed
	default:
		return RunSuccess
	}
}

func joinProblems(problems []Problem) string {
	reason := problems[0].String()
	for _, p := range problems[1:] {
		reason += "; " + p.String()
	}

	return reason
}

func rowReason(rec Record, err error) string {
	return fmt.Sprintf("row %d: %s", rec.Position, err)
}
