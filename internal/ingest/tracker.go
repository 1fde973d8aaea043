package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrRunAlreadyFinalized is returned when finalizing a run twice. Finalized
// runs are immutable audit records.
var ErrRunAlreadyFinalized = errors.New("processing run already finalized")

// RunTracker records the outcome of each pipeline stage for a document as an
// append-only audit log. Every attempted stage gets a ProcessingRun row, even
// total failures — the audit log is the single source of truth for what
// happened to a document.
type RunTracker struct {
	runs   RunStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRunTracker creates a tracker over the given run store.
func NewRunTracker(runs RunStore, logger *slog.Logger) *RunTracker {
	return &RunTracker{
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
}

// Begin records a stage starting for a document (docID may be nil when no
// document exists yet). The returned run is RUNNING and must be completed
// with Finish exactly once.
func (t *RunTracker) Begin(ctx context.Context, docID *int64, stage Stage) (*ProcessingRun, error) {
	run := &ProcessingRun{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Stage:      stage,
		Status:     RunRunning,
		StartedAt:  t.now(),
	}

	if err := t.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("record %s run: %w", stage, err)
	}

	return run, nil
}

// Finish finalizes a run with its terminal status, row counters and bounded
// error summary. The run becomes immutable.
func (t *RunTracker) Finish(
	ctx context.Context,
	run *ProcessingRun,
	status RunStatus,
	attempted, succeeded, failed int,
	errorSummary string,
) error {
	if run.Status.IsTerminal() {
		return fmt.Errorf("%w: %s run %s", ErrRunAlreadyFinalized, run.Stage, run.ID)
	}

	finished := t.now()

	run.Status = status
	run.RowsAttempted = attempted
	run.RowsSucceeded = succeeded
	run.RowsFailed = failed
	run.ErrorSummary = errorSummary
	run.FinishedAt = &finished

	if err := t.runs.Finalize(ctx, run); err != nil {
		return fmt.Errorf("finalize %s run: %w", run.Stage, err)
	}

	t.logger.Info("stage finished",
		slog.String("run_id", run.ID),
		slog.String("stage", string(run.Stage)),
		slog.String("status", string(status)),
		slog.Int("rows_attempted", attempted),
		slog.Int("rows_succeeded", succeeded),
		slog.Int("rows_failed", failed),
	)

	return nil
}

// Complete records a single-shot stage outcome in one call: the run is
// inserted already finalized. Used for RECEIVE, which has no row loop.
func (t *RunTracker) Complete(
	ctx context.Context,
	docID *int64,
	stage Stage,
	status RunStatus,
	errorSummary string,
) (*ProcessingRun, error) {
	started := t.now()
	finished := started

	run := &ProcessingRun{
		ID:           uuid.NewString(),
		DocumentID:   docID,
		Stage:        stage,
		Status:       status,
		ErrorSummary: errorSummary,
		StartedAt:    started,
		FinishedAt:   &finished,
	}

	if err := t.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("record %s run: %w", stage, err)
	}

	return run, nil
}
