package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/compliance-io/compliance/internal/config"
	"github.com/compliance-io/compliance/internal/ingest"
)

// PersistentRunStore implements ingest.RunStore with a PostgreSQL backend.
// Processing runs are an append-only audit log: rows are inserted at stage
// start and finalized exactly once, never updated afterwards.
type PersistentRunStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Ensure interface compliance at compile time.
var _ ingest.RunStore = (*PersistentRunStore)(nil)

// NewPersistentRunStore creates a run store backed by the given connection pool.
func NewPersistentRunStore(conn *Connection) *PersistentRunStore {
	return &PersistentRunStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Insert records a processing run. The run may already carry a terminal
// status (single-shot stages record start and finish in one insert).
func (s *PersistentRunStore) Insert(ctx context.Context, run *ingest.ProcessingRun) error {
	metadataJSON, err := metadataToJSON(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize run metadata: %w", err)
	}

	query := `
		INSERT INTO processing_runs (
			id, document_id, stage, status, error_summary,
			rows_attempted, rows_succeeded, rows_failed,
			started_at, finished_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.conn.ExecContext(
		ctx,
		query,
		run.ID,
		run.DocumentID,
		run.Stage,
		run.Status,
		run.ErrorSummary,
		run.RowsAttempted,
		run.RowsSucceeded,
		run.RowsFailed,
		run.StartedAt,
		run.FinishedAt,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert processing run: %w", err)
	}

	return nil
}

// Finalize writes the terminal status, counters, error summary and finish
// time of a run. The finished_at IS NULL guard makes finalization
// exactly-once: a second attempt matches no rows and returns an error.
func (s *PersistentRunStore) Finalize(ctx context.Context, run *ingest.ProcessingRun) error {
	query := `
		UPDATE processing_runs
		SET status = $1, error_summary = $2,
		    rows_attempted = $3, rows_succeeded = $4, rows_failed = $5,
		    finished_at = $6
		WHERE id = $7 AND finished_at IS NULL
	`

	result, err := s.conn.ExecContext(
		ctx,
		query,
		run.Status,
		run.ErrorSummary,
		run.RowsAttempted,
		run.RowsSucceeded,
		run.RowsFailed,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize processing run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: run %s", ingest.ErrNotFound, run.ID)
	}

	s.logger.Debug("processing run finalized",
		slog.String("run_id", run.ID),
		slog.String("stage", string(run.Stage)),
		slog.String("status", string(run.Status)),
	)

	return nil
}
