package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// stubRunStore records runs in memory for tracker tests.
type stubRunStore struct {
	inserted  []*ProcessingRun
	finalized []*ProcessingRun
}

func (s *stubRunStore) Insert(_ context.Context, run *ProcessingRun) error {
	cp := *run
	s.inserted = append(s.inserted, &cp)

	return nil
}

func (s *stubRunStore) Finalize(_ context.Context, run *ProcessingRun) error {
	cp := *run
	s.finalized = append(s.finalized, &cp)

	return nil
}

func TestTrackerBeginFinish(t *testing.T) {
	store := &stubRunStore{}
	tracker := NewRunTracker(store, testLogger())
	ctx := context.Background()

	docID := int64(42)

	run, err := tracker.Begin(ctx, &docID, StagePersist)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	if run.Status != RunRunning {
		t.Errorf("status after Begin = %s, want RUNNING", run.Status)
	}

	if run.ID == "" {
		t.Error("run ID not generated")
	}

	if err := tracker.Finish(ctx, run, RunPartial, 10, 7, 3, "row 2: bad"); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	if run.Status != RunPartial || run.RowsAttempted != 10 || run.RowsSucceeded != 7 || run.RowsFailed != 3 {
		t.Errorf("run not updated: %+v", run)
	}

	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	if len(store.finalized) != 1 {
		t.Errorf("finalized %d runs, want 1", len(store.finalized))
	}
}

func TestTrackerFinishTwice(t *testing.T) {
	tracker := NewRunTracker(&stubRunStore{}, testLogger())
	ctx := context.Background()

	run, err := tracker.Begin(ctx, nil, StageParse)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	if err := tracker.Finish(ctx, run, RunSuccess, 0, 0, 0, ""); err != nil {
		t.Fatalf("first Finish() failed: %v", err)
	}

	err = tracker.Finish(ctx, run, RunFailed, 0, 0, 0, "")
	if !errors.Is(err, ErrRunAlreadyFinalized) {
		t.Errorf("second Finish() = %v, want ErrRunAlreadyFinalized", err)
	}
}

func TestTrackerComplete(t *testing.T) {
	store := &stubRunStore{}
	tracker := NewRunTracker(store, testLogger())

	run, err := tracker.Complete(context.Background(), nil, StageReceive, RunFailed, "checksum failed")
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	if run.DocumentID != nil {
		t.Error("expected nil DocumentID for pre-registration failure")
	}

	if run.FinishedAt == nil {
		t.Error("single-shot run must be finalized at insert")
	}

	if run.ErrorSummary != "checksum failed" {
		t.Errorf("ErrorSummary = %q", run.ErrorSummary)
	}

	if len(store.inserted) != 1 {
		t.Errorf("inserted %d runs, want 1", len(store.inserted))
	}
}

// failingRunStore simulates audit storage loss.
type failingRunStore struct{}

func (failingRunStore) Insert(context.Context, *ProcessingRun) error {
	return fmt.Errorf("connection refused")
}

func (failingRunStore) Finalize(context.Context, *ProcessingRun) error {
	return fmt.Errorf("connection refused")
}

func TestTrackerStoreFailurePropagates(t *testing.T) {
	tracker := NewRunTracker(failingRunStore{}, testLogger())

	if _, err := tracker.Begin(context.Background(), nil, StageReceive); err == nil {
		t.Error("expected error when the run store is unavailable")
	}
}
