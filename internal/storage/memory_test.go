package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compliance-io/compliance/internal/ingest"
)

func testInspection(key string) *ingest.Inspection {
	return &ingest.Inspection{
		InspectionID:   key,
		DocumentID:     1,
		Site:           "Plant A",
		InspectionDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Result:         ingest.ResultPass,
	}
}

func TestInMemoryDocumentStoreChecksumUniqueness(t *testing.T) {
	store := NewInMemoryDocumentStore()
	ctx := context.Background()

	doc := &ingest.Document{
		Source:     ingest.SourceTabular,
		Filename:   "inspections_q1.csv",
		Checksum:   "aa11",
		SizeBytes:  128,
		ReceivedAt: time.Now().UTC(),
	}

	if err := store.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	if doc.ID == 0 {
		t.Error("Insert() did not assign an ID")
	}

	dup := &ingest.Document{Filename: "renamed.csv", Checksum: "aa11"}

	err := store.Insert(ctx, dup)
	if !errors.Is(err, ingest.ErrDuplicateChecksum) {
		t.Errorf("duplicate Insert() = %v, want ErrDuplicateChecksum", err)
	}

	found, err := store.FindByChecksum(ctx, "aa11")
	if err != nil {
		t.Fatalf("FindByChecksum() failed: %v", err)
	}

	if found.ID != doc.ID || found.Filename != "inspections_q1.csv" {
		t.Errorf("found %+v, want original registration", found)
	}

	if _, err := store.FindByChecksum(ctx, "bb22"); !errors.Is(err, ingest.ErrNotFound) {
		t.Errorf("unknown checksum = %v, want ErrNotFound", err)
	}
}

func TestInMemoryRunStoreFinalizeOnce(t *testing.T) {
	store := NewInMemoryRunStore()
	ctx := context.Background()

	run := &ingest.ProcessingRun{
		ID:        "run-1",
		Stage:     ingest.StagePersist,
		Status:    ingest.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	now := time.Now().UTC()
	run.Status = ingest.RunSuccess
	run.FinishedAt = &now

	if err := store.Finalize(ctx, run); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}

	if err := store.Finalize(ctx, run); err == nil {
		t.Error("second Finalize() succeeded, want error")
	}

	runs := store.Runs()
	if len(runs) != 1 || runs[0].Status != ingest.RunSuccess {
		t.Errorf("Runs() = %+v, want one SUCCESS run", runs)
	}
}

func TestMemoryRecordTxBuffersUntilCommit(t *testing.T) {
	store := NewInMemoryRecordStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	inserted, err := tx.InsertInspection(ctx, testInspection("INS-001"))
	if err != nil || !inserted {
		t.Fatalf("InsertInspection() = (%v, %v), want (true, nil)", inserted, err)
	}

	// Uncommitted rows are visible inside the transaction but not outside.
	if _, err := tx.FindInspectionByKey(ctx, "INS-001"); err != nil {
		t.Errorf("buffered row not visible in transaction: %v", err)
	}

	if _, ok := store.InspectionByKey("INS-001"); ok {
		t.Error("buffered row visible before Commit")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	if _, ok := store.InspectionByKey("INS-001"); !ok {
		t.Error("committed row not visible after Commit")
	}
}

func TestMemoryRecordTxRollbackDiscards(t *testing.T) {
	store := NewInMemoryRecordStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	if _, err := tx.InsertInspection(ctx, testInspection("INS-002")); err != nil {
		t.Fatalf("InsertInspection() failed: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	if _, ok := store.InspectionByKey("INS-002"); ok {
		t.Error("rolled-back row leaked into the store")
	}
}

func TestMemoryRecordTxDuplicateNaturalKey(t *testing.T) {
	store := NewInMemoryRecordStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	if _, err := tx.InsertInspection(ctx, testInspection("INS-003")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	// Re-inserting the same natural key must be absorbed, not errored,
	// both against committed rows and within a single transaction.
	tx2, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	inserted, err := tx2.InsertInspection(ctx, testInspection("INS-003"))
	if err != nil {
		t.Fatalf("repeat insert failed: %v", err)
	}

	if inserted {
		t.Error("repeat insert reported a new row")
	}

	inspections, _, _ := store.CountRecords()
	if inspections != 1 {
		t.Errorf("CountRecords() inspections = %d, want 1", inspections)
	}
}
