package ingest_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/compliance-io/compliance/internal/extract"
	"github.com/compliance-io/compliance/internal/ingest"
	"github.com/compliance-io/compliance/internal/storage"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}

	return d
}

type testHarness struct {
	pipeline  *ingest.Pipeline
	documents *storage.InMemoryDocumentStore
	runs      *storage.InMemoryRunStore
	records   *storage.InMemoryRecordStore
}

func newTestHarness() *testHarness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	documents := storage.NewInMemoryDocumentStore()
	runs := storage.NewInMemoryRunStore()
	records := storage.NewInMemoryRecordStore()

	pipeline := ingest.NewPipeline(
		ingest.NewRegistry(documents, logger),
		ingest.NewRunTracker(runs, logger),
		records,
		map[ingest.SourceKind]ingest.Extractor{
			ingest.SourceTabular:      extract.NewTabularExtractor(),
			ingest.SourceUnstructured: extract.NewTextExtractor(),
		},
		logger,
	)

	return &testHarness{
		pipeline:  pipeline,
		documents: documents,
		runs:      runs,
		records:   records,
	}
}

func csvSource(name, content string) ingest.Source {
	return &ingest.BytesSource{
		Filename:   name,
		Content:    []byte(content),
		SourceKind: ingest.SourceTabular,
	}
}

func lastStage(t *testing.T, outcome *ingest.Outcome) ingest.StageResult {
	t.Helper()

	if len(outcome.Stages) == 0 {
		t.Fatal("outcome has no stage results")
	}

	return outcome.Stages[len(outcome.Stages)-1]
}

const inspectionsCSV = `inspection_id,site,inspection_date,result,measurement_value,measurement_unit
INS-001,Plant A,2024-01-15,Passed,2.5,cm
INS-002,Plant A,2024-01-16,FAIL,9.8,mm
INS-003,Plant B,01/17/2024,ok,,
`

func TestIngestInspectionsDocument(t *testing.T) {
	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), csvSource("inspections_jan.csv", inspectionsCSV))
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if !outcome.NewDocument {
		t.Error("expected NewDocument=true on first sighting")
	}

	if outcome.Kind != ingest.DatasetInspections {
		t.Errorf("Kind = %s, want %s", outcome.Kind, ingest.DatasetInspections)
	}

	if outcome.RowsAttempted != 3 || outcome.RowsSucceeded != 3 || outcome.RowsFailed != 0 {
		t.Errorf("counters = %d/%d/%d, want 3/3/0",
			outcome.RowsAttempted, outcome.RowsSucceeded, outcome.RowsFailed)
	}

	if got := lastStage(t, outcome); got.Status != ingest.RunSuccess {
		t.Errorf("persist stage status = %s, want SUCCESS", got.Status)
	}

	// Measurement normalization: 2.5 cm becomes 25 mm.
	insp, ok := h.records.InspectionByKey("INS-001")
	if !ok {
		t.Fatal("INS-001 not persisted")
	}

	if insp.Result != ingest.ResultPass {
		t.Errorf("INS-001 result = %s, want PASS (synonym folding)", insp.Result)
	}

	if insp.MeasurementValue == nil || !insp.MeasurementValue.Equal(decimalFromString(t, "25")) {
		t.Errorf("INS-001 measurement = %v, want 25 (cm converted to mm)", insp.MeasurementValue)
	}

	if insp.MeasurementUnit == nil || *insp.MeasurementUnit != "mm" {
		t.Errorf("INS-001 unit = %v, want mm", insp.MeasurementUnit)
	}

	// All three pipeline stage runs recorded: RECEIVE, PARSE, PERSIST.
	runs := h.runs.Runs()
	if len(runs) != 3 {
		t.Fatalf("recorded %d runs, want 3", len(runs))
	}

	wantStages := []ingest.Stage{ingest.StageReceive, ingest.StageParse, ingest.StagePersist}
	for i, want := range wantStages {
		if runs[i].Stage != want {
			t.Errorf("run %d stage = %s, want %s", i, runs[i].Stage, want)
		}

		if runs[i].Status != ingest.RunSuccess {
			t.Errorf("run %d status = %s, want SUCCESS", i, runs[i].Status)
		}

		if runs[i].FinishedAt == nil {
			t.Errorf("run %d not finalized", i)
		}
	}
}

func TestIngestPartialFailure(t *testing.T) {
	content := `inspection_id,site,inspection_date,result
INS-101,Plant A,2024-02-01,PASS
INS-102,,2024-02-02,PASS
INS-103,Plant A,2024-02-03,MAYBE
INS-104,Plant A,2024-02-04,FAIL
`

	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), csvSource("inspections_feb.csv", content))
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if outcome.RowsAttempted != 4 || outcome.RowsSucceeded != 2 || outcome.RowsFailed != 2 {
		t.Errorf("counters = %d/%d/%d, want 4/2/2",
			outcome.RowsAttempted, outcome.RowsSucceeded, outcome.RowsFailed)
	}

	persist := lastStage(t, outcome)
	if persist.Status != ingest.RunPartial {
		t.Errorf("persist status = %s, want PARTIAL", persist.Status)
	}

	// The summary names each failing row with its position.
	if !strings.Contains(persist.Error, "row 2") || !strings.Contains(persist.Error, "row 3") {
		t.Errorf("error summary missing row positions: %q", persist.Error)
	}

	// Failed rows left nothing behind; the good rows committed.
	if _, ok := h.records.InspectionByKey("INS-102"); ok {
		t.Error("row with missing site should not persist")
	}

	if _, ok := h.records.InspectionByKey("INS-104"); !ok {
		t.Error("valid row after failures should persist")
	}
}

func TestIngestAllRowsFail(t *testing.T) {
	content := `inspection_id,site,inspection_date,result
INS-201,,2024-02-01,PASS
INS-202,,2024-02-02,PASS
`

	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), csvSource("inspections_bad.csv", content))
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if got := lastStage(t, outcome); got.Status != ingest.RunFailed {
		t.Errorf("persist status = %s, want FAILED when every row fails", got.Status)
	}

	if outcome.RowsSucceeded != 0 || outcome.RowsFailed != 2 {
		t.Errorf("counters = %d/%d, want 0 succeeded, 2 failed",
			outcome.RowsSucceeded, outcome.RowsFailed)
	}
}

func TestIngestDuplicateDocument(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	src := csvSource("inspections_jan.csv", inspectionsCSV)

	first, err := h.pipeline.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("first Ingest() failed: %v", err)
	}

	second, err := h.pipeline.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("second Ingest() failed: %v", err)
	}

	if second.NewDocument {
		t.Error("expected NewDocument=false on re-ingest")
	}

	if *first.DocumentID != *second.DocumentID {
		t.Errorf("document identity changed on re-ingest: %d vs %d",
			*first.DocumentID, *second.DocumentID)
	}

	// Row-level idempotency: every row counts succeeded, nothing duplicated.
	if second.RowsSucceeded != 3 || second.RowsFailed != 0 {
		t.Errorf("second run counters = %d/%d, want 3 succeeded, 0 failed",
			second.RowsSucceeded, second.RowsFailed)
	}

	inspections, _, _ := h.records.CountRecords()
	if inspections != 3 {
		t.Errorf("inspection count = %d after re-ingest, want 3", inspections)
	}

	// The re-run appended a fresh audit trail: 3 runs per ingest.
	if got := len(h.runs.Runs()); got != 6 {
		t.Errorf("recorded %d runs, want 6", got)
	}
}

func TestIngestNCRBackReference(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	if _, err := h.pipeline.Ingest(ctx, csvSource("inspections_jan.csv", inspectionsCSV)); err != nil {
		t.Fatalf("inspections Ingest() failed: %v", err)
	}

	ncrCSV := `ncr_id,site,severity,status,description,opened_at,linked_inspection_id
NCR-001,Plant A,high,open,Crack found,2024-01-20 09:00:00,INS-002
NCR-002,Plant A,low,open,Scratch,2024-01-21 10:00:00,INS-MISSING
`

	outcome, err := h.pipeline.Ingest(ctx, csvSource("ncr_jan.csv", ncrCSV))
	if err != nil {
		t.Fatalf("ncr Ingest() failed: %v", err)
	}

	if outcome.RowsSucceeded != 2 {
		t.Fatalf("ncr rows succeeded = %d, want 2", outcome.RowsSucceeded)
	}

	linked, ok := h.records.NCRByKey("NCR-001")
	if !ok {
		t.Fatal("NCR-001 not persisted")
	}

	referenced, ok := h.records.InspectionByKey("INS-002")
	if !ok {
		t.Fatal("INS-002 not persisted")
	}

	if linked.LinkedInspectionID == nil || *linked.LinkedInspectionID != referenced.ID {
		t.Errorf("NCR-001 linked_inspection_id = %v, want %d", linked.LinkedInspectionID, referenced.ID)
	}

	// A dangling reference stores null, it does not fail the row.
	dangling, ok := h.records.NCRByKey("NCR-002")
	if !ok {
		t.Fatal("NCR-002 not persisted")
	}

	if dangling.LinkedInspectionID != nil {
		t.Errorf("dangling reference resolved to %d, want nil", *dangling.LinkedInspectionID)
	}
}

func TestIngestUnclassifiableDocumentFailsParse(t *testing.T) {
	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), csvSource("data.csv", "a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Ingest() returned pipeline error: %v", err)
	}

	parse := lastStage(t, outcome)
	if parse.Stage != ingest.StageParse || parse.Status != ingest.RunFailed {
		t.Errorf("expected PARSE FAILED terminal stage, got %s %s", parse.Stage, parse.Status)
	}

	if outcome.RowsAttempted != 0 {
		t.Errorf("RowsAttempted = %d, want 0 for parse failure", outcome.RowsAttempted)
	}

	// Document is registered even when parsing fails: the audit trail needs
	// the identity.
	if outcome.DocumentID == nil {
		t.Error("DocumentID not set on parse failure")
	}
}

func TestIngestBadCSVRowCountedFailed(t *testing.T) {
	content := "inspection_id,site,inspection_date,result\nINS-301,Plant A,2024-03-01,PASS\nONLY-ONE-FIELD\n"

	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), csvSource("inspections_mar.csv", content))
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if outcome.RowsAttempted != 2 || outcome.RowsSucceeded != 1 || outcome.RowsFailed != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1",
			outcome.RowsAttempted, outcome.RowsSucceeded, outcome.RowsFailed)
	}

	if got := lastStage(t, outcome); got.Status != ingest.RunPartial {
		t.Errorf("persist status = %s, want PARTIAL", got.Status)
	}
}

func TestIngestUnstructuredDocument(t *testing.T) {
	report := `NON-CONFORMANCE REPORT

Site: Plant D
Supplier: Omni Castings
Part Number: PN-5520
Severity: critical
Status: in review
Description: Porosity beyond acceptance criteria
Initial disposition: hold.
`

	h := newTestHarness()

	outcome, err := h.pipeline.Ingest(context.Background(), &ingest.BytesSource{
		Filename:   "NCR-2024-0042.txt",
		Content:    []byte(report),
		SourceKind: ingest.SourceUnstructured,
	})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if outcome.RowsAttempted != 1 || outcome.RowsSucceeded != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", outcome.RowsAttempted, outcome.RowsSucceeded)
	}

	ncr, ok := h.records.NCRByKey("NCR-2024-0042")
	if !ok {
		t.Fatal("NCR-2024-0042 not persisted")
	}

	if ncr.Severity != ingest.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", ncr.Severity)
	}

	if ncr.Status != ingest.NCRInReview {
		t.Errorf("status = %s, want IN_REVIEW", ncr.Status)
	}
}
