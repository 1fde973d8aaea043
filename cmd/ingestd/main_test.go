package main

import (
	"testing"

	"github.com/compliance-io/compliance/internal/ingest"
)

func TestKindForFilename(t *testing.T) {
	cfg := &ScanConfig{Extensions: []string{".csv", ".pdf", ".txt"}}

	tests := []struct {
		filename string
		kind     ingest.SourceKind
		ok       bool
	}{
		{"inspections_q1.csv", ingest.SourceTabular, true},
		{"INSPECTIONS_Q1.CSV", ingest.SourceTabular, true},
		{"NCR-2024-001.pdf", ingest.SourceUnstructured, true},
		{"mnt_report.txt", ingest.SourceUnstructured, true},
		{"notes.docx", "", false},
		{"README", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			kind, ok := kindForFilename(cfg, tt.filename)
			if ok != tt.ok || kind != tt.kind {
				t.Errorf("kindForFilename(%q) = (%s, %v), want (%s, %v)",
					tt.filename, kind, ok, tt.kind, tt.ok)
			}
		})
	}
}

func TestFullySucceeded(t *testing.T) {
	success := func(stage ingest.Stage) ingest.StageResult {
		return ingest.StageResult{Stage: stage, Status: ingest.RunSuccess}
	}

	clean := &ingest.Outcome{Stages: []ingest.StageResult{
		success(ingest.StageReceive),
		success(ingest.StageParse),
		success(ingest.StagePersist),
	}}
	if !fullySucceeded(clean) {
		t.Error("all-SUCCESS outcome reported as not fully succeeded")
	}

	partial := &ingest.Outcome{Stages: []ingest.StageResult{
		success(ingest.StageReceive),
		success(ingest.StageParse),
		{Stage: ingest.StagePersist, Status: ingest.RunPartial},
	}}
	if fullySucceeded(partial) {
		t.Error("PARTIAL persist stage reported as fully succeeded")
	}

	if fullySucceeded(&ingest.Outcome{}) {
		t.Error("empty outcome reported as fully succeeded")
	}
}
