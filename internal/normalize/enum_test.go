package normalize

import (
	"errors"
	"testing"
)

func TestEnum(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		input   string
		want    string
		wantErr error
	}{
		// Inspection result synonyms all collapse to one canonical value
		{name: "pass canonical", family: FamilyInspectionResult, input: "PASS", want: "PASS"},
		{name: "passed synonym", family: FamilyInspectionResult, input: "Passed", want: "PASS"},
		{name: "ok synonym", family: FamilyInspectionResult, input: "ok", want: "PASS"},
		{name: "rejected maps to fail", family: FamilyInspectionResult, input: "Rejected", want: "FAIL"},
		{name: "cond abbreviation", family: FamilyInspectionResult, input: "cond", want: "CONDITIONAL"},
		{name: "unmapped result fails", family: FamilyInspectionResult, input: "MAYBE", wantErr: ErrUnknownEnumValue},

		// NCR status with punctuation folding
		{name: "in review with space", family: FamilyNCRStatus, input: "In Review", want: "IN_REVIEW"},
		{name: "in-review with dash", family: FamilyNCRStatus, input: "in-review", want: "IN_REVIEW"},
		{name: "resolved maps to closed", family: FamilyNCRStatus, input: "resolved", want: "CLOSED"},
		{name: "us spelling canceled", family: FamilyNCRStatus, input: "Canceled", want: "CANCELLED"},
		{name: "unmapped status fails", family: FamilyNCRStatus, input: "pending", wantErr: ErrUnknownEnumValue},

		// NCR severity single-letter codes
		{name: "single letter h", family: FamilyNCRSeverity, input: "H", want: "HIGH"},
		{name: "minor maps to low", family: FamilyNCRSeverity, input: "minor", want: "LOW"},
		{name: "severe maps to critical", family: FamilyNCRSeverity, input: "Severe", want: "CRITICAL"},
		{name: "unmapped severity fails", family: FamilyNCRSeverity, input: "extreme", wantErr: ErrUnknownEnumValue},

		// Unknown family
		{name: "unknown family fails", family: Family("machine_mood"), input: "HAPPY", wantErr: ErrUnknownEnumFamily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Enum(tt.family, tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Enum(%s, %q) error = %v, want %v", tt.family, tt.input, err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Enum(%s, %q) unexpected error: %v", tt.family, tt.input, err)
			}

			if got != tt.want {
				t.Errorf("Enum(%s, %q) = %q, want %q", tt.family, tt.input, got, tt.want)
			}
		})
	}
}
