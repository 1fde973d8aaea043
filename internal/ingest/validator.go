// Package ingest provides required-field validation for extracted records.
package ingest

import "fmt"

// Problem describes one validation failure for a record: the missing or
// invalid field, the record's 1-based position, and a human-readable reason.
type Problem struct {
	Field    string
	Position int
	Reason   string
}

// String formats the problem the way it appears in run error summaries.
func (p Problem) String() string {
	return fmt.Sprintf("row %d: %s", p.Position, p.Reason)
}

// RequiredFields lists the fields that must be present before a record of the
// given dataset kind is normalized or persisted. A record missing any of them
// is a row failure, never a pipeline failure.
func RequiredFields(kind DatasetKind) []string {
	switch kind {
	case DatasetInspections:
		return []string{"inspection_id", "site", "inspection_date", "result"}
	case DatasetNCRs:
		return []string{"ncr_id", "site", "severity", "status", "description", "opened_at"}
	case DatasetMaintenance:
		return []string{"event_id", "site", "machine_id", "event_date"}
	default:
		return nil
	}
}

// Validate checks that every required field is present and non-blank in the
// record's raw field map. It collects all problems rather than stopping at
// the first, so a row's error summary names every missing field at once.
//
// An empty result means the record may proceed to normalization.
func Validate(rec Record, required []string) []Problem {
	var problems []Problem

	for _, field := range required {
		if rec.Field(field) == "" {
			problems = append(problems, Problem{
				Field:    field,
				Position: rec.Position,
				Reason:   fmt.Sprintf("missing required field %q", field),
			})
		}
	}

	return problems
}
