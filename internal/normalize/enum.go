package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// Family identifies a closed enumeration of domain statuses. Each family has
// its own synonym table; the canonical values match the database enum types.
type Family string

const (
	// FamilyInspectionResult maps to PASS, FAIL, CONDITIONAL.
	FamilyInspectionResult Family = "inspection_result"

	// FamilyNCRStatus maps to OPEN, IN_REVIEW, CLOSED, CANCELLED.
	FamilyNCRStatus Family = "ncr_status"

	// FamilyNCRSeverity maps to LOW, MEDIUM, HIGH, CRITICAL.
	FamilyNCRSeverity Family = "ncr_severity"
)

// Sentinel errors for enumeration mapping failures.
var (
	// ErrUnknownEnumValue is returned when input maps to no canonical value.
	ErrUnknownEnumValue = errors.New("unknown enumeration value")

	// ErrUnknownEnumFamily is returned for a family with no synonym table.
	ErrUnknownEnumFamily = errors.New("unknown enumeration family")
)

// Synonym tables per family. Keys are the case/punctuation-normalized form of
// the raw input (upper-cased, '-' and ' ' folded to '_').
var (
	inspectionResultSynonyms = map[string]string{
		"PASS":        "PASS",
		"PASSED":      "PASS",
		"OK":          "PASS",
		"GOOD":        "PASS",
		"FAIL":        "FAIL",
		"FAILED":      "FAIL",
		"REJECT":      "FAIL",
		"REJECTED":    "FAIL",
		"CONDITIONAL": "CONDITIONAL",
		"COND":        "CONDITIONAL",
		"PARTIAL":     "CONDITIONAL",
	}

	ncrStatusSynonyms = map[string]string{
		"OPEN":      "OPEN",
		"OPENED":    "OPEN",
		"NEW":       "OPEN",
		"IN_REVIEW": "IN_REVIEW",
		"REVIEW":    "IN_REVIEW",
		"REVIEWING": "IN_REVIEW",
		"CLOSED":    "CLOSED",
		"CLOSE":     "CLOSED",
		"RESOLVED":  "CLOSED",
		"CANCELLED": "CANCELLED",
		"CANCELED":  "CANCELLED",
		"CANCEL":    "CANCELLED",
	}

	ncrSeveritySynonyms = map[string]string{
		"LOW":      "LOW",
		"L":        "LOW",
		"MINOR":    "LOW",
		"MEDIUM":   "MEDIUM",
		"MED":      "MEDIUM",
		"M":        "MEDIUM",
		"MODERATE": "MEDIUM",
		"HIGH":     "HIGH",
		"H":        "HIGH",
		"MAJOR":    "HIGH",
		"CRITICAL": "CRITICAL",
		"CRIT":     "CRITICAL",
		"C":        "CRITICAL",
		"SEVERE":   "CRITICAL",
	}

	familyTables = map[Family]map[string]string{
		FamilyInspectionResult: inspectionResultSynonyms,
		FamilyNCRStatus:        ncrStatusSynonyms,
		FamilyNCRSeverity:      ncrSeveritySynonyms,
	}
)

// Enum maps a raw status string to its canonical enumeration value.
//
// Input is normalized (trimmed, upper-cased, '-' and ' ' folded to '_') and
// looked up in the family's synonym table: "Passed", "ok" and "PASS" all map
// to PASS; "In Review" and "in-review" both map to IN_REVIEW.
//
// An unmapped value returns ErrUnknownEnumValue identifying the family and the
// raw input — unmapped statuses never default silently.
func Enum(family Family, raw string) (string, error) {
	table, ok := familyTables[family]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEnumFamily, family)
	}

	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")

	canonical, ok := table[key]
	if !ok {
		return "", fmt.Errorf("%w: %s value %q", ErrUnknownEnumValue, family, raw)
	}

	return canonical, nil
}
