package ingest

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// InspectionResult is the outcome of a quality inspection.
	InspectionResult string

	// NCRStatus is the lifecycle state of a non-conformance report.
	NCRStatus string

	// NCRSeverity grades the impact of a non-conformance.
	NCRSeverity string

	// Inspection is a typed quality inspection record. InspectionID is the
	// business-unique natural key used for row-level idempotency; a record
	// with an already-seen key is treated as already ingested and skipped.
	//
	// MeasurementValue and the spec bounds share MeasurementUnit; unit
	// conversion happens once, during normalization, so persisted values are
	// always in the canonical unit family.
	Inspection struct {
		ID               int64
		InspectionID     string // natural key
		DocumentID       int64  // owning document
		Site             string
		ProductionLine   *string
		Supplier         *string
		PartNumber       *string
		PartDescription  *string
		InspectionDate   time.Time
		Inspector        *string
		Result           InspectionResult
		MeasurementValue *decimal.Decimal
		MeasurementUnit  *string
		SpecMin          *decimal.Decimal
		SpecMax          *decimal.Decimal
		Notes            *string
	}

	// NCR is a typed non-conformance report.
	//
	// LinkedInspectionID is a soft back reference resolved by natural-key
	// lookup at ingest time: the found identity or nil, never a required
	// relation. A dangling forward reference (inspection not yet ingested)
	// resolves to nil — an expected ordering artifact, not an error.
	NCR struct {
		ID                 int64
		NCRID              string // natural key
		DocumentID         int64
		LinkedInspectionID *int64
		Site               string
		Supplier           *string
		PartNumber         *string
		PartDescription    *string
		Severity           NCRSeverity
		Status             NCRStatus
		Description        string
		RootCause          *string
		CorrectiveAction   *string
		OpenedAt           time.Time
		ReviewedAt         *time.Time
		ClosedAt           *time.Time
		DaysOpen           *int
	}

	// MaintenanceEvent is a typed machine maintenance record.
	MaintenanceEvent struct {
		ID                 int64
		EventID            string // natural key
		DocumentID         int64
		Site               string
		MachineID          string
		MachineDescription *string
		EventType          *string
		EventDate          time.Time
		DowntimeHours      *decimal.Decimal
		Technician         *string
		Description        *string
		PartsReplaced      *string
		Notes              *string
	}
)

const (
	// ResultPass indicates the inspection passed.
	ResultPass InspectionResult = "PASS"

	// ResultFail indicates the inspection failed.
	ResultFail InspectionResult = "FAIL"

	// ResultConditional indicates a conditional pass pending review.
	ResultConditional InspectionResult = "CONDITIONAL"
)

const (
	// NCROpen marks a newly raised report.
	NCROpen NCRStatus = "OPEN"

	// NCRInReview marks a report under disposition review.
	NCRInReview NCRStatus = "IN_REVIEW"

	// NCRClosed marks a resolved report.
	NCRClosed NCRStatus = "CLOSED"

	// NCRCancelled marks a withdrawn report.
	NCRCancelled NCRStatus = "CANCELLED"
)

const (
	// SeverityLow is a minor, cosmetic or paperwork non-conformance.
	SeverityLow NCRSeverity = "LOW"

	// SeverityMedium is a non-conformance requiring disposition.
	SeverityMedium NCRSeverity = "MEDIUM"

	// SeverityHigh is a functional or customer-impacting non-conformance.
	SeverityHigh NCRSeverity = "HIGH"

	// SeverityCritical is a safety or regulatory non-conformance.
	SeverityCritical NCRSeverity = "CRITICAL"
)

// IsValid checks if the InspectionResult is a valid enum value.
func (r InspectionResult) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultConditional:
		return true
	default:
		return false
	}
}

// IsValid checks if the NCRStatus is a valid enum value.
func (s NCRStatus) IsValid() bool {
	switch s {
	case NCROpen, NCRInReview, NCRClosed, NCRCancelled:
		return true
	default:
		return false
	}
}

// IsValid checks if the NCRSeverity is a valid enum value.
func (s NCRSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// NaturalKey returns the row-level idempotency key for the inspection.
func (i *Inspection) NaturalKey() string { return i.InspectionID }

// NaturalKey returns the row-level idempotency key for the NCR.
func (n *NCR) NaturalKey() string { return n.NCRID }

// NaturalKey returns the row-level idempotency key for the maintenance event.
func (m *MaintenanceEvent) NaturalKey() string { return m.EventID }
