package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/compliance-io/compliance/internal/normalize"
)

// Field length caps, matching the column widths in the schema.
const (
	maxKeyLen   = 100
	maxSiteLen  = 100
	maxLineLen  = 100
	maxPartLen  = 100
	maxNameLen  = 200
	hoursPerDay = 24
)

// ErrRowNormalization wraps any per-field normalization condition raised
// while building a typed record. It always names the field and the offending
// value, and is a row failure, never a pipeline failure.
var ErrRowNormalization = errors.New("row normalization failed")

// BuildInspection normalizes a raw record into a typed Inspection.
//
// Required-field presence has already been validated; this converts each raw
// field, applying the same unit conversion to the measured value and the spec
// bounds (they share one unit).
func BuildInspection(rec Record, docID int64) (*Inspection, error) {
	inspectionDate, err := normalizeRequiredDate(rec, "inspection_date")
	if err != nil {
		return nil, err
	}

	resultRaw, err := normalize.Enum(normalize.FamilyInspectionResult, rec.Field("result"))
	if err != nil {
		return nil, fieldError("result", rec.Field("result"), err)
	}

	insp := &Inspection{
		InspectionID:    *normalize.CleanString(rec.Field("inspection_id"), maxKeyLen),
		DocumentID:      docID,
		Site:            *normalize.CleanString(rec.Field("site"), maxSiteLen),
		ProductionLine:  normalize.CleanString(rec.Field("production_line"), maxLineLen),
		Supplier:        normalize.CleanString(rec.Field("supplier"), maxNameLen),
		PartNumber:      normalize.CleanString(rec.Field("part_number"), maxPartLen),
		PartDescription: normalize.CleanString(rec.Field("part_description"), 0),
		InspectionDate:  inspectionDate,
		Inspector:       normalize.CleanString(rec.Field("inspector"), maxNameLen),
		Result:          InspectionResult(resultRaw),
		Notes:           normalize.CleanString(rec.Field("notes"), 0),
	}

	// Measurement and spec bounds share one unit, so all three receive the
	// same conversion.
	unitLabel := rec.Field("measurement_unit")

	measured, err := normalize.Decimal(rec.Field("measurement_value"))
	if err != nil {
		return nil, fieldError("measurement_value", rec.Field("measurement_value"), err)
	}

	if measured != nil {
		value, canonical := normalize.Unit(*measured, unitLabel)
		insp.MeasurementValue = &value
		insp.MeasurementUnit = normalize.CleanString(canonical, 0)
	}

	specMin, err := normalize.Decimal(rec.Field("spec_min"))
	if err != nil {
		return nil, fieldError("spec_min", rec.Field("spec_min"), err)
	}

	if specMin != nil {
		value, _ := normalize.Unit(*specMin, unitLabel)
		insp.SpecMin = &value
	}

	specMax, err := normalize.Decimal(rec.Field("spec_max"))
	if err != nil {
		return nil, fieldError("spec_max", rec.Field("spec_max"), err)
	}

	if specMax != nil {
		value, _ := normalize.Unit(*specMax, unitLabel)
		insp.SpecMax = &value
	}

	return insp, nil
}

// BuildNCR normalizes a raw record into a typed NCR.
//
// The linked_inspection_id field is NOT resolved here: the raw reference is
// returned separately so the pipeline can resolve it against the persistence
// transaction (where earlier rows of the same file are already visible).
func BuildNCR(rec Record, docID int64) (*NCR, string, error) {
	severityRaw, err := normalize.Enum(normalize.FamilyNCRSeverity, rec.Field("severity"))
	if err != nil {
		return nil, "", fieldError("severity", rec.Field("severity"), err)
	}

	statusRaw, err := normalize.Enum(normalize.FamilyNCRStatus, rec.Field("status"))
	if err != nil {
		return nil, "", fieldError("status", rec.Field("status"), err)
	}

	openedAt, err := normalizeRequiredDateTime(rec, "opened_at")
	if err != nil {
		return nil, "", err
	}

	reviewedAt, err := normalize.DateTime(rec.Field("reviewed_at"))
	if err != nil {
		return nil, "", fieldError("reviewed_at", rec.Field("reviewed_at"), err)
	}

	closedAt, err := normalize.DateTime(rec.Field("closed_at"))
	if err != nil {
		return nil, "", fieldError("closed_at", rec.Field("closed_at"), err)
	}

	ncr := &NCR{
		NCRID:            *normalize.CleanString(rec.Field("ncr_id"), maxKeyLen),
		DocumentID:       docID,
		Site:             *normalize.CleanString(rec.Field("site"), maxSiteLen),
		Supplier:         normalize.CleanString(rec.Field("supplier"), maxNameLen),
		PartNumber:       normalize.CleanString(rec.Field("part_number"), maxPartLen),
		PartDescription:  normalize.CleanString(rec.Field("part_description"), 0),
		Severity:         NCRSeverity(severityRaw),
		Status:           NCRStatus(statusRaw),
		Description:      *normalize.CleanString(rec.Field("description"), 0),
		RootCause:        normalize.CleanString(rec.Field("root_cause"), 0),
		CorrectiveAction: normalize.CleanString(rec.Field("corrective_action"), 0),
		OpenedAt:         openedAt,
		ReviewedAt:       reviewedAt,
		ClosedAt:         closedAt,
		DaysOpen:         daysOpen(rec, openedAt, closedAt),
	}

	linkedRef := rec.Field("linked_inspection_id")

	return ncr, linkedRef, nil
}

// BuildMaintenanceEvent normalizes a raw record into a typed MaintenanceEvent.
func BuildMaintenanceEvent(rec Record, docID int64) (*MaintenanceEvent, error) {
	eventDate, err := normalizeRequiredDate(rec, "event_date")
	if err != nil {
		return nil, err
	}

	downtime, err := normalize.Decimal(rec.Field("downtime_hours"))
	if err != nil {
		return nil, fieldError("downtime_hours", rec.Field("downtime_hours"), err)
	}

	return &MaintenanceEvent{
		EventID:            *normalize.CleanString(rec.Field("event_id"), maxKeyLen),
		DocumentID:         docID,
		Site:               *normalize.CleanString(rec.Field("site"), maxSiteLen),
		MachineID:          *normalize.CleanString(rec.Field("machine_id"), maxKeyLen),
		MachineDescription: normalize.CleanString(rec.Field("machine_description"), 0),
		EventType:          normalize.CleanString(rec.Field("event_type"), maxSiteLen),
		EventDate:          eventDate,
		DowntimeHours:      downtime,
		Technician:         normalize.CleanString(rec.Field("technician"), maxNameLen),
		Description:        normalize.CleanString(rec.Field("description"), 0),
		PartsReplaced:      normalize.CleanString(rec.Field("parts_replaced"), 0),
		Notes:              normalize.CleanString(rec.Field("notes"), 0),
	}, nil
}

// daysOpen takes the source's days_open when it parses, otherwise derives it
// from the opened/closed pair when both are known.
func daysOpen(rec Record, openedAt time.Time, closedAt *time.Time) *int {
	if raw, err := normalize.Decimal(rec.Field("days_open")); err == nil && raw != nil {
		days := int(raw.IntPart())

		return &days
	}

	if closedAt != nil {
		days := int(closedAt.Sub(openedAt).Hours() / hoursPerDay)

		return &days
	}

	return nil
}

func normalizeRequiredDate(rec Record, field string) (time.Time, error) {
	value, err := normalize.Date(rec.Field(field))
	if err != nil {
		return time.Time{}, fieldError(field, rec.Field(field), err)
	}

	if value == nil {
		// Presence was validated upstream; a nil here means blank slipped
		// through (e.g. whitespace-only), still a row failure.
		return time.Time{}, fieldError(field, rec.Field(field), normalize.ErrUnparseableDate)
	}

	return *value, nil
}

func normalizeRequiredDateTime(rec Record, field string) (time.Time, error) {
	value, err := normalize.DateTime(rec.Field(field))
	if err != nil {
		return time.Time{}, fieldError(field, rec.Field(field), err)
	}

	if value == nil {
		return time.Time{}, fieldError(field, rec.Field(field), normalize.ErrUnparseableDateTime)
	}

	return *value, nil
}

func fieldError(field, value string, err error) error {
	return fmt.Errorf("%w: field %q value %q: %w", ErrRowNormalization, field, value, err)
}
