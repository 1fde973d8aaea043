// Package normalize converts raw field strings from external compliance
// documents into typed values.
//
// Every function in this package is pure: no I/O, no clock, no globals. Blank
// input is absence, not an error — a blank date yields nil, a blank decimal
// yields nil. Anything non-blank that cannot be converted fails with a
// sentinel error naming the offending value, so a bad value is never silently
// coerced to null.
//
// The pipeline calls these functions once per extracted field, after
// required-field validation and before persistence. See internal/ingest for
// the orchestration around them.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for normalization failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrUnparseableDate is returned when a date string matches no accepted layout.
	ErrUnparseableDate = errors.New("unparseable date")

	// ErrUnparseableDateTime is returned when a timestamp string matches no accepted layout.
	ErrUnparseableDateTime = errors.New("unparseable datetime")

	// ErrUnparseableDecimal is returned when a numeric string cannot be parsed.
	ErrUnparseableDecimal = errors.New("unparseable decimal")
)

// dateLayouts are the accepted textual date layouts, attempted in order.
// First match wins, so the ambiguous MM/DD/YYYY is preferred over DD/MM/YYYY —
// the dominant convention in the inbound feeds.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02/01/2006",
	"2006-01-02 15:04:05", // date with time, time discarded
}

// dateTimeLayouts are the accepted textual timestamp layouts, attempted in order.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339,
	"01/02/2006 15:04:05",
	"2006-01-02", // date only, midnight assumed
}

// Date normalizes a raw date string to a date value (midnight UTC).
//
// Blank input (empty or whitespace-only) yields (nil, nil): absence is not an
// error. Non-blank input is matched against the accepted layouts in order;
// when a layout carries a time component the time is discarded.
//
// Returns ErrUnparseableDate naming the offending string when no layout matches.
func Date(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

			return &d, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
}

// DateTime normalizes a raw timestamp string to a time value.
//
// Blank input yields (nil, nil). Timezone policy follows the source systems:
// timestamps without an explicit offset are taken as UTC (factory-local time
// is recorded without offset upstream).
//
// Returns ErrUnparseableDateTime naming the offending string when no layout matches.
func DateTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnparseableDateTime, raw)
}

// Decimal normalizes a raw numeric string to a decimal value.
//
// Blank input yields (nil, nil). Thousands separators and surrounding
// whitespace are stripped before parsing; measurements stay decimal end to
// end to avoid binary float drift on spec comparisons.
//
// Returns ErrUnparseableDecimal naming the offending string on invalid numeric text.
func Decimal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	cleaned := strings.ReplaceAll(raw, ",", "")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnparseableDecimal, raw)
	}

	return &d, nil
}

// CleanString trims a raw string, mapping empty-after-trim to absent (nil).
//
// When maxLen > 0 the result is truncated to maxLen bytes. Truncation is a
// lossy but accepted normalization and never an error.
func CleanString(raw string, maxLen int) *string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}

	if maxLen > 0 && len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
	}

	return &cleaned
}
