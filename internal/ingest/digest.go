package ingest

import (
	"fmt"
	"strings"
)

const (
	// defaultDigestErrors is how many row errors are enumerated verbatim in
	// a run's error summary; the remainder is counted but not listed.
	defaultDigestErrors = 10

	// defaultDigestLength bounds the summary column. Must stay within the
	// processing_runs.error_summary width.
	defaultDigestLength = 2000
)

// ErrorDigest accumulates row-level error reasons into a bounded summary:
// the first N reasons joined verbatim, with the overflow reported as a count.
// It keeps audit rows readable when a 50,000-row file fails wholesale.
type ErrorDigest struct {
	maxErrors int
	maxLength int
	kept      []string
	total     int
}

// NewErrorDigest creates a digest keeping at most maxErrors reasons and
// truncating the rendered summary to maxLength bytes. Non-positive arguments
// fall back to the defaults.
func NewErrorDigest(maxErrors, maxLength int) *ErrorDigest {
	if maxErrors <= 0 {
		maxErrors = defaultDigestErrors
	}

	if maxLength <= 0 {
		maxLength = defaultDigestLength
	}

	return &ErrorDigest{maxErrors: maxErrors, maxLength: maxLength}
}

// Add records one error reason. Reasons beyond the cap are counted only.
func (d *ErrorDigest) Add(reason string) {
	d.total++

	if len(d.kept) < d.maxErrors {
		d.kept = append(d.kept, reason)
	}
}

// Count returns the total number of reasons recorded, listed or not.
func (d *ErrorDigest) Count() int {
	return d.total
}

// String renders the bounded summary: first-N reasons joined with "; ",
// an overflow marker when reasons were dropped, truncated to the length cap.
// An empty digest renders as "".
func (d *ErrorDigest) String() string {
	if d.total == 0 {
		return ""
	}

	summary := strings.Join(d.kept, "; ")

	if remainder := d.total - len(d.kept); remainder > 0 {
		summary = fmt.Sprintf("%s (+%d more)", summary, remainder)
	}

	if len(summary) > d.maxLength {
		summary = summary[:d.maxLength]
	}

	return summary
}
