// Package completion implements the policy that decides whether a dataset's
// persisted payload satisfies a target time range.
package completion

import (
	"errors"

	"tsgraph/internal/timeutil"
)

// ErrMissingTimezone is returned when a target or existing range is built
// from a naive timestamp; checkers never evaluate against one.
var ErrMissingTimezone = errors.New("completion: missing timezone")

// Checker is the interface every completion policy implements.
type Checker interface {
	// IsComplete reports whether existing (nil if no data is stored yet)
	// satisfies target's end. Calendar-driven checkers judge by existing.Last
	// alone; IrregularChecker also reads existing.First for its overlap test.
	// No checker detects data missing from the start of the range.
	IsComplete(target timeutil.TimeRange, existing *timeutil.Extent) (bool, error)

	// ExpectedLast returns the largest instant the checker expects to be
	// present at or before target.End, or ok=false if the checker has no
	// such expectation (e.g. IrregularChecker).
	ExpectedLast(target timeutil.TimeRange) (ts timeutil.Timestamp, ok bool)
}
