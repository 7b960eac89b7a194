package completion

import "tsgraph/internal/timeutil"

// IrregularChecker has no expectation of a specific instant: it is complete
// iff any existing data overlaps the target. Used for outputs whose cadence
// is data-driven rather than calendar-driven, and as the
// default checker when a Task inherits from zero parents.
type IrregularChecker struct{}

// ExpectedLast implements Checker: an IrregularChecker never expects a
// specific instant.
func (IrregularChecker) ExpectedLast(timeutil.TimeRange) (timeutil.Timestamp, bool) {
	return timeutil.Timestamp{}, false
}

// IsComplete implements Checker.
func (IrregularChecker) IsComplete(target timeutil.TimeRange, existing *timeutil.Extent) (bool, error) {
	if target.Start.IsZero() || target.End.IsZero() {
		return false, ErrMissingTimezone
	}
	if target.Empty() {
		return true, nil
	}
	if existing == nil {
		return false, nil
	}
	if existing.First.IsZero() || existing.Last.IsZero() {
		return false, ErrMissingTimezone
	}
	existingRange := timeutil.TimeRange{Start: existing.First, End: existing.Last.Add(1)}
	return existingRange.Overlaps(target), nil
}
