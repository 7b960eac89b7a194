package completion

import (
	"time"

	"tsgraph/internal/timeutil"
)

// CalendarChecker is complete when the existing data's last row is on or
// after the largest calendar instant at or before target.End.
type CalendarChecker struct {
	Calendar  timeutil.Calendar
	Tolerance time.Duration
}

// NewCalendarChecker builds a CalendarChecker with no tolerance.
func NewCalendarChecker(cal timeutil.Calendar) *CalendarChecker {
	return &CalendarChecker{Calendar: cal}
}

// ExpectedLast implements Checker.
func (c *CalendarChecker) ExpectedLast(target timeutil.TimeRange) (timeutil.Timestamp, bool) {
	return c.Calendar.LastOnOrBefore(target.End)
}

// IsComplete implements Checker.
func (c *CalendarChecker) IsComplete(target timeutil.TimeRange, existing *timeutil.Extent) (bool, error) {
	if target.Start.IsZero() || target.End.IsZero() {
		return false, ErrMissingTimezone
	}
	expected, ok := c.ExpectedLast(target)
	if !ok {
		// The calendar found no instant at or before target.End within its
		// backward scan: trivially complete.
		return true, nil
	}
	if existing == nil {
		return false, nil
	}
	if existing.Last.IsZero() {
		return false, ErrMissingTimezone
	}
	withTolerance := expected.Add(-c.Tolerance)
	return !existing.Last.Before(withTolerance), nil
}
