package timeutil

import (
	"fmt"
	"time"
)

// TimeRange is a half-open interval [Start, End) of Timestamps, with Start <= End.
type TimeRange struct {
	Start Timestamp
	End   Timestamp
}

// NewRange builds a TimeRange, rejecting start > end.
func NewRange(start, end Timestamp) (TimeRange, error) {
	if start.After(end) {
		return TimeRange{}, fmt.Errorf("timeutil: range start %s after end %s", start, end)
	}
	return TimeRange{Start: start, End: end}, nil
}

// Empty reports whether the range contains no instants (Start == End).
func (r TimeRange) Empty() bool { return r.Start.Equal(r.End) }

// Contains reports whether t falls within [Start, End).
func (r TimeRange) Contains(t Timestamp) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Overlaps reports whether r and other share any instant.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Intersect returns the overlap of r and other. ok is false if they don't overlap.
func (r TimeRange) Intersect(other TimeRange) (result TimeRange, ok bool) {
	if !r.Overlaps(other) {
		return TimeRange{}, false
	}
	start := r.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := r.End
	if other.End.Before(end) {
		end = other.End
	}
	return TimeRange{Start: start, End: end}, true
}

// SubtractPrefix removes the leading portion of r up to cutoff, returning the
// remaining suffix [max(r.Start, cutoff), r.End). If cutoff is at or past
// r.End, the result is the empty range [r.End, r.End).
func (r TimeRange) SubtractPrefix(cutoff Timestamp) TimeRange {
	start := r.Start
	if cutoff.After(start) {
		start = cutoff
	}
	if start.After(r.End) {
		start = r.End
	}
	return TimeRange{Start: start, End: r.End}
}

// ShiftStartBack returns r with Start moved back by d (used for dependency
// lookback windowing). End is unchanged.
func (r TimeRange) ShiftStartBack(d time.Duration) TimeRange {
	return TimeRange{Start: r.Start.Add(-d), End: r.End}
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
