package timeutil

import "time"

// Extent is the inclusive [First, Last] span of timestamps actually present
// in a stored payload — distinct from TimeRange, which is the half-open
// interval used for target and fetch windows. A payload with a single row at
// t has Extent{First: t, Last: t}.
type Extent struct {
	First Timestamp
	Last  Timestamp
}

// AsRange returns the half-open TimeRange covering every instant in the
// extent, for callers (such as a full unbounded Read) that need a fetch
// window rather than a stored-data extent.
func (e Extent) AsRange() TimeRange {
	return TimeRange{Start: e.First, End: e.Last.Add(time.Nanosecond)}
}
