package timeutil

// Calendar is the small interface the graph consumes for calendar-driven
// expected-index generation. Real calendar construction (market calendars,
// holiday tables, session schedules) lives outside this module; callers
// provide their own implementation.
type Calendar interface {
	// EventsIn returns the ordered sequence of calendar instants within r.
	EventsIn(r TimeRange) []Timestamp

	// LastOnOrBefore returns the largest calendar instant <= t, or a zero
	// Timestamp with ok=false if no such instant exists.
	LastOnOrBefore(t Timestamp) (Timestamp, bool)
}
