package timeutil

import "time"

// BusinessDayCalendar is a minimal Calendar implementation for tests: one
// event per weekday at a fixed time-of-day, in a fixed location, minus an
// optional set of holiday dates. It is not a production calendar — real
// calendar construction is an external collaborator — but it is
// enough to exercise CompletionChecker against a calendar-driven cadence.
type BusinessDayCalendar struct {
	Location *time.Location
	Hour     int
	Minute   int
	Holidays map[string]bool // "2006-01-02" -> true
}

// NewBusinessDayCalendar builds a calendar with one event per weekday at
// hour:minute in loc, skipping the given holiday dates (YYYY-MM-DD).
func NewBusinessDayCalendar(loc *time.Location, hour, minute int, holidays ...string) *BusinessDayCalendar {
	h := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		h[d] = true
	}
	return &BusinessDayCalendar{Location: loc, Hour: hour, Minute: minute, Holidays: h}
}

func (c *BusinessDayCalendar) isSession(d time.Time) bool {
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	return !c.Holidays[d.Format("2006-01-02")]
}

func (c *BusinessDayCalendar) eventOn(d time.Time) Timestamp {
	local := time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, c.Location)
	return MustTimestamp(local)
}

// EventsIn implements Calendar.
func (c *BusinessDayCalendar) EventsIn(r TimeRange) []Timestamp {
	var out []Timestamp
	endLocal := r.End.Time().In(c.Location)
	day := r.Start.Time().In(c.Location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.Location)
	for !day.After(endLocal) {
		if c.isSession(day) {
			evt := c.eventOn(day)
			if r.Contains(evt) {
				out = append(out, evt)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// LastOnOrBefore implements Calendar.
func (c *BusinessDayCalendar) LastOnOrBefore(t Timestamp) (Timestamp, bool) {
	day := t.Time().In(c.Location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.Location)
	// Bound the backward scan: business calendars never have a gap wider than
	// a couple of weeks between sessions.
	for i := 0; i < 30; i++ {
		if c.isSession(day) {
			evt := c.eventOn(day)
			if !evt.After(t) {
				return evt, true
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	return Timestamp{}, false
}
