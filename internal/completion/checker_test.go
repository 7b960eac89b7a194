package completion

import (
	"testing"
	"time"

	"tsgraph/internal/timeutil"
)

func ts(y, m, d, hh, mm int) timeutil.Timestamp {
	return timeutil.MustTimestamp(time.Date(y, time.Month(m), d, hh, mm, 0, 0, time.UTC))
}

// Scenario: completion on a holiday.
func TestCalendarCheckerHolidayScenario(t *testing.T) {
	target := timeutil.TimeRange{Start: ts(2019, 12, 23, 0, 0), End: ts(2019, 12, 27, 0, 0)}
	existing := &timeutil.Extent{First: ts(2019, 12, 20, 16, 30), Last: ts(2019, 12, 24, 16, 30)}

	noHolidays := timeutil.NewBusinessDayCalendar(time.UTC, 16, 30)
	checker := NewCalendarChecker(noHolidays)
	complete, err := checker.IsComplete(target, existing)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Fatal("expected incomplete: calendar expects entries through 2019-12-26 that are not stored")
	}

	withHoliday := timeutil.NewBusinessDayCalendar(time.UTC, 16, 30, "2019-12-25", "2019-12-26")
	checker2 := NewCalendarChecker(withHoliday)
	complete2, err := checker2.IsComplete(target, existing)
	if err != nil {
		t.Fatal(err)
	}
	if !complete2 {
		t.Fatal("expected complete against the same stored payload once 2019-12-25 and 2019-12-26 are holidays")
	}
}

// Scenario: strictest composite of two calendars.
func TestCompositeStrictestExpectedLastIsMin(t *testing.T) {
	cal15 := timeutil.NewBusinessDayCalendar(time.UTC, 15, 0)
	cal17 := timeutil.NewBusinessDayCalendar(time.UTC, 17, 0)

	composite := NewComposite(Strictest, NewCalendarChecker(cal15), NewCalendarChecker(cal17))

	target := timeutil.TimeRange{
		Start: ts(2020, 6, 1, 0, 0),
		End:   ts(2020, 6, 15, 18, 0), // a Monday 18:00
	}
	got, ok := composite.ExpectedLast(target)
	if !ok {
		t.Fatal("expected an expectation")
	}
	want := ts(2020, 6, 15, 15, 0)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestCompositeStrictestRequiresAllComplete(t *testing.T) {
	cal15 := timeutil.NewBusinessDayCalendar(time.UTC, 15, 0)
	cal17 := timeutil.NewBusinessDayCalendar(time.UTC, 17, 0)
	composite := NewComposite(Strictest, NewCalendarChecker(cal15), NewCalendarChecker(cal17))

	target := timeutil.TimeRange{Start: ts(2020, 6, 1, 0, 0), End: ts(2020, 6, 15, 18, 0)}
	// Data only reaches 16:00 on the target day: satisfies the 15:00 checker but not the 17:00 one.
	existing := &timeutil.Extent{First: ts(2020, 5, 1, 15, 0), Last: ts(2020, 6, 15, 16, 0)}

	complete, err := composite.IsComplete(target, existing)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Fatal("strictest composite must require every child complete")
	}
}

func TestIrregularCheckerOverlapOnly(t *testing.T) {
	checker := IrregularChecker{}
	target := timeutil.TimeRange{Start: ts(2020, 1, 1, 0, 0), End: ts(2020, 1, 2, 0, 0)}

	complete, err := checker.IsComplete(target, nil)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Fatal("no existing data must never be complete against a non-empty target")
	}

	overlap := &timeutil.Extent{First: ts(2019, 12, 31, 0, 0), Last: ts(2020, 1, 1, 12, 0)}
	complete, err = checker.IsComplete(target, overlap)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Fatal("expected complete: existing data overlaps target")
	}

	disjoint := &timeutil.Extent{First: ts(2018, 1, 1, 0, 0), Last: ts(2018, 1, 2, 0, 0)}
	complete, err = checker.IsComplete(target, disjoint)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Fatal("disjoint existing data must not be considered complete")
	}
}

func TestEmptyTargetAlwaysComplete(t *testing.T) {
	checker := IrregularChecker{}
	empty := timeutil.TimeRange{Start: ts(2020, 1, 1, 0, 0), End: ts(2020, 1, 1, 0, 0)}
	complete, err := checker.IsComplete(empty, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Fatal("an empty target must always be complete, even with no existing data")
	}
}

func TestMissingTimezoneIsFatal(t *testing.T) {
	checker := IrregularChecker{}
	naive := timeutil.TimeRange{}
	_, err := checker.IsComplete(naive, nil)
	if err != ErrMissingTimezone {
		t.Fatalf("expected ErrMissingTimezone, got %v", err)
	}
}
