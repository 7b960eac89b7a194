package graph

import (
	"time"

	"tsgraph/internal/timeutil"
)

// Dependency is an edge from a child Task to a parent Task, carrying the
// lookback window and inheritance flag the parent contributes to the
// child's default checker.
type Dependency struct {
	Task             *Task
	Lookback         time.Duration
	InheritFrequency bool
}

// Lift turns a bare Task into the default Dependency a child sees when it
// names a Task directly instead of an explicit Dependency: zero lookback,
// inheriting the parent's frequency.
func Lift(t *Task) *Dependency {
	return &Dependency{Task: t, InheritFrequency: true}
}

// FetchRange returns the window this dependency should be read over for a
// child run whose missing range is childMissing: the same end, shifted back
// by Lookback at the start.
func (d *Dependency) FetchRange(childMissing timeutil.TimeRange) timeutil.TimeRange {
	return childMissing.ShiftStartBack(d.Lookback)
}
