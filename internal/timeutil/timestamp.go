// Package timeutil implements the totally-ordered, timezone-qualified instants
// and half-open ranges the rest of the graph is built on.
package timeutil

import (
	"errors"
	"time"
)

// ErrNaiveTimestamp is returned when the zero-value time.Time (Go's stand-in for
// "no instant was ever set", since a time.Time always carries *some* location)
// is used to construct a Timestamp. The graph never accepts naive instants:
// equality and ordering are defined on the absolute instant, and an unset time
// carries no absolute instant.
var ErrNaiveTimestamp = errors.New("timeutil: naive timestamp (missing timezone)")

// Timestamp is a timezone-qualified instant. Two Timestamps are equal and ordered
// by their absolute instant, never by their presented wall-clock fields.
type Timestamp struct {
	t time.Time
}

// NewTimestamp wraps t as a Timestamp, rejecting the zero-value instant.
func NewTimestamp(t time.Time) (Timestamp, error) {
	if t.IsZero() {
		return Timestamp{}, ErrNaiveTimestamp
	}
	return Timestamp{t: t}, nil
}

// MustTimestamp is NewTimestamp but panics on a naive instant. Intended for
// tests and constant construction, never for values derived from user input.
func MustTimestamp(t time.Time) Timestamp {
	ts, err := NewTimestamp(t)
	if err != nil {
		panic(err)
	}
	return ts
}

// IsZero reports whether ts is the zero value (no instant set).
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Time returns the underlying time.Time.
func (ts Timestamp) Time() time.Time { return ts.t }

// Before reports whether ts is strictly before other, comparing absolute instants.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// After reports whether ts is strictly after other, comparing absolute instants.
func (ts Timestamp) After(other Timestamp) bool { return ts.t.After(other.t) }

// Equal reports whether ts and other denote the same absolute instant,
// regardless of which timezone each is expressed in.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// Compare returns -1, 0, or 1 as ts is before, equal to, or after other.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.Before(other):
		return -1
	case ts.After(other):
		return 1
	default:
		return 0
	}
}

// Add returns ts shifted by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp{t: ts.t.Add(d)}
}

// Sub returns the duration between ts and other (ts - other).
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return ts.t.Sub(other.t)
}

func (ts Timestamp) String() string {
	return ts.t.Format(time.RFC3339Nano)
}
