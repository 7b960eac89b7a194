// Package engine implements the pluggable PersistenceEngine contract:
// exists/read/append/merge/replace/delete/query over content-addressed
// dataset metadata, plus two conforming implementations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tsgraph/internal/metadata"
	"tsgraph/internal/timeutil"
)

// Code is the structured error taxonomy engines report on the wire
// (reads and writes).
type Code int

const (
	CodeNotFound Code = iota
	CodeAppendOverlap
	CodeConflict
	CodeTransient
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAppendOverlap:
		return "AppendOverlap"
	case CodeConflict:
		return "Conflict"
	case CodeTransient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// Error is the structured error every engine operation that can fail returns.
type Error struct {
	Code       Code
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("engine: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a CodeNotFound Error.
func NotFound(md *metadata.Metadata) error {
	return &Error{Code: CodeNotFound, Err: fmt.Errorf("dataset %s not found", md.Hash())}
}

// AppendOverlap builds a CodeAppendOverlap Error — fatal for the task that
// triggered it, never silently downgraded to merge.
func AppendOverlap(newStart, existingMax timeutil.Timestamp) error {
	return &Error{Code: CodeAppendOverlap, Err: fmt.Errorf("append start %s is not strictly after existing max %s", newStart, existingMax)}
}

// Transient builds a CodeTransient Error carrying a suggested retry delay.
func Transient(retryAfter time.Duration, cause error) error {
	return &Error{Code: CodeTransient, RetryAfter: retryAfter, Err: cause}
}

// IsNotFound reports whether err (or something it wraps) is a CodeNotFound Error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNotFound
}

// IsAppendOverlap reports whether err is a CodeAppendOverlap Error.
func IsAppendOverlap(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeAppendOverlap
}

// Payload is an opaque time-indexed or static blob. The engine never
// interprets its contents beyond the Rows view used for index bookkeeping;
// actual row shape (DataFrame-like or otherwise) is the caller's concern
// (out of scope).
type Payload struct {
	// Rows holds one entry per index position, sorted ascending by
	// Timestamp. Empty for a pure-static payload, where only Blob is set.
	Rows []Row
	// Blob is the opaque static-node payload (used when the owning
	// metadata is Static).
	Blob []byte
}

// Row is one timestamped record. Value is opaque to the engine.
type Row struct {
	Timestamp timeutil.Timestamp
	Value     interface{}
}

// Extent returns the inclusive [First, Last] span of p's rows, or ok=false if
// p has no rows.
func (p Payload) Extent() (timeutil.Extent, bool) {
	if len(p.Rows) == 0 {
		return timeutil.Extent{}, false
	}
	return timeutil.Extent{First: p.Rows[0].Timestamp, Last: p.Rows[len(p.Rows)-1].Timestamp}, true
}

// Slice returns the subset of p.Rows within r, preserving order.
func (p Payload) Slice(r timeutil.TimeRange) Payload {
	out := Payload{Blob: p.Blob}
	for _, row := range p.Rows {
		if r.Contains(row.Timestamp) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Engine is the capability-set every persistence backend implements
// Implementations must be safe for concurrent use, and must
// guarantee that a single metadata's operations are linearisable against
// each other; writes to different metadata are independent.
type Engine interface {
	// ID is this engine's opaque identity; it becomes part of every
	// dataset's metadata (engine_id) and is never derived from
	// content (engines are compared by identity).
	ID() string

	Exists(ctx context.Context, md *metadata.Metadata) (bool, error)
	GetStub(ctx context.Context, md *metadata.Metadata) (*metadata.Stub, error)

	// Read returns the payload restricted to r, or the full payload if r is
	// nil. Returns a NotFound Error if nothing is stored for md.
	Read(ctx context.Context, md *metadata.Metadata, r *timeutil.TimeRange) (Payload, error)

	// Range returns the stored index extent, or ok=false if nothing is
	// stored. Intended to be O(1).
	Range(ctx context.Context, md *metadata.Metadata) (timeutil.Extent, bool, error)

	// Append requires the smallest new row's timestamp to be strictly
	// greater than the current max; otherwise it returns an
	// AppendOverlap Error and writes nothing.
	Append(ctx context.Context, md *metadata.Metadata, p Payload) error

	// Merge combines new rows into existing storage, existing-wins on
	// overlap (combine-first semantics).
	Merge(ctx context.Context, md *metadata.Metadata, p Payload) error

	// Replace atomically swaps the entire stored payload: readers observe
	// the old payload or the new one, never a splice.
	Replace(ctx context.Context, md *metadata.Metadata, p Payload) error

	// Delete drops rows within r, or the whole node if r is nil.
	Delete(ctx context.Context, md *metadata.Metadata, r *timeutil.TimeRange) error

	// Query returns stubs of stored datasets matching name (exact, empty
	// matches any) and params (subset match on keys and values, nil matches
	// any).
	Query(ctx context.Context, name string, params map[string]interface{}) ([]*metadata.Stub, error)
}
