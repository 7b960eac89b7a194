package engine

import (
	"time"

	"tsgraph/internal/timeutil"
)

// chunkSize is the bucket width rows are grouped into for storage: a
// fixed stride keeps "which chunks does this read touch" a pure
// arithmetic question instead of a table scan.
const chunkSize = 30 * 24 * time.Hour

// chunkBucket returns the [start, end) bucket boundary that t falls into,
// aligned to the Unix epoch so bucket boundaries are stable across engines
// and processes.
func chunkBucket(t time.Time) (time.Time, time.Time) {
	unix := t.Unix()
	size := int64(chunkSize / time.Second)
	bucket := unix - (unix % size)
	if unix < 0 && unix%size != 0 {
		bucket -= size
	}
	start := time.Unix(bucket, 0).UTC()
	end := start.Add(chunkSize)
	return start, end
}

// bucketsBetween returns every chunk bucket start touching [from, to).
func bucketsBetween(from, to time.Time) []time.Time {
	if !to.After(from) {
		start, _ := chunkBucket(from)
		return []time.Time{start}
	}
	var out []time.Time
	cursor, _ := chunkBucket(from)
	for {
		out = append(out, cursor)
		_, end := chunkBucket(cursor)
		if !end.Before(to) {
			break
		}
		cursor = end
	}
	return out
}

// bucketsForRange returns the chunk bucket starts a read/write of r must touch.
func bucketsForRange(r timeutil.TimeRange) []time.Time {
	return bucketsBetween(r.Start.Time(), r.End.Time())
}
