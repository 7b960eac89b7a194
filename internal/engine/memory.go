package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tsgraph/internal/metadata"
	"tsgraph/internal/param"
	"tsgraph/internal/timeutil"
)

// entry pairs a stored metadata with its payload, guarded by its own
// reader-writer lock so operations on different datasets never contend with
// each other (the concurrency guarantee).
type entry struct {
	mu      sync.RWMutex
	md      *metadata.Metadata
	payload Payload
}

// MemoryEngine is the hash-backed in-memory PersistenceEngine
// implementation: a map from metadata hash to (metadata, payload), one
// RWMutex per key. Intended for tests and single-process use.
type MemoryEngine struct {
	id string

	mu      sync.Mutex // guards the top-level map only, not individual entries
	entries map[metadata.Hash]*entry
}

var _ Engine = (*MemoryEngine)(nil)

// NewMemoryEngine builds a MemoryEngine identified by id (e.g.
// "memory:research"). Two MemoryEngine instances, even with identical
// content, are distinct identities.
func NewMemoryEngine(id string) *MemoryEngine {
	return &MemoryEngine{id: id, entries: make(map[metadata.Hash]*entry)}
}

func (e *MemoryEngine) ID() string { return e.id }

func (e *MemoryEngine) lookup(md *metadata.Metadata) *entry {
	h := md.Hash()
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[h]
	if !ok {
		return nil
	}
	return ent
}

func (e *MemoryEngine) lookupOrCreate(md *metadata.Metadata) *entry {
	h := md.Hash()
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[h]
	if !ok {
		ent = &entry{md: md}
		e.entries[h] = ent
	}
	return ent
}

func (e *MemoryEngine) Exists(_ context.Context, md *metadata.Metadata) (bool, error) {
	ent := e.lookup(md)
	if ent == nil {
		return false, nil
	}
	ent.mu.RLock()
	defer ent.mu.RUnlock()
	return len(ent.payload.Rows) > 0 || len(ent.payload.Blob) > 0, nil
}

func (e *MemoryEngine) GetStub(_ context.Context, md *metadata.Metadata) (*metadata.Stub, error) {
	return metadata.StubOf(md), nil
}

func (e *MemoryEngine) Read(_ context.Context, md *metadata.Metadata, r *timeutil.TimeRange) (Payload, error) {
	ent := e.lookup(md)
	if ent == nil {
		return Payload{}, NotFound(md)
	}
	ent.mu.RLock()
	defer ent.mu.RUnlock()
	if len(ent.payload.Rows) == 0 && len(ent.payload.Blob) == 0 {
		return Payload{}, NotFound(md)
	}
	if r == nil {
		return clonePayload(ent.payload), nil
	}
	return ent.payload.Slice(*r), nil
}

func (e *MemoryEngine) Range(_ context.Context, md *metadata.Metadata) (timeutil.Extent, bool, error) {
	ent := e.lookup(md)
	if ent == nil {
		return timeutil.Extent{}, false, nil
	}
	ent.mu.RLock()
	defer ent.mu.RUnlock()
	ext, ok := ent.payload.Extent()
	return ext, ok, nil
}

func (e *MemoryEngine) Append(_ context.Context, md *metadata.Metadata, p Payload) error {
	ent := e.lookupOrCreate(md)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if len(p.Rows) == 0 {
		return nil
	}
	if len(ent.payload.Rows) > 0 {
		existingMax := ent.payload.Rows[len(ent.payload.Rows)-1].Timestamp
		if !p.Rows[0].Timestamp.After(existingMax) {
			return AppendOverlap(p.Rows[0].Timestamp, existingMax)
		}
	}
	if err := requireIncreasing(p.Rows); err != nil {
		return err
	}
	ent.payload.Rows = append(ent.payload.Rows, p.Rows...)
	return nil
}

func (e *MemoryEngine) Merge(_ context.Context, md *metadata.Metadata, p Payload) error {
	ent := e.lookupOrCreate(md)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	merged := make(map[int64]Row, len(ent.payload.Rows)+len(p.Rows))
	order := make([]int64, 0, len(ent.payload.Rows)+len(p.Rows))
	// Existing rows claim their slot first: existing-wins on overlap
	// (combine-first semantics).
	for _, row := range ent.payload.Rows {
		key := row.Timestamp.Time().UnixNano()
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = row
	}
	for _, row := range p.Rows {
		key := row.Timestamp.Time().UnixNano()
		if _, ok := merged[key]; !ok {
			order = append(order, key)
			merged[key] = row
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Row, len(order))
	for i, k := range order {
		out[i] = merged[k]
	}
	ent.payload.Rows = out
	return nil
}

func (e *MemoryEngine) Replace(_ context.Context, md *metadata.Metadata, p Payload) error {
	ent := e.lookupOrCreate(md)
	if err := requireIncreasing(p.Rows); err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	// Copy-and-swap: the payload field is only ever overwritten wholesale
	// under the lock, so readers never observe a torn payload.
	ent.payload = clonePayload(p)
	return nil
}

func (e *MemoryEngine) Delete(_ context.Context, md *metadata.Metadata, r *timeutil.TimeRange) error {
	h := md.Hash()
	if r == nil {
		e.mu.Lock()
		delete(e.entries, h)
		e.mu.Unlock()
		return nil
	}
	ent := e.lookup(md)
	if ent == nil {
		return nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	var kept []Row
	for _, row := range ent.payload.Rows {
		if !r.Contains(row.Timestamp) {
			kept = append(kept, row)
		}
	}
	ent.payload.Rows = kept
	return nil
}

func (e *MemoryEngine) Query(_ context.Context, name string, params map[string]interface{}) ([]*metadata.Stub, error) {
	e.mu.Lock()
	ents := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		ents = append(ents, ent)
	}
	e.mu.Unlock()

	var out []*metadata.Stub
	for _, ent := range ents {
		ent.mu.RLock()
		md := ent.md
		empty := len(ent.payload.Rows) == 0 && len(ent.payload.Blob) == 0
		ent.mu.RUnlock()
		if empty {
			continue
		}
		if name != "" && md.Name != name {
			continue
		}
		if !paramsMatch(md, params) {
			continue
		}
		out = append(out, metadata.StubOf(md))
	}
	return out, nil
}

func paramsMatch(md *metadata.Metadata, params map[string]interface{}) bool {
	if len(params) == 0 {
		return true
	}
	byKey := make(map[string]param.Value, len(md.Params.MapEntries()))
	for _, e := range md.Params.MapEntries() {
		byKey[e.Key] = e.Value
	}
	for k, raw := range params {
		stored, ok := byKey[k]
		if !ok {
			return false
		}
		want, err := param.Normalise(raw)
		if err != nil || !want.Equal(stored) {
			return false
		}
	}
	return true
}

func requireIncreasing(rows []Row) error {
	for i := 1; i < len(rows); i++ {
		if !rows[i].Timestamp.After(rows[i-1].Timestamp) {
			return fmt.Errorf("engine: payload index must be strictly increasing (row %d)", i)
		}
	}
	return nil
}

func clonePayload(p Payload) Payload {
	out := Payload{Blob: append([]byte(nil), p.Blob...)}
	out.Rows = append([]Row(nil), p.Rows...)
	return out
}
