// Package notify publishes Runner node-outcome events on an in-process bus
// and delivers them to registered webhook subscribers.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"tsgraph/internal/metadata"
	"tsgraph/internal/runner"
)

// Event is a single terminal node outcome routed through the bus. It
// mirrors runner.NodeReport, plus a timestamp for delivery logs and the
// websocket feed.
type Event struct {
	NodeHash  metadata.Hash
	Name      string
	Outcome   runner.NodeOutcome
	Err       error
	Timestamp time.Time
}

// eventWire is Event's JSON shape: the hash hex-encoded for a stable,
// human-readable identifier and the error flattened to a string, since
// error has no exported fields for json.Marshal to see.
type eventWire struct {
	NodeHash  string `json:"node_hash"`
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	Err       string `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWire{
		NodeHash:  e.NodeHash.String(),
		Name:      e.Name,
		Outcome:   e.Outcome.String(),
		Timestamp: e.Timestamp,
	}
	if e.Err != nil {
		w.Err = e.Err.Error()
	}
	return json.Marshal(w)
}

// Bus is an in-process event bus routing Events to subscribers. It uses Go
// channels for delivery and is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	closed      bool
}

// NewBus creates a new Bus ready for use.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a channel to receive every Event published on the
// bus. The caller is responsible for creating the channel with sufficient
// buffer capacity; slow subscribers will have events dropped.
func (b *Bus) Subscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
}

// Publish sends evt to every subscriber. If a subscriber's channel is full,
// the event is dropped for that subscriber. Publish is a no-op after Close.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
}

// Close marks the bus as closed. After Close, Publish is a no-op. Close
// does not close subscriber channels; that is the caller's responsibility.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// PublishReport publishes one Event per node in report, in the order
// iterated. Callers that care about a stable order should sort report
// themselves before calling; the runner's own Report.Nodes is a map and so
// carries no ordering guarantee.
func (b *Bus) PublishReport(report *runner.Report) {
	for hash, nr := range report.Nodes {
		b.Publish(Event{
			NodeHash:  hash,
			Name:      nr.Name,
			Outcome:   nr.Outcome,
			Err:       nr.Err,
			Timestamp: time.Now(),
		})
	}
}
