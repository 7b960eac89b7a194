package notify

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// Subscription routes terminal node outcomes whose Name has the given
// prefix to a registered webhook endpoint, filtered by dataset name prefix.
type Subscription struct {
	ID           string
	NamePrefix   string
	SubscriberID string // Delivery-backend application/subscriber id
	EndpointID   string
}

// Orchestrator connects a Bus to a Delivery backend: it consumes Events,
// matches them against registered Subscriptions, and delivers. Delivery
// failures are logged and counted but never propagate back into the
// Runner — notification is best-effort and must not affect scheduling.
type Orchestrator struct {
	bus      *Bus
	delivery Delivery
	events   chan Event

	mu   sync.RWMutex
	subs []Subscription

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewOrchestrator creates an Orchestrator subscribed to bus. Call Run in a
// goroutine to start consuming.
func NewOrchestrator(bus *Bus, delivery Delivery) *Orchestrator {
	ch := make(chan Event, 4096)
	o := &Orchestrator{bus: bus, delivery: delivery, events: ch}
	bus.Subscribe(ch)
	return o
}

// AddSubscription registers a new webhook subscription.
func (o *Orchestrator) AddSubscription(sub Subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, sub)
}

// RemoveSubscription unregisters a subscription by ID.
func (o *Orchestrator) RemoveSubscription(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.ID == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

// Counts returns the number of successful and failed deliveries so far, for
// the /status transport surface.
func (o *Orchestrator) Counts() (delivered, failed int64) {
	return o.delivered.Load(), o.failed.Load()
}

// Run consumes events from the bus until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	log.Println("[notify] orchestrator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[notify] orchestrator shutting down")
			return
		case evt := <-o.events:
			o.dispatch(ctx, evt)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, evt Event) {
	o.mu.RLock()
	matches := make([]Subscription, 0, len(o.subs))
	for _, s := range o.subs {
		if strings.HasPrefix(evt.Name, s.NamePrefix) {
			matches = append(matches, s)
		}
	}
	o.mu.RUnlock()

	for _, sub := range matches {
		if err := o.delivery.Send(ctx, sub.SubscriberID, evt); err != nil {
			o.failed.Add(1)
			log.Printf("[notify] delivery failed: sub=%s node=%x err=%v", sub.ID, evt.NodeHash, err)
			continue
		}
		o.delivered.Add(1)
	}
}
