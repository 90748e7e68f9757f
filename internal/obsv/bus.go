// Package obsv provides the engine's observability seam: a fan-out event
// bus satisfying fctx.EventPublisher, plus Prometheus metrics and
// OpenTelemetry tracing middleware for the executor pipeline.
//
// Grounded on smilemakc/mbflow's internal/infrastructure/monitoring
// package, generalized from its typed ExecutionObserver interface (one
// method per event kind, fixed argument lists) to the (eventType string,
// payload map[string]any) shape spec.md's event taxonomy already uses
// throughout fctx.EventPublisher, executor.Executor.publish, and
// internal/adapter's workflow:start/finish notifications — a single
// Subscriber signature handles every event kind rather than a growing
// interface, matching how the engine's event set is open-ended (new node
// strategies can publish new event types without touching this package).
package obsv

import "sync"

// Subscriber receives every event published on a Bus. eventType is one of
// the engine's taxonomy strings (workflow:start, workflow:finish,
// node:start, node:finish, node:error, node:retry, node:fallback,
// context:change, job:enqueued, job:processed, job:failed); payload is the
// event-specific detail map.
type Subscriber func(eventType string, payload map[string]any)

// Bus fans a published event out to every registered Subscriber,
// synchronously and in registration order, the same posture
// monitoring.ObserverManager's Notify* methods take under their RLock. It
// satisfies fctx.EventPublisher and executor.Executor's publisher seam
// without either package importing obsv.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int
}

// NewBus returns an empty Bus ready for subscribers.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns an unsubscribe func. Safe to call from
// inside a Publish callback (registration happens under a write lock taken
// independently of the read lock Publish holds while iterating).
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish implements fctx.EventPublisher, notifying every current
// subscriber. A subscriber added or removed mid-publish is not guaranteed
// to observe or miss this particular event (the snapshot is taken once,
// up front).
func (b *Bus) Publish(eventType string, payload map[string]any) {
	b.mu.RLock()
	snapshot := make([]Subscriber, 0, len(b.subscribers))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subscribers[id]; ok {
			snapshot = append(snapshot, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		fn(eventType, payload)
	}
}
