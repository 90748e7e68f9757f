// Package storage provides the durable backing stores the engine needs
// once a run crosses process boundaries: run context key/value state
// (fctx.KVStore), blueprint lookup for a worker holding only a job
// envelope (adapter.BlueprintStore), and an append-only log of published
// events for audit/replay.
//
// Grounded on smilemakc-mbflow's internal/infrastructure/storage package:
// MemoryEventStore's mutex-guarded in-memory maps for the dev/test
// implementations here, and bun_store.go's bun.DB/pgdialect/pgdriver
// wiring for the Postgres-backed ones in postgres.go.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/gorango/flowcraft/internal/blueprint"
)

// MemoryKVStore is an in-memory fctx.KVStore for development and tests.
// Generalizes MemoryEventStore's sync.RWMutex-guarded map to an
// xsync.MapOf of per-run xsync.MapOf maps, the same xsync.MapOf type
// fctx.syncContext already uses for shared mutable run state, rather than
// introducing a second concurrency
// primitive style for the same kind of data.
type MemoryKVStore struct {
	runs *xsync.MapOf[string, *xsync.MapOf[string, any]]
}

// NewMemoryKVStore returns an empty MemoryKVStore.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{runs: xsync.NewMapOf[string, *xsync.MapOf[string, any]]()}
}

func (s *MemoryKVStore) runMap(runID string) *xsync.MapOf[string, any] {
	if m, ok := s.runs.Load(runID); ok {
		return m
	}
	// Racing callers may each build a fresh map here; LoadOrStore keeps
	// only the first one, so the discarded maps are harmless.
	actual, _ := s.runs.LoadOrStore(runID, xsync.NewMapOf[string, any]())
	return actual
}

func (s *MemoryKVStore) Get(ctx context.Context, runID, key string) (any, bool, error) {
	val, ok := s.runMap(runID).Load(key)
	return val, ok, nil
}

func (s *MemoryKVStore) Set(ctx context.Context, runID, key string, value any) error {
	s.runMap(runID).Store(key, value)
	return nil
}

func (s *MemoryKVStore) Delete(ctx context.Context, runID, key string) error {
	s.runMap(runID).Delete(key)
	return nil
}

func (s *MemoryKVStore) All(ctx context.Context, runID string) (map[string]any, error) {
	out := make(map[string]any)
	s.runMap(runID).Range(func(key string, value any) bool {
		out[key] = value
		return true
	})
	return out, nil
}

// MemoryBlueprintStore is an in-memory adapter.BlueprintStore for
// development, tests, and single-process deployments that load blueprints
// from files rather than a database.
type MemoryBlueprintStore struct {
	blueprints *xsync.MapOf[string, *blueprint.Blueprint]
}

// NewMemoryBlueprintStore returns an empty MemoryBlueprintStore.
func NewMemoryBlueprintStore() *MemoryBlueprintStore {
	return &MemoryBlueprintStore{blueprints: xsync.NewMapOf[string, *blueprint.Blueprint]()}
}

// Put registers bp under its own ID, overwriting any prior version.
// Callers needing to keep multiple historical versions addressable
// should key by ID+version themselves before calling Get. Takes ctx and
// returns error purely to stay interchangeable with PostgresBlueprintStore.
// Put behind a single BlueprintRepository interface — this implementation
// cannot itself fail.
func (s *MemoryBlueprintStore) Put(ctx context.Context, bp *blueprint.Blueprint) error {
	s.blueprints.Store(bp.ID, bp)
	return nil
}

func (s *MemoryBlueprintStore) Get(ctx context.Context, id string) (*blueprint.Blueprint, bool, error) {
	bp, ok := s.blueprints.Load(id)
	return bp, ok, nil
}

// LoggedEvent is one entry of a MemoryEventLog, the in-memory counterpart
// of the Postgres-backed EventLogModel.
type LoggedEvent struct {
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// MemoryEventLog is an in-memory append-only sink for published events,
// the in-memory counterpart of MemoryEventStore's events map keyed by
// execution/run rather than by a domain.Event hierarchy — this engine's
// events are the flat (type, payload) shape obsv.Bus already carries.
// Appends are a read-modify-write over the slice, so this uses a plain
// mutex rather than xsync.MapOf (which has no atomic append primitive),
// matching MemoryEventStore's own sync.RWMutex-guarded map.
type MemoryEventLog struct {
	mu     sync.RWMutex
	events map[string][]LoggedEvent
}

// NewMemoryEventLog returns an empty log. Subscribe it to an obsv.Bus via
// Record to capture every published event as it happens:
//
//	log := storage.NewMemoryEventLog()
//	bus.Subscribe(func(eventType string, payload map[string]any) {
//	    log.Record(runIDFromPayload(payload), eventType, payload)
//	})
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{events: make(map[string][]LoggedEvent)}
}

// Record appends one event under runID.
func (l *MemoryEventLog) Record(runID, eventType string, payload map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[runID] = append(l.events[runID], LoggedEvent{Type: eventType, Payload: payload, Timestamp: time.Now()})
}

// Events returns a copy of runID's recorded events in append order.
func (l *MemoryEventLog) Events(runID string) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	existing := l.events[runID]
	out := make([]LoggedEvent, len(existing))
	copy(out, existing)
	return out
}
