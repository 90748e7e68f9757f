// Package scheduler tracks workflows suspended on a "wait" node
// (sleep/waitForEvent/waitForWebhook) and resumes them: a periodic tick
// scans for expired sleep timers, and an explicit Resume call handles
// externally-delivered events/webhooks, per spec.md §4.8.
//
// Grounded on smilemakc/mbflow's internal/application/executor/
// trigger_manager.go: AutoTriggerScheduler's ticker-driven poll loop
// (generalized from "scan registered triggers for auto-fire" to "scan the
// awaiting index for resumeAt <= now") and TriggerManager's
// mutex-guarded-map bookkeeping style.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gorango/flowcraft/internal/executor"
)

// Entry is one suspended node: the run/node pair it suspended at, why,
// and (for a sleep) when it should wake.
type Entry struct {
	RunID     string
	NodeID    string
	Reason    string
	EventName string
	WebhookID string
	ResumeAt  *time.Time
}

// ResumeFunc is invoked when an Entry is ready to resume, either because
// its sleep timer expired or because an external event/webhook arrived.
// payload is nil for a timer-expiry resume.
type ResumeFunc func(ctx context.Context, runID, nodeID string, payload any) error

// Scheduler holds the {runId -> awaitingNodeId, resumeAt?} index spec.md
// §4.8 describes and drives a periodic tick over it.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	awaiting map[string]*Entry
	onResume ResumeFunc

	cancel context.CancelFunc
	done   chan struct{}
}

func key(runID, nodeID string) string { return runID + "/" + nodeID }

// New returns a Scheduler that ticks every interval (100ms in tests,
// seconds in production per spec.md §4.8) and calls onResume for each
// entry whose wake-up fires.
func New(clock Clock, interval time.Duration, onResume ResumeFunc) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		awaiting: make(map[string]*Entry),
		onResume: onResume,
	}
}

// Await registers a run/node as suspended per the Suspend marker a "wait"
// strategy returned. A "sleep" suspend gets a concrete resumeAt; other
// reasons wait indefinitely for an explicit Resume call.
func (s *Scheduler) Await(runID, nodeID string, suspend *executor.Suspend) {
	entry := &Entry{
		RunID:     runID,
		NodeID:    nodeID,
		Reason:    suspend.Reason,
		EventName: suspend.EventName,
		WebhookID: suspend.WebhookID,
	}
	if suspend.Reason == "sleep" {
		at := s.clock.Now().Add(suspend.Duration)
		entry.ResumeAt = &at
	}

	s.mu.Lock()
	s.awaiting[key(runID, nodeID)] = entry
	s.mu.Unlock()
}

// IsAwaiting reports whether runID/nodeID is currently suspended.
func (s *Scheduler) IsAwaiting(runID, nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.awaiting[key(runID, nodeID)]
	return ok
}

// Resume explicitly resumes a run/node suspended on waitForEvent or
// waitForWebhook (or, equivalently, forces an early sleep resume),
// delivering payload to onResume. Returns an error if the pair isn't
// currently awaiting.
func (s *Scheduler) Resume(ctx context.Context, runID, nodeID string, payload any) error {
	s.mu.Lock()
	k := key(runID, nodeID)
	_, ok := s.awaiting[k]
	if ok {
		delete(s.awaiting, k)
	}
	s.mu.Unlock()

	if !ok {
		return errNotAwaiting(runID, nodeID)
	}
	return s.onResume(ctx, runID, nodeID, payload)
}

// Start launches the periodic tick in a background goroutine; it returns
// immediately. Stop (or cancelling ctx) ends it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop ends the periodic tick and waits for the background loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick scans the awaiting index for expired sleep timers and resumes
// each one; it does not touch event/webhook entries, which only resume
// via an explicit Resume call.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*Entry
	for k, e := range s.awaiting {
		if e.ResumeAt != nil && !e.ResumeAt.After(now) {
			due = append(due, e)
			delete(s.awaiting, k)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		_ = s.onResume(ctx, e.RunID, e.NodeID, nil)
	}
}

type notAwaitingError struct{ runID, nodeID string }

func (e notAwaitingError) Error() string {
	return "scheduler: " + e.runID + "/" + e.nodeID + " is not awaiting"
}

func errNotAwaiting(runID, nodeID string) error {
	return notAwaitingError{runID: runID, nodeID: nodeID}
}
