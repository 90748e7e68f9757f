// Package adapter implements the distributed adapter base algorithm:
// queue-agnostic job handling that lets a fleet of stateless workers drive
// one blueprint run to completion, coordinating fan-in arbitration and
// failure propagation through a small key/value coordination store instead
// of shared process memory, per spec.md §4.7.
//
// The teacher's root-level adapter.go (smilemakc/mbflow) is a CRUD storage
// adapter wrapping domain.Storage behind the public Storage interface — a
// persistence facade, not a job-queue distributed-execution adapter, so it
// is not this component's structural grounding. BaseAdapter is grounded
// instead on the algorithm spec.md §4.7 specifies directly, composed (not
// subclassed) the way the teacher composes its own executor/storage/queue
// pieces, with library-usage grounding drawn from goadesign-goa-ai's
// registry package (Redis-backed coordination: INCR/SETNX/EXPIRE/DEL
// patterns) and C360Studio-semspec's task-generator component (NATS
// JetStream consumer/fetch/ack patterns) for the two concrete bindings in
// the redisstore and natsqueue subpackages.
package adapter

import (
	"context"
	"time"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
	"github.com/gorango/flowcraft/internal/fctx"
	"github.com/gorango/flowcraft/internal/traverser"
)

// Job is the queue envelope: which run, against which pinned blueprint
// version, which node to execute next.
type Job struct {
	RunID       string
	BlueprintID string
	NodeID      string
}

// QueueBinding is the at-least-once job queue seam: Enqueue publishes one
// job, Consume runs handler for every delivered job until ctx is done. What
// happens to a job whose handler returns a non-nil error is the binding's
// redelivery policy; concrete bindings (natsqueue) own ack/nack.
type QueueBinding interface {
	Enqueue(ctx context.Context, job Job) error
	Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) error
}

// CoordinationStore is the five-primitive seam spec.md §4.7 specifies for
// fan-in arbitration and poison/cancellation pills. Implementations must
// make each primitive atomic; redisstore maps them directly onto
// INCR/SETNX/EXPIRE/DEL/GET.
type CoordinationStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetIfNotExist(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ExtendTTL(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// BlueprintStore resolves a blueprint by id for a worker that has only a
// job envelope, not an in-process reference.
type BlueprintStore interface {
	Get(ctx context.Context, id string) (*blueprint.Blueprint, bool, error)
}

// Option configures a BaseAdapter at construction, mirroring the
// executor/traverser packages' functional-options style.
type Option func(*BaseAdapter)

func WithPublisher(p fctx.EventPublisher) Option { return func(a *BaseAdapter) { a.publisher = p } }

// WithHeartbeatInterval overrides the default 30-minute TTL-extension
// cadence spec.md §4.7 step 4 describes.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *BaseAdapter) { a.heartbeatInterval = d }
}

// WithPillTTL overrides the default ~1h TTL spec.md §4.9 assigns to
// poison/cancel/joinlock/fanin keys.
func WithPillTTL(d time.Duration) Option { return func(a *BaseAdapter) { a.pillTTL = d } }

// WithNodelockTTL overrides the default short-lived reconciliation lock TTL.
func WithNodelockTTL(d time.Duration) Option { return func(a *BaseAdapter) { a.nodelockTTL = d } }

// BaseAdapter runs the queue-agnostic worker job handler and reconciliation
// algorithm against whatever QueueBinding/CoordinationStore/BlueprintStore/
// fctx.KVStore the caller wires in. It reuses the same executor.Executor
// pipeline an in-process Runtime would use (spec.md §4.7 step 5: "Execute
// the node via the same executeNode pipeline"), so a node's strategy code
// cannot tell whether it's running in-process or distributed.
type BaseAdapter struct {
	queue      QueueBinding
	coord      CoordinationStore
	blueprints BlueprintStore
	store      fctx.KVStore
	exec       *executor.Executor
	eval       evaluator.Evaluator
	publisher  fctx.EventPublisher

	heartbeatInterval time.Duration
	pillTTL           time.Duration
	nodelockTTL       time.Duration
}

// New constructs a BaseAdapter. exec must already have its registry (and
// any middleware/retry/circuit-breaker configuration) wired, exactly as a
// Runtime's Executor would be.
func New(queue QueueBinding, coord CoordinationStore, blueprints BlueprintStore, store fctx.KVStore, exec *executor.Executor, eval evaluator.Evaluator, opts ...Option) *BaseAdapter {
	a := &BaseAdapter{
		queue:             queue,
		coord:             coord,
		blueprints:        blueprints,
		store:             store,
		exec:              exec,
		eval:              eval,
		heartbeatInterval: 30 * time.Minute,
		pillTTL:           time.Hour,
		nodelockTTL:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartRun implements the client-side start: seed the shared context with
// blueprintId/blueprintVersion plus the caller's initial state, then
// enqueue a job for every start node, per spec.md §4.7 "Client-side start".
func (a *BaseAdapter) StartRun(ctx context.Context, runID string, bp *blueprint.Blueprint, initialState map[string]any) error {
	asyncCtx := fctx.NewAsyncContext(a.store, runID)
	for k, v := range initialState {
		if err := asyncCtx.Set(ctx, k, v); err != nil {
			return err
		}
	}
	if err := asyncCtx.Set(ctx, "blueprintId", bp.ID); err != nil {
		return err
	}
	if err := asyncCtx.Set(ctx, "blueprintVersion", bp.Metadata.Version); err != nil {
		return err
	}

	for _, startID := range bp.Analysis().StartNodeIDs {
		if err := a.enqueue(ctx, runID, bp.ID, startID); err != nil {
			return err
		}
	}
	return nil
}

// Consume runs the worker job handler loop until ctx is done; it is the
// entry point a worker process calls once per QueueBinding it owns.
func (a *BaseAdapter) Consume(ctx context.Context) error {
	return a.queue.Consume(ctx, a.HandleJob)
}

// HandleJob implements the nine-step worker job handler of spec.md §4.7
// for a single job.
func (a *BaseAdapter) HandleJob(ctx context.Context, job Job) error {
	// Step 1: fetch blueprint by id.
	bp, ok, err := a.blueprints.Get(ctx, job.BlueprintID)
	if err != nil {
		return err
	}
	if !ok {
		a.publish("workflow:finish", map[string]any{"runId": job.RunID, "status": "failed", "reason": "blueprint not found: " + job.BlueprintID})
		return nil
	}

	asyncCtx := fctx.NewAsyncContext(a.store, job.RunID)

	// Step 2: version compatibility check — reject without ack-failing
	// (drop, don't requeue) on mismatch.
	if storedVersion, ok, err := asyncCtx.Get(ctx, "blueprintVersion"); err != nil {
		return err
	} else if ok {
		if v, _ := storedVersion.(string); v != "" && v != bp.Metadata.Version {
			a.publish("workflow:finish", map[string]any{"runId": job.RunID, "status": "failed", "reason": "blueprint version mismatch"})
			return nil
		}
	}

	// Step 3: persist {blueprintId, blueprintVersion} if not yet present,
	// and write the coordination-store fallback key.
	if _, ok, err := asyncCtx.Get(ctx, "blueprintId"); err != nil {
		return err
	} else if !ok {
		if err := asyncCtx.Set(ctx, "blueprintId", bp.ID); err != nil {
			return err
		}
		if err := asyncCtx.Set(ctx, "blueprintVersion", bp.Metadata.Version); err != nil {
			return err
		}
	}
	if _, err := a.coord.SetIfNotExist(ctx, blueprintKey(job.RunID), bp.ID+"@"+bp.Metadata.Version, a.pillTTL); err != nil {
		return err
	}

	// Step 4: heartbeat timer, extending this run's coordination keys
	// until the job finishes.
	stopHeartbeat := a.startHeartbeat(ctx, job.RunID)
	defer stopHeartbeat()

	node, ok := bp.Node(job.NodeID)
	if !ok {
		a.publish("workflow:finish", map[string]any{"runId": job.RunID, "status": "failed", "reason": "unknown node: " + job.NodeID})
		return nil
	}

	// Step 8 (poison check), done before executing a node that arrived as
	// a successor: a poisoned node must not run at all.
	if poisoned, err := a.checkPoison(ctx, job.RunID, job.NodeID); err != nil {
		return err
	} else if poisoned {
		a.cascadeFailure(ctx, bp, job.RunID, job.NodeID, "predecessor poisoned")
		return nil
	}

	// Run-level cancellation token (spec.md §5 "Cancellation semantics"):
	// the key is checked once here, before the node starts; it is not
	// surfaced through the ctx the node receives, so a node already
	// running does not observe a later cancellation.
	if _, cancelled, err := a.coord.Get(ctx, cancelRunKey(job.RunID)); err != nil {
		return err
	} else if cancelled {
		a.publish("workflow:finish", map[string]any{"runId": job.RunID, "status": "cancelled"})
		return nil
	}

	// Step 5: execute via the same pipeline an in-process run uses.
	snapshot, err := asyncCtx.ToJSON(ctx)
	if err != nil {
		return err
	}
	base := fctx.NewSyncContext(snapshot)
	tracked := fctx.NewTracked(base, job.NodeID, job.RunID, a.publisher)

	result, execErr := a.exec.Execute(ctx, node, bp, tracked)
	if execErr != nil {
		// Step 9: node failure — publish failed and poison/cancel every
		// successor so late arrivals don't stall or mis-fire.
		if deltas := tracked.GetDeltas(); len(deltas) > 0 {
			_ = asyncCtx.Patch(ctx, deltas)
		}
		a.cascadeFailure(ctx, bp, job.RunID, job.NodeID, execErr.Error())
		return nil
	}

	nexts := traverser.DetermineNextNodes(bp, job.NodeID, result, tracked, a.eval)
	for _, n := range nexts {
		traverser.ApplyEdgeTransform(bp, n.Edge, result, tracked, a.eval)
	}
	if deltas := tracked.GetDeltas(); len(deltas) > 0 {
		if err := asyncCtx.Patch(ctx, deltas); err != nil {
			return err
		}
		tracked.ClearDeltas()
	}

	// Step 6: terminal check.
	if isTerminal(bp, job.NodeID) {
		done, err := a.allTerminalsComplete(ctx, bp, asyncCtx)
		if err != nil {
			return err
		}
		if done {
			finalCtx, err := asyncCtx.ToJSON(ctx)
			if err != nil {
				return err
			}
			a.publish("workflow:finish", map[string]any{"runId": job.RunID, "status": "completed", "context": finalCtx})
			return nil
		}
	}

	// Step 7: fan-in arbitration per successor.
	for _, n := range nexts {
		if err := a.arbitrateAndEnqueue(ctx, bp, job.RunID, n.Node.ID); err != nil {
			return err
		}
	}
	return nil
}

// arbitrateAndEnqueue applies spec.md §4.7 step 7/8: a poison check, then
// join-strategy-specific arbitration, before enqueuing succID.
func (a *BaseAdapter) arbitrateAndEnqueue(ctx context.Context, bp *blueprint.Blueprint, runID, succID string) error {
	if poisoned, err := a.checkPoison(ctx, runID, succID); err != nil {
		return err
	} else if poisoned {
		a.cascadeFailure(ctx, bp, runID, succID, "predecessor poisoned")
		return nil
	}

	preds := bp.Analysis().Predecessors(succID)
	strategy := blueprint.JoinAll
	if node, ok := bp.Node(succID); ok && node.Config.JoinStrategy != "" {
		strategy = node.Config.JoinStrategy
	}

	switch {
	case strategy == blueprint.JoinAll && len(preds) > 1:
		count, err := a.coord.Increment(ctx, faninKey(runID, succID), a.pillTTL)
		if err != nil {
			return err
		}
		if count >= int64(len(preds)) {
			if err := a.coord.Delete(ctx, faninKey(runID, succID)); err != nil {
				return err
			}
			return a.enqueue(ctx, runID, bp.ID, succID)
		}
		return nil

	case strategy == blueprint.JoinAny && len(preds) > 1:
		acquired, err := a.coord.SetIfNotExist(ctx, joinlockKey(runID, succID), "locked", a.pillTTL)
		if err != nil {
			return err
		}
		if acquired {
			return a.enqueue(ctx, runID, bp.ID, succID)
		}
		if _, cancelled, err := a.coord.Get(ctx, cancelKey(runID, succID)); err != nil {
			return err
		} else if cancelled {
			a.publish("workflow:finish", map[string]any{"runId": runID, "status": "failed", "reason": "fan-in cancelled: " + succID})
		}
		return nil

	default: // single or zero predecessors
		return a.enqueue(ctx, runID, bp.ID, succID)
	}
}

// cascadeFailure publishes the failed event and writes a poison (all-join)
// or cancellation (any-join) pill for every direct successor of nodeID, so
// that branch never mistakenly enqueues or waits forever, per spec.md §4.7
// step 9.
func (a *BaseAdapter) cascadeFailure(ctx context.Context, bp *blueprint.Blueprint, runID, nodeID, reason string) {
	a.publish("node:error", map[string]any{"runId": runID, "nodeId": nodeID, "reason": reason})
	a.publish("workflow:finish", map[string]any{"runId": runID, "status": "failed", "reason": reason})
	for _, succID := range bp.Analysis().Successors(nodeID) {
		strategy := blueprint.JoinAll
		if node, ok := bp.Node(succID); ok && node.Config.JoinStrategy != "" {
			strategy = node.Config.JoinStrategy
		}
		if strategy == blueprint.JoinAny {
			_, _ = a.coord.SetIfNotExist(ctx, cancelKey(runID, succID), "cancelled", a.pillTTL)
		} else {
			_, _ = a.coord.SetIfNotExist(ctx, poisonKey(runID, succID), "poisoned", a.pillTTL)
		}
	}
}

// CancelRun writes the run-level cancellation key spec.md §5 describes
// (convention: flowcraft:cancel:<run>); subsequent HandleJob calls for this
// run observe it and stop without writing further outputs.
func (a *BaseAdapter) CancelRun(ctx context.Context, runID string) error {
	_, err := a.coord.SetIfNotExist(ctx, cancelRunKey(runID), "cancelled", a.pillTTL)
	return err
}

func (a *BaseAdapter) checkPoison(ctx context.Context, runID, nodeID string) (bool, error) {
	_, found, err := a.coord.Get(ctx, poisonKey(runID, nodeID))
	return found, err
}

func (a *BaseAdapter) allTerminalsComplete(ctx context.Context, bp *blueprint.Blueprint, asyncCtx fctx.AsyncContext) (bool, error) {
	terminals := bp.Analysis().TerminalNodeIDs
	if len(terminals) == 0 {
		return true, nil
	}
	for _, id := range terminals {
		if _, ok, err := asyncCtx.Get(ctx, "_outputs."+id); err != nil {
			return false, err
		} else if !ok {
			return false, nil
		}
	}
	return true, nil
}

func isTerminal(bp *blueprint.Blueprint, nodeID string) bool {
	for _, id := range bp.Analysis().TerminalNodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

func (a *BaseAdapter) enqueue(ctx context.Context, runID, blueprintID, nodeID string) error {
	return a.queue.Enqueue(ctx, Job{RunID: runID, BlueprintID: blueprintID, NodeID: nodeID})
}

func (a *BaseAdapter) startHeartbeat(ctx context.Context, runID string) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(a.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_ = a.coord.ExtendTTL(hbCtx, blueprintKey(runID), a.pillTTL)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *BaseAdapter) publish(eventType string, payload map[string]any) {
	if a.publisher != nil {
		a.publisher.Publish(eventType, payload)
	}
}

// Reconcile inspects the persisted context for runID, derives the
// completed set, and recomputes the frontier honoring each node's
// joinStrategy, enqueuing a job for every ready, non-poisoned frontier
// node under a short-lived reconciliation lock (or the permanent join
// lock for "any" joins), per spec.md §4.7 "Reconciliation". It returns
// the set of node IDs it enqueued.
func (a *BaseAdapter) Reconcile(ctx context.Context, runID string, bp *blueprint.Blueprint) ([]string, error) {
	asyncCtx := fctx.NewAsyncContext(a.store, runID)
	completed := make(map[string]bool)
	for _, n := range bp.Nodes {
		if _, ok, err := asyncCtx.Get(ctx, "_outputs."+n.ID); err != nil {
			return nil, err
		} else if ok {
			completed[n.ID] = true
		}
	}

	var join traverser.JoinEvaluator
	var enqueued []string
	for _, n := range bp.Nodes {
		if completed[n.ID] {
			continue
		}
		if poisoned, err := a.checkPoison(ctx, runID, n.ID); err != nil {
			return nil, err
		} else if poisoned {
			continue
		}
		if !join.Ready(bp, n.ID, completed) {
			continue
		}

		strategy := blueprint.JoinAll
		if n.Config.JoinStrategy != "" {
			strategy = n.Config.JoinStrategy
		}
		preds := bp.Analysis().Predecessors(n.ID)

		var lockKey string
		var ttl time.Duration
		if strategy == blueprint.JoinAny && len(preds) > 1 {
			lockKey, ttl = joinlockKey(runID, n.ID), a.pillTTL
		} else {
			lockKey, ttl = nodelockKey(runID, n.ID), a.nodelockTTL
		}

		acquired, err := a.coord.SetIfNotExist(ctx, lockKey, "locked", ttl)
		if err != nil {
			return nil, err
		}
		if !acquired {
			continue
		}
		if err := a.enqueue(ctx, runID, bp.ID, n.ID); err != nil {
			return nil, err
		}
		enqueued = append(enqueued, n.ID)
	}
	return enqueued, nil
}

func blueprintKey(runID string) string   { return "flowcraft:blueprint:" + runID }
func faninKey(runID, node string) string { return "flowcraft:fanin:" + runID + ":" + node }
func joinlockKey(runID, node string) string {
	return "flowcraft:joinlock:" + runID + ":" + node
}
func poisonKey(runID, node string) string {
	return "flowcraft:fanin:poison:" + runID + ":" + node
}
func cancelKey(runID, node string) string {
	return "flowcraft:fanin:cancel:" + runID + ":" + node
}
func nodelockKey(runID, node string) string {
	return "flowcraft:nodelock:" + runID + ":" + node
}
func cancelRunKey(runID string) string { return "flowcraft:cancel:" + runID }
