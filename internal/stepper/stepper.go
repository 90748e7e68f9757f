// Package stepper drives a single run's traversal one node at a time
// instead of traverser.Orchestrator's continuously-scheduled concurrent
// frontier, so a caller (a debugger, an inspector, a test) can observe
// state between every node execution and rewind to an earlier point.
//
// Styled after smilemakc-mbflow's internal/application/executor test
// suite, which drives single nodes directly through the executor rather
// than through the full engine to assert on intermediate state —
// Stepper packages that same one-node-at-a-time rhythm as a reusable
// type instead of leaving it implicit in test-only call sequences.
package stepper

import (
	"context"
	"fmt"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
	"github.com/gorango/flowcraft/internal/fctx"
	"github.com/gorango/flowcraft/internal/traverser"
)

// Step records the outcome of one Next() call.
type Step struct {
	NodeID  string
	Result  *executor.Result
	Err     error
	Suspend *executor.Suspend
}

// snapshot is everything Prev/Reset need to restore: the traversal
// bookkeeping plus a copy of the context's state. The context itself is
// mutated in place during Next, so a snapshot taken before a step
// captures ToJSON() rather than holding a live reference.
type snapshot struct {
	blueprint *blueprint.Blueprint
	completed map[string]bool
	failed    map[string]bool
	state     map[string]any
	suspended bool
}

func (s snapshot) clone() snapshot {
	completed := make(map[string]bool, len(s.completed))
	for k, v := range s.completed {
		completed[k] = v
	}
	failed := make(map[string]bool, len(s.failed))
	for k, v := range s.failed {
		failed[k] = v
	}
	state := make(map[string]any, len(s.state))
	for k, v := range s.state {
		state[k] = v
	}
	return snapshot{blueprint: s.blueprint, completed: completed, failed: failed, state: state, suspended: s.suspended}
}

// Stepper runs bp's nodes one at a time, in the same deterministic
// blueprint-order-then-join-readiness scan traverser.Orchestrator uses
// for its own frontier, but synchronously and with no concurrency bound
// — exactly one node per Next() call — so every intermediate state is
// observable and reversible.
type Stepper struct {
	exec *executor.Executor
	eval evaluator.Evaluator
	join traverser.JoinEvaluator

	ctx     fctx.Context
	history []snapshot // history[0] is the initial state; history[len-1] is current
	steps   []Step     // steps[i] is what Next produced moving from history[i] to history[i+1]
}

// New returns a Stepper over bp, seeded with the given initial state.
func New(exec *executor.Executor, eval evaluator.Evaluator, bp *blueprint.Blueprint, initial map[string]any) *Stepper {
	nctx := fctx.NewSyncContext(initial)
	start := snapshot{
		blueprint: bp,
		completed: map[string]bool{},
		failed:    map[string]bool{},
		state:     nctx.ToJSON(),
	}
	return &Stepper{
		exec:    exec,
		eval:    eval,
		ctx:     nctx,
		history: []snapshot{start},
	}
}

func (s *Stepper) current() snapshot { return s.history[len(s.history)-1] }

// Done reports whether every terminal node has completed, or the run is
// suspended and cannot proceed without an external Resume.
func (s *Stepper) Done() bool {
	cur := s.current()
	if cur.suspended {
		return true
	}
	return allTerminalsCompleted(cur.blueprint, cur.completed)
}

func allTerminalsCompleted(bp *blueprint.Blueprint, completed map[string]bool) bool {
	terminals := bp.Analysis().TerminalNodeIDs
	if len(terminals) == 0 {
		return true
	}
	for _, id := range terminals {
		if !completed[id] {
			return false
		}
	}
	return true
}

// nextReady returns the first node (in blueprint order) whose join
// strategy is satisfied and that hasn't already completed or failed.
func (s *Stepper) nextReady() *blueprint.NodeDefinition {
	cur := s.current()
	for i := range cur.blueprint.Nodes {
		node := &cur.blueprint.Nodes[i]
		if cur.completed[node.ID] || cur.failed[node.ID] {
			continue
		}
		if s.join.Ready(cur.blueprint, node.ID, cur.completed) {
			return node
		}
	}
	return nil
}

// Next executes exactly one ready node and advances the Stepper's
// history by one snapshot. ok is false when there is no ready node
// (the run is complete, stalled, or suspended) — step is nil in that
// case.
func (s *Stepper) Next(ctx context.Context) (step *Step, ok bool, err error) {
	if s.Done() {
		return nil, false, nil
	}
	node := s.nextReady()
	if node == nil {
		return nil, false, nil
	}

	before := s.current().clone()
	cur := s.current()

	result, execErr := s.exec.Execute(ctx, node, cur.blueprint, s.ctx)

	next := before
	taken := &Step{NodeID: node.ID, Result: result, Err: execErr}

	switch {
	case execErr != nil:
		next.failed[node.ID] = true
	case result.Suspend != nil:
		next.completed[node.ID] = true
		next.suspended = true
		taken.Suspend = result.Suspend
	default:
		next.completed[node.ID] = true
		nexts := traverser.DetermineNextNodes(cur.blueprint, node.ID, result, s.ctx, s.eval)
		for _, n := range nexts {
			traverser.ApplyEdgeTransform(cur.blueprint, n.Edge, result, s.ctx, s.eval)
		}
		if len(result.DynamicNodes) > 0 || len(result.DynamicEdges) > 0 {
			next.blueprint = cur.blueprint.WithDynamicExtension(result.DynamicNodes, result.DynamicEdges)
		}
	}
	next.state = s.ctx.ToJSON()

	s.history = append(s.history, next)
	s.steps = append(s.steps, *taken)
	return taken, true, nil
}

// Prev undoes the last Next() call, restoring the context and
// traversal bookkeeping to the snapshot taken just before it. Returns
// false if already at the initial state.
func (s *Stepper) Prev() bool {
	if len(s.history) <= 1 {
		return false
	}
	s.history = s.history[:len(s.history)-1]
	s.steps = s.steps[:len(s.steps)-1]
	s.restore(s.current())
	return true
}

// Reset rewinds all the way back to the state New was constructed with,
// discarding every recorded step.
func (s *Stepper) Reset() {
	initial := s.history[0]
	s.history = s.history[:1]
	s.steps = nil
	s.restore(initial)
}

func (s *Stepper) restore(snap snapshot) {
	s.ctx = fctx.NewSyncContext(snap.state)
}

// Steps returns every step taken so far, in order.
func (s *Stepper) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Blueprint returns the current (possibly dynamically-extended)
// blueprint the Stepper is traversing.
func (s *Stepper) Blueprint() *blueprint.Blueprint { return s.current().blueprint }

// Context returns the Stepper's live Context, for inspecting state
// between steps.
func (s *Stepper) Context() fctx.Context { return s.ctx }

// Completed reports whether nodeID has completed.
func (s *Stepper) Completed(nodeID string) bool { return s.current().completed[nodeID] }

// Failed reports whether nodeID's last attempt returned an error.
func (s *Stepper) Failed(nodeID string) bool { return s.current().failed[nodeID] }

// Suspended reports whether the run is currently parked on a wait node.
func (s *Stepper) Suspended() bool { return s.current().suspended }

// ErrNoProgress is returned by Run when the stepper stalls before every
// terminal node completes (a join never satisfied, or a dependency
// cycle the blueprint analysis didn't already reject).
type ErrNoProgress struct{ At int }

func (e ErrNoProgress) Error() string {
	return fmt.Sprintf("stepper: no ready node after %d step(s); run stalled or is suspended", e.At)
}

// Run drives Next to completion, returning every step taken. It stops
// and returns ErrNoProgress if the run isn't Done() but no node is
// ready to execute.
func (s *Stepper) Run(ctx context.Context) ([]Step, error) {
	for {
		if s.Done() {
			return s.Steps(), nil
		}
		_, ok, err := s.Next(ctx)
		if err != nil {
			return s.Steps(), err
		}
		if !ok {
			return s.Steps(), ErrNoProgress{At: len(s.steps)}
		}
	}
}
