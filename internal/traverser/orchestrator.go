package traverser

import (
	"context"
	"sync"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
	"github.com/gorango/flowcraft/internal/fctx"
)

// Status is a completed or stopped run's final disposition.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusStalled   Status = "stalled"
	StatusError     Status = "error"
	StatusAwaiting  Status = "awaiting"
)

// RunResult is what Orchestrator.Run returns once the graph has no more
// work, stalls, is cancelled, or suspends on a wait node.
type RunResult struct {
	Status Status
	Errors []error
	// Blueprint is the final (possibly dynamically-extended) blueprint the
	// run finished against.
	Blueprint *blueprint.Blueprint
	// AwaitingNodeID and Suspend are set only when Status == StatusAwaiting,
	// identifying which node suspended and why, for a caller (Runtime) to
	// register with a scheduler.
	AwaitingNodeID string
	Suspend        *executor.Suspend
}

// Orchestrator drives a single run's traversal: maintains the completed
// set, computes the ready frontier each tick, launches nodes within a
// concurrency bound, applies edge routing between completions, and
// honors dynamic node injection and cancellation.
//
// Grounded on smilemakc/mbflow's
// backend/internal/application/engine/dag_executor.go wave-based
// scheduler, generalized from fixed topological waves (which cannot
// express dynamic node injection or mid-run cycles from the loop
// strategy) to a continuously-recomputed frontier per spec.md §4.5.
type Orchestrator struct {
	exec        *executor.Executor
	eval        evaluator.Evaluator
	concurrency int
	publisher   fctx.EventPublisher
	join        JoinEvaluator
}

func New(exec *executor.Executor, eval evaluator.Evaluator, concurrency int, publisher fctx.EventPublisher) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Orchestrator{exec: exec, eval: eval, concurrency: concurrency, publisher: publisher}
}

type completion struct {
	nodeID string
	result *executor.Result
	err    error
}

// Run traverses bp starting from its start nodes, reading/writing state
// through nctx, until no work remains, the graph stalls, ctx is
// cancelled, or a wait node suspends the run.
func (o *Orchestrator) Run(ctx context.Context, bp *blueprint.Blueprint, nctx fctx.Context) (*RunResult, error) {
	var mu sync.Mutex
	completedSet := make(map[string]bool)
	failedSet := make(map[string]bool)
	inFlight := make(map[string]bool)
	active := 0
	var runErrors []error
	cur := bp

	results := make(chan completion)

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		snapshot := cur
		for i := range snapshot.Nodes {
			if active >= o.concurrency {
				return
			}
			node := &snapshot.Nodes[i]
			if completedSet[node.ID] || inFlight[node.ID] || failedSet[node.ID] {
				continue
			}
			if !o.join.Ready(snapshot, node.ID, completedSet) {
				continue
			}
			inFlight[node.ID] = true
			active++
			go func(node *blueprint.NodeDefinition, bp *blueprint.Blueprint) {
				result, err := o.exec.Execute(ctx, node, bp, nctx)
				results <- completion{nodeID: node.ID, result: result, err: err}
			}(node, snapshot)
		}
	}

	schedule()

	for {
		mu.Lock()
		done := allTerminalsCompleted(cur, completedSet)
		idle := active == 0
		mu.Unlock()

		if done {
			mu.Lock()
			status := StatusCompleted
			if len(runErrors) > 0 {
				status = StatusError
			}
			result := &RunResult{Status: status, Errors: runErrors, Blueprint: cur}
			mu.Unlock()
			return result, nil
		}
		if idle {
			mu.Lock()
			status := StatusStalled
			if len(runErrors) > 0 {
				status = StatusError
			}
			result := &RunResult{Status: status, Errors: runErrors, Blueprint: cur}
			mu.Unlock()
			return result, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return &RunResult{Status: StatusCancelled, Errors: runErrors, Blueprint: cur}, ctx.Err()
		case c := <-results:
			mu.Lock()
			active--
			delete(inFlight, c.nodeID)

			if c.err != nil {
				failedSet[c.nodeID] = true
				runErrors = append(runErrors, c.err)
				mu.Unlock()
				schedule()
				continue
			}

			completedSet[c.nodeID] = true

			if c.result.Suspend != nil {
				result := &RunResult{
					Status:         StatusAwaiting,
					Errors:         runErrors,
					Blueprint:      cur,
					AwaitingNodeID: c.nodeID,
					Suspend:        c.result.Suspend,
				}
				mu.Unlock()
				return result, nil
			}

			nexts := DetermineNextNodes(cur, c.nodeID, c.result, nctx, o.eval)
			for _, n := range nexts {
				ApplyEdgeTransform(cur, n.Edge, c.result, nctx, o.eval)
			}
			if len(c.result.DynamicNodes) > 0 || len(c.result.DynamicEdges) > 0 {
				cur = cur.WithDynamicExtension(c.result.DynamicNodes, c.result.DynamicEdges)
			}
			mu.Unlock()
			schedule()
		}
	}
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
