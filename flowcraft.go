// Package flowcraft is the top-level runtime façade: it binds a blueprint,
// initial state, and run options into a single traversal, owning the
// effective strategy/function registry, the middleware chain, and the
// event bus.
//
// Grounded on smilemakc/mbflow's root-level mbflow.go/factory.go/executor.go,
// generalized from that file's persistence-oriented Workflow/Execution/
// Storage façade types down to a single run-oriented Runtime per spec.md
// §4.6: one entry point (Run), plus the lower-level primitives
// (ExecuteNode, DetermineNextNodes, ApplyEdgeTransform) a distributed
// adapter drives traversal with instead of the in-process loop.
package flowcraft

import (
	"context"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/errs"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
	"github.com/gorango/flowcraft/internal/fctx"
	"github.com/gorango/flowcraft/internal/serializer"
	"github.com/gorango/flowcraft/internal/traverser"
)

// Status mirrors traverser.Status at the façade boundary so callers need
// not import the internal package to compare a result's status.
type Status = traverser.Status

const (
	StatusCompleted = traverser.StatusCompleted
	StatusCancelled = traverser.StatusCancelled
	StatusStalled   = traverser.StatusStalled
	StatusError     = traverser.StatusError
	StatusAwaiting  = traverser.StatusAwaiting
)

// WorkflowResult is what Runtime.Run produces once a run finishes, stalls,
// is cancelled, or suspends on a wait node, per spec.md §4.6.
type WorkflowResult struct {
	Status            Status
	Context           map[string]any
	SerializedContext []byte
	Errors            []error
	Blueprint         *blueprint.Blueprint
}

// RunOptions configures a single Run call. Zero value runs with an
// unbounded concurrency, no middleware, no event publisher, and the safe
// evaluator — the production default per spec.md §9's resolved Open
// Question ("treat the safe evaluator as default and require opt-in for
// the sandboxed one").
type RunOptions struct {
	InitialState    map[string]any
	Registry        *executor.Registry
	Evaluator       evaluator.Evaluator
	Concurrency     int
	Publisher       fctx.EventPublisher
	Middleware      []executor.Middleware
	RetryPolicy     *executor.RetryPolicy
	CircuitBreakers *executor.CircuitBreakers
}

// Runtime is the reusable façade: construct once with New, Run many
// blueprints against it. It owns the built-in strategy registry; each Run
// call wires a runBinding (implementing executor.BlueprintRunner) scoped
// to that call's own effective registry/evaluator/middleware, so nested
// subflow runs inherit exactly what the parent run was configured with.
type Runtime struct {
	builtins *executor.Registry
}

// New returns a Runtime with the six built-in strategies
// (function/batch/loop/subflow/wait/parallel-container) registered.
func New() *Runtime {
	rt := &Runtime{builtins: executor.NewRegistry()}
	executor.RegisterBuiltins(rt.builtins, evaluator.NewSafePath())
	return rt
}

// Run resolves the effective registry as (built-in strategies) ⊕
// (opts.Registry), computes the blueprint's analysis (cached on bp since
// blueprint.New/Analysis already memoize it), constructs a Context,
// Executor, and Orchestrator, and awaits traversal to completion, stall,
// cancellation, or suspension, per spec.md §4.6.
func (rt *Runtime) Run(ctx context.Context, bp *blueprint.Blueprint, opts RunOptions) (*WorkflowResult, error) {
	eval := opts.Evaluator
	if eval == nil {
		eval = evaluator.NewSafePath()
	}

	reg := executor.Merge(rt.builtins, opts.Registry)

	var execOpts []executor.Option
	if opts.Publisher != nil {
		execOpts = append(execOpts, executor.WithPublisher(opts.Publisher))
	}
	if opts.RetryPolicy != nil {
		execOpts = append(execOpts, executor.WithDefaultRetryPolicy(*opts.RetryPolicy))
	}
	if opts.CircuitBreakers != nil {
		execOpts = append(execOpts, executor.WithCircuitBreakers(opts.CircuitBreakers))
	}

	exec := executor.NewExecutor(reg, execOpts...)
	for _, mw := range opts.Middleware {
		exec.Use(mw)
	}
	// subflow nodes call back into this same run's configuration (registry,
	// evaluator, middleware) rather than a bare built-ins-only runtime, so a
	// child blueprint sees every function/strategy the parent run does.
	childOpts := opts
	childOpts.Registry = reg
	childOpts.Evaluator = eval
	exec.SetRunner(&runBinding{rt: rt, opts: childOpts})

	nctx := fctx.NewSyncContext(opts.InitialState)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = len(bp.Nodes)
		if concurrency == 0 {
			concurrency = 1
		}
	}

	orch := traverser.New(exec, eval, concurrency, opts.Publisher)
	runResult, err := orch.Run(ctx, bp, nctx)

	snapshot := nctx.ToJSON()
	encoded, encErr := serializer.Serialize(snapshot)
	errsOut := runResult.Errors
	if encErr != nil {
		errsOut = append(errsOut, encErr)
	}

	return &WorkflowResult{
		Status:            runResult.Status,
		Context:           snapshot,
		SerializedContext: encoded,
		Errors:            errsOut,
		Blueprint:         runResult.Blueprint,
	}, err
}

// runBinding implements executor.BlueprintRunner for exactly one Run call:
// it closes over that run's effective registry/evaluator/middleware so a
// subflow strategy's nested run sees everything the parent run does,
// without Runtime itself holding per-run state (Runtime.Run may be called
// concurrently for unrelated runs).
type runBinding struct {
	rt   *Runtime
	opts RunOptions
}

// RunBlueprint runs bp to completion as a fresh nested run seeded with
// initialState, isolated from the parent run's context by construction (a
// new Context is built rather than sharing the parent's) per spec.md §9's
// resolved Open Question — the subflow strategy is the only bridge between
// parent and child state, via the node's declared inputs/outputs maps.
func (b *runBinding) RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, initialState map[string]any) (map[string]any, error) {
	childOpts := b.opts
	childOpts.InitialState = initialState
	result, err := b.rt.Run(ctx, bp, childOpts)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, errs.New(errs.NodeExecution, "subflow run finished with errors", result.Errors[0])
	}
	return result.Context, nil
}

// ExecuteNode runs exactly one node through the full retry/timeout/
// fallback pipeline without advancing the frontier, exposed for
// distributed adapters that drive traversal job-by-job instead of
// through Run's in-process loop.
func (rt *Runtime) ExecuteNode(ctx context.Context, exec *executor.Executor, bp *blueprint.Blueprint, nodeID string, nctx fctx.Context) (*executor.Result, error) {
	node, ok := bp.Node(nodeID)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, nodeID, "unknown node", nil)
	}
	return exec.Execute(ctx, node, bp, nctx)
}

// DetermineNextNodes applies the edge taxonomy to a just-completed node's
// result, exposed for adapters per spec.md §4.6.
func (rt *Runtime) DetermineNextNodes(bp *blueprint.Blueprint, nodeID string, result *executor.Result, nctx fctx.Context, eval evaluator.Evaluator) []traverser.NextNode {
	return traverser.DetermineNextNodes(bp, nodeID, result, nctx, eval)
}

// ApplyEdgeTransform computes and stores _inputs.<target> for edge's
// target node, exposed for adapters per spec.md §4.6.
func (rt *Runtime) ApplyEdgeTransform(bp *blueprint.Blueprint, edge blueprint.EdgeDefinition, result *executor.Result, nctx fctx.Context, eval evaluator.Evaluator) {
	traverser.ApplyEdgeTransform(bp, edge, result, nctx, eval)
}
