package executor

import (
	"context"
	"sync"
	"time"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/errs"
	"github.com/gorango/flowcraft/internal/evaluator"
)

// RegisterBuiltins installs the six strategies spec.md §4.4 step 3
// prescribes into reg.
func RegisterBuiltins(reg *Registry, eval evaluator.Evaluator) {
	reg.RegisterStrategy("function", StrategyFunc(functionStrategy))
	reg.RegisterStrategy("batch", StrategyFunc(batchStrategy))
	reg.RegisterStrategy("loop", loopStrategy{eval: eval})
	reg.RegisterStrategy("subflow", StrategyFunc(subflowStrategy))
	reg.RegisterStrategy("wait", StrategyFunc(waitStrategy))
	reg.RegisterStrategy("parallel-container", StrategyFunc(parallelContainerStrategy))
}

// functionStrategy invokes the registered user function named by
// node.Params["fn"], falling back to the node's own ID for blueprints that
// register the function under the node's ID.
func functionStrategy(ctx context.Context, sc *StrategyContext) (*Result, error) {
	name, _ := sc.Node.Params["fn"].(string)
	if name == "" {
		name = sc.Node.ID
	}
	fn, ok := sc.Exec.registry.Function(name)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, sc.Node.ID, "unknown function: "+name, nil)
	}
	output, err := fn(ctx, sc.Input)
	if err != nil {
		return nil, err
	}
	return &Result{Output: output}, nil
}

// batchStrategy reads params.inputKey (an array, either the resolved Input
// or a Context key) and runs params.worker for each element with bounded
// params.concurrency, collecting outputs in order.
func batchStrategy(ctx context.Context, sc *StrategyContext) (*Result, error) {
	inputKey, _ := sc.Node.Params["inputKey"].(string)
	workerName, _ := sc.Node.Params["worker"].(string)
	concurrency := paramInt(sc.Node.Params, "concurrency", 1)

	worker, ok := sc.Exec.registry.Function(workerName)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, sc.Node.ID, "unknown batch worker: "+workerName, nil)
	}

	items := resolveBatchItems(sc, inputKey)
	outputs := make([]any, len(items))
	itemErrs := make([]error, len(items))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item any) {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := worker(ctx, item)
			outputs[i] = out
			itemErrs[i] = err
		}(i, item)
	}
	wg.Wait()

	for _, err := range itemErrs {
		if err != nil {
			return nil, err
		}
	}

	if outputKey, _ := sc.Node.Params["outputKey"].(string); outputKey != "" {
		sc.Ctx.Set(outputKey, outputs)
	}
	return &Result{Output: outputs}, nil
}

func resolveBatchItems(sc *StrategyContext, inputKey string) []any {
	source := sc.Input
	if inputKey != "" {
		if v, ok := sc.Ctx.Get(inputKey); ok {
			source = v
		}
	}
	switch x := source.(type) {
	case []any:
		return x
	default:
		return nil
	}
}

func paramInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

// loopStrategy re-enters params.startNodeId while params.condition holds
// (evaluated against the Context) or until params.maxIterations, tracking
// the iteration count in the Context under _loop.<nodeId>.counter.
type loopStrategy struct {
	eval evaluator.Evaluator
}

func (l loopStrategy) Execute(ctx context.Context, sc *StrategyContext) (*Result, error) {
	startNodeID, _ := sc.Node.Params["startNodeId"].(string)
	condition, _ := sc.Node.Params["condition"].(string)
	maxIterations := paramInt(sc.Node.Params, "maxIterations", 0)

	startNode, ok := sc.Blueprint.Node(startNodeID)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, sc.Node.ID, "unknown loop startNodeId: "+startNodeID, nil)
	}

	counterKey := "_loop." + sc.Node.ID + ".counter"
	var last any
	for iteration := 0; maxIterations == 0 || iteration < maxIterations; iteration++ {
		sc.Ctx.Set(counterKey, iteration)

		if condition != "" {
			if !evaluator.Truthy(l.eval.Evaluate(condition, sc.Ctx.ToJSON())) {
				break
			}
		}

		result, err := sc.Exec.Execute(ctx, startNode, sc.Blueprint, sc.Ctx)
		if err != nil {
			return nil, errs.NewForNode(errs.NodeExecution, sc.Node.ID, "loop iteration failed", err)
		}
		last = result.Output
	}

	return &Result{Output: last}, nil
}

// subflowStrategy maps the parent input into a child run (per
// params.inputs, currently the whole resolved Input) and runs the child
// blueprint named by params.blueprint via the injected BlueprintRunner —
// synchronously, within the parent's execution, per spec.md §4.4 step 3.
// An asynchronous, independently-IDed subflow run belongs to the
// distributed adapter, not this in-process strategy.
func subflowStrategy(ctx context.Context, sc *StrategyContext) (*Result, error) {
	childBlueprint, ok := sc.Node.Params["blueprint"].(*blueprint.Blueprint)
	if !ok || childBlueprint == nil {
		return nil, errs.NewForNode(errs.Validation, sc.Node.ID, "subflow node missing params.blueprint", nil)
	}
	if sc.Exec.runner == nil {
		return nil, errs.NewForNode(errs.Fatal, sc.Node.ID, "subflow strategy requires a BlueprintRunner", nil)
	}

	childInitial, _ := sc.Input.(map[string]any)
	if childInitial == nil {
		childInitial = map[string]any{"input": sc.Input}
	}

	outputs, err := sc.Exec.runner.RunBlueprint(ctx, childBlueprint, childInitial)
	if err != nil {
		return nil, errs.NewForNode(errs.NodeExecution, sc.Node.ID, "subflow failed", err)
	}
	return &Result{Output: outputs}, nil
}

// waitStrategy returns a suspend marker; scheduler.Resume later supplies
// the node's actual output (spec.md §4.8). A "sleep" reason carries its
// wake-up duration (params.durationMs) for the scheduler's resumeAt index;
// "event"/"webhook" reasons wait for an external resume call instead.
func waitStrategy(ctx context.Context, sc *StrategyContext) (*Result, error) {
	reason, _ := sc.Node.Params["reason"].(string)
	if reason == "" {
		reason = "event"
	}
	eventName, _ := sc.Node.Params["event"].(string)
	webhookID, _ := sc.Node.Params["webhookId"].(string)
	duration := time.Duration(paramInt(sc.Node.Params, "durationMs", 0)) * time.Millisecond
	return &Result{Suspend: &Suspend{Reason: reason, Duration: duration, EventName: eventName, WebhookID: webhookID}}, nil
}

// parallelContainerStrategy runs params.branches (node IDs in the same
// blueprint) concurrently and returns their outputs as an array in branch
// order.
func parallelContainerStrategy(ctx context.Context, sc *StrategyContext) (*Result, error) {
	raw, _ := sc.Node.Params["branches"].([]any)
	branchIDs := make([]string, 0, len(raw))
	for _, b := range raw {
		if s, ok := b.(string); ok {
			branchIDs = append(branchIDs, s)
		}
	}

	outputs := make([]any, len(branchIDs))
	branchErrs := make([]error, len(branchIDs))
	var wg sync.WaitGroup
	for i, id := range branchIDs {
		node, ok := sc.Blueprint.Node(id)
		if !ok {
			branchErrs[i] = errs.NewForNode(errs.Validation, sc.Node.ID, "unknown branch node: "+id, nil)
			continue
		}
		wg.Add(1)
		go func(i int, node *blueprint.NodeDefinition) {
			defer wg.Done()
			result, err := sc.Exec.Execute(ctx, node, sc.Blueprint, sc.Ctx)
			if err != nil {
				branchErrs[i] = err
				return
			}
			outputs[i] = result.Output
		}(i, node)
	}
	wg.Wait()

	for _, err := range branchErrs {
		if err != nil {
			return nil, err
		}
	}
	return &Result{Output: outputs}, nil
}
