package traverser

import (
	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
	"github.com/gorango/flowcraft/internal/fctx"
)

// NextNode pairs a successor with the edge that routed to it.
type NextNode struct {
	Node *blueprint.NodeDefinition
	Edge blueprint.EdgeDefinition
}

// DetermineNextNodes implements spec.md §4.4's edge taxonomy: action
// routing edges fire on an exact action match, conditional edges fire when
// truthy (and take priority over plain action routes when present), and a
// fully unconditional edge (no action, no condition) is the last-resort
// default.
//
// Decision (Open Question, resolved): spec.md §4.4 leaves the precise
// precedence between action-routing and conditional edges understated.
// This implementation fires conditional edges first if any evaluate
// truthy; only if none do does it fall through to plain action-matched
// edges, and only if there are none of those either does it fall through
// to a fully unconditional default edge — giving conditions the power to
// override a plain action route, with the default edge as the final
// catch-all, matching how every other member of this edge taxonomy
// (routing, then conditional fallthrough, then default) reads as a
// priority chain rather than three independent checks.
func DetermineNextNodes(bp *blueprint.Blueprint, nodeID string, result *executor.Result, nctx fctx.Context, eval evaluator.Evaluator) []NextNode {
	var actionRoutes, conditional, defaults []blueprint.EdgeDefinition

	for _, e := range bp.Analysis().OutEdges(nodeID) {
		switch {
		case e.Condition != "":
			if e.Action == "" || e.Action == result.Action {
				conditional = append(conditional, e)
			}
		case e.Action != "":
			if e.Action == result.Action {
				actionRoutes = append(actionRoutes, e)
			}
		default:
			defaults = append(defaults, e)
		}
	}

	input := sourceInput(bp, nodeID, nctx)
	fired := fireConditional(conditional, result, input, nctx, eval)
	if len(fired) == 0 {
		fired = actionRoutes
	}
	if len(fired) == 0 {
		fired = defaults
	}

	out := make([]NextNode, 0, len(fired))
	for _, e := range fired {
		if node, ok := bp.Node(e.Target); ok {
			out = append(out, NextNode{Node: node, Edge: e})
		}
	}
	return out
}

func fireConditional(edges []blueprint.EdgeDefinition, result *executor.Result, input any, nctx fctx.Context, eval evaluator.Evaluator) []blueprint.EdgeDefinition {
	if len(edges) == 0 {
		return nil
	}
	scope := conditionScope(result, input, nctx)
	var fired []blueprint.EdgeDefinition
	for _, e := range edges {
		if evaluator.Truthy(eval.Evaluate(e.Condition, scope)) {
			fired = append(fired, e)
		}
	}
	return fired
}

// sourceInput resolves the input the source node itself was invoked with,
// the same way executor.ResolveInput computed it for that node's own
// execution, so condition/transform expressions can reference `input`
// exactly as spec.md §4.3 names it.
func sourceInput(bp *blueprint.Blueprint, nodeID string, nctx fctx.Context) any {
	node, ok := bp.Node(nodeID)
	if !ok {
		return nil
	}
	return executor.ResolveInput(bp, node, nctx)
}

// conditionScope builds the {result, context, input} scope spec.md §4.3
// names for edge condition/transform evaluation: result is the source
// node's own output, context is the full run context, and input is the
// value the source node itself was invoked with.
func conditionScope(result *executor.Result, input any, nctx fctx.Context) map[string]any {
	return map[string]any{
		"result":  result.Output,
		"context": nctx.ToJSON(),
		"input":   input,
	}
}

// ApplyEdgeTransform evaluates edge.Transform (if any) against the source
// node's output and stores the result at _inputs.<target> for the
// successor's next input resolution; an edge with no transform passes the
// source output through unchanged.
func ApplyEdgeTransform(bp *blueprint.Blueprint, edge blueprint.EdgeDefinition, result *executor.Result, nctx fctx.Context, eval evaluator.Evaluator) {
	target := "_inputs." + edge.Target
	if edge.Transform == "" {
		nctx.Set(target, result.Output)
		return
	}
	input := sourceInput(bp, edge.Source, nctx)
	scope := conditionScope(result, input, nctx)
	nctx.Set(target, eval.Evaluate(edge.Transform, scope))
}
