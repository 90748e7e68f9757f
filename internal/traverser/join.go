// Package traverser implements the in-process graph traversal and
// orchestration engine: frontier computation, fan-in join semantics,
// dynamic node injection, and cancellation, per spec.md §4.5.
package traverser

import "github.com/gorango/flowcraft/internal/blueprint"

// JoinEvaluator decides whether a node's predecessors satisfy its
// configured join strategy. Grounded on smilemakc/mbflow's
// backend/internal/application/engine/dag_executor.go shouldExecuteNode
// (incoming-edge readiness check), generalized from that file's four
// strategies (wait_all/any/first/n) down to spec.md's two ("all"/"any").
type JoinEvaluator struct{}

// Ready reports whether nodeID's predecessors satisfy its join strategy
// given the current completed set. It keeps no state between calls: an
// "any"-join node is ready as soon as one predecessor is in completed, and
// callers skip it afterwards only because it is then completed itself.
func (JoinEvaluator) Ready(bp *blueprint.Blueprint, nodeID string, completed map[string]bool) bool {
	// A loop's startNodeId or a parallel-container's branch node is declared
	// with zero incoming edges but is launched directly by its owning
	// strategy (internal/executor/builtin.go's loopStrategy/
	// parallelContainerStrategy), never by the frontier scan — otherwise
	// both the scan and the strategy would launch it concurrently.
	if bp.Analysis().IsContainerOwned(nodeID) {
		return false
	}

	preds := bp.Analysis().Predecessors(nodeID)
	if len(preds) == 0 {
		return true
	}

	strategy := blueprint.JoinAll
	if node, ok := bp.Node(nodeID); ok && node.Config.JoinStrategy != "" {
		strategy = node.Config.JoinStrategy
	}

	switch strategy {
	case blueprint.JoinAny:
		for _, p := range preds {
			if completed[p] {
				return true
			}
		}
		return false
	default: // JoinAll
		for _, p := range preds {
			if !completed[p] {
				return false
			}
		}
		return true
	}
}
