package blueprint

// Analysis is the cached, derived view of a Blueprint's graph shape.
// Grounded on smilemakc/mbflow's internal/application/executor/graph.go
// (WorkflowGraph forward/reverse adjacency) and internal/domain/workflow.go's
// DFS cycle check.
type Analysis struct {
	StartNodeIDs    []string
	TerminalNodeIDs []string

	predecessors map[string][]string
	successors   map[string][]string
	// outEdges indexed by source node, in declaration order, for the edge
	// taxonomy dispatch (action match, then condition, then default).
	outEdges map[string][]EdgeDefinition
	hasCycle bool

	// containerOwned holds the node IDs a "loop" node's params.startNodeId
	// or a "parallel-container" node's params.branches names. Such nodes
	// are declared with zero incoming edges (the container is their only
	// path into the graph) but are launched directly by their owning
	// strategy, not by the top-level frontier scan — so they're excluded
	// from both StartNodeIDs and join readiness to prevent the frontier
	// from also scheduling them concurrently with the strategy's own call.
	containerOwned map[string]struct{}
}

// loopStrategyName and parallelContainerStrategyName mirror the strategy
// keys executor.RegisterBuiltins registers them under; duplicated here
// (rather than imported) to keep this package free of an executor
// dependency.
const (
	loopStrategyName              = "loop"
	parallelContainerStrategyName = "parallel-container"
)

func computeAnalysis(b *Blueprint) *Analysis {
	a := &Analysis{
		predecessors:   make(map[string][]string),
		successors:     make(map[string][]string),
		outEdges:       make(map[string][]EdgeDefinition),
		containerOwned: make(map[string]struct{}),
	}

	nodeIDs := make(map[string]struct{}, len(b.Nodes))
	for _, n := range b.Nodes {
		nodeIDs[n.ID] = struct{}{}
	}

	for _, e := range b.Edges {
		a.successors[e.Source] = append(a.successors[e.Source], e.Target)
		a.predecessors[e.Target] = append(a.predecessors[e.Target], e.Source)
		a.outEdges[e.Source] = append(a.outEdges[e.Source], e)
	}

	for _, n := range b.Nodes {
		switch n.Uses {
		case loopStrategyName:
			if startID, _ := n.Params["startNodeId"].(string); startID != "" {
				a.containerOwned[startID] = struct{}{}
			}
		case parallelContainerStrategyName:
			branches, _ := n.Params["branches"].([]any)
			for _, branch := range branches {
				if id, ok := branch.(string); ok {
					a.containerOwned[id] = struct{}{}
				}
			}
		}
	}

	for id := range nodeIDs {
		if _, owned := a.containerOwned[id]; owned {
			continue
		}
		if len(a.predecessors[id]) == 0 {
			a.StartNodeIDs = append(a.StartNodeIDs, id)
		}
		if len(a.successors[id]) == 0 {
			a.TerminalNodeIDs = append(a.TerminalNodeIDs, id)
		}
	}

	a.hasCycle = detectCycle(nodeIDs, a.successors)
	return a
}

// IsContainerOwned reports whether nodeID is a loop's startNodeId or a
// parallel-container's branch node — launched directly by its owning
// strategy rather than by the top-level frontier scan.
func (a *Analysis) IsContainerOwned(nodeID string) bool {
	_, owned := a.containerOwned[nodeID]
	return owned
}

// Predecessors returns the direct predecessor node IDs of nodeID.
func (a *Analysis) Predecessors(nodeID string) []string { return a.predecessors[nodeID] }

// Successors returns the direct successor node IDs of nodeID.
func (a *Analysis) Successors(nodeID string) []string { return a.successors[nodeID] }

// OutEdges returns the outgoing edges of nodeID in declaration order.
func (a *Analysis) OutEdges(nodeID string) []EdgeDefinition { return a.outEdges[nodeID] }

// HasCycle reports whether the graph contains a cycle. Cycles are permitted
// (noted, not rejected); the traverser de-duplicates via the completed set.
func (a *Analysis) HasCycle() bool { return a.hasCycle }

func detectCycle(nodeIDs map[string]struct{}, successors map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodeIDs))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range successors[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for id := range nodeIDs {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
