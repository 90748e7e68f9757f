package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearAB() *Blueprint {
	return New("linear", Metadata{Version: "1"},
		[]NodeDefinition{{ID: "A", Uses: "function"}, {ID: "B", Uses: "function"}},
		[]EdgeDefinition{{Source: "A", Target: "B"}},
	)
}

func TestAnalysisStartAndTerminal(t *testing.T) {
	bp := linearAB()
	a := bp.Analysis()
	assert.Equal(t, []string{"A"}, a.StartNodeIDs)
	assert.Equal(t, []string{"B"}, a.TerminalNodeIDs)
	assert.Equal(t, []string{"A"}, a.Predecessors("B"))
	assert.Equal(t, []string{"B"}, a.Successors("A"))
	assert.False(t, a.HasCycle())
}

func TestAnalysisDetectsCycle(t *testing.T) {
	bp := New("cyclic", Metadata{}, []NodeDefinition{{ID: "A"}, {ID: "B"}},
		[]EdgeDefinition{{Source: "A", Target: "B"}, {Source: "B", Target: "A"}})
	assert.True(t, bp.Analysis().HasCycle())
}

func TestFanIn(t *testing.T) {
	bp := New("fanin", Metadata{}, []NodeDefinition{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[]EdgeDefinition{{Source: "A", Target: "C"}, {Source: "B", Target: "C"}})
	a := bp.Analysis()
	assert.ElementsMatch(t, []string{"A", "B"}, a.Predecessors("C"))
	assert.ElementsMatch(t, []string{"A", "B"}, a.StartNodeIDs)
	assert.Equal(t, []string{"C"}, a.TerminalNodeIDs)
}

func TestWithDynamicExtension(t *testing.T) {
	bp := linearAB()
	ext := bp.WithDynamicExtension(
		[]NodeDefinition{{ID: "C", Uses: "function"}},
		[]EdgeDefinition{{Source: "B", Target: "C"}},
	)
	require.Len(t, ext.Nodes, 3)
	assert.Equal(t, []string{"C"}, ext.Analysis().TerminalNodeIDs)
	// original unaffected (copy-on-write)
	assert.Len(t, bp.Nodes, 2)
}

func TestContainerOwnedNodesExcludedFromStartAndTerminal(t *testing.T) {
	bp := New("loop-bp", Metadata{},
		[]NodeDefinition{
			{ID: "loop", Uses: "loop", Params: map[string]any{"startNodeId": "body"}},
			{ID: "body", Uses: "function"},
		},
		nil,
	)
	a := bp.Analysis()
	assert.Equal(t, []string{"loop"}, a.StartNodeIDs)
	assert.Equal(t, []string{"loop"}, a.TerminalNodeIDs)
	assert.True(t, a.IsContainerOwned("body"))
	assert.False(t, a.IsContainerOwned("loop"))

	parallel := New("parallel-bp", Metadata{},
		[]NodeDefinition{
			{ID: "a", Uses: "function"},
			{ID: "b", Uses: "function"},
			{ID: "c", Uses: "parallel-container", Params: map[string]any{"branches": []any{"a", "b"}}},
		},
		nil,
	)
	pa := parallel.Analysis()
	assert.Equal(t, []string{"c"}, pa.StartNodeIDs)
	assert.Equal(t, []string{"c"}, pa.TerminalNodeIDs)
	assert.True(t, pa.IsContainerOwned("a"))
	assert.True(t, pa.IsContainerOwned("b"))
}

func TestNodeLookup(t *testing.T) {
	bp := linearAB()
	n, ok := bp.Node("A")
	require.True(t, ok)
	assert.Equal(t, "A", n.ID)
	_, ok = bp.Node("missing")
	assert.False(t, ok)
}
