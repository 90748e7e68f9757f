package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlueprintYAML = `
id: greet-flow
metadata:
  version: "1"
  name: Greeting Flow
nodes:
  - id: start
    uses: function
    params:
      name: greet
  - id: end
    uses: function
    params:
      name: finish
edges:
  - source: start
    target: end
`

func TestLoadBlueprintFromYAMLParsesNodesAndEdges(t *testing.T) {
	bp, err := LoadBlueprintFromYAML([]byte(sampleBlueprintYAML))
	require.NoError(t, err)

	assert.Equal(t, "greet-flow", bp.ID)
	assert.Equal(t, "1", bp.Metadata.Version)
	assert.Len(t, bp.Nodes, 2)
	assert.Len(t, bp.Edges, 1)
	assert.Equal(t, []string{"start"}, bp.Analysis().StartNodeIDs)
}

func TestLoadBlueprintFromYAMLRejectsMissingID(t *testing.T) {
	_, err := LoadBlueprintFromYAML([]byte("nodes:\n  - id: a\n    uses: function\n"))
	assert.Error(t, err)
}

func TestLoadBlueprintFromYAMLRejectsNoNodes(t *testing.T) {
	_, err := LoadBlueprintFromYAML([]byte("id: empty-flow\n"))
	assert.Error(t, err)
}
