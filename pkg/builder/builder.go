// Package builder provides a fluent, code-first way to assemble a
// blueprint.Blueprint without hand-writing YAML — useful for tests and
// for embedders who'd rather construct graphs in Go.
//
// Grounded on smilemakc-mbflow's pkg/workflow/builder.go: its
// DefinitionBuilder/NodeDefBuilder/EdgeDefBuilder/TriggerDefBuilder
// family of small, chainable, field-setting builders each ending in a
// Build() that returns the plain value type. BlueprintBuilder/
// NodeBuilder/EdgeBuilder here follow the same shape, adapted from
// Definition/NodeDef/EdgeDef's fields to blueprint.Blueprint/
// NodeDefinition/EdgeDefinition's.
package builder

import "github.com/gorango/flowcraft/internal/blueprint"

// BlueprintBuilder assembles a Blueprint, mirroring DefinitionBuilder's
// Name/Version/Description/AddTrigger/AddNode/AddEdge/Build chain.
type BlueprintBuilder struct {
	id       string
	metadata blueprint.Metadata
	nodes    []blueprint.NodeDefinition
	edges    []blueprint.EdgeDefinition
	inputs   map[string]any
	outputs  map[string]any
}

// New starts a BlueprintBuilder for the blueprint identified by id.
func New(id string) *BlueprintBuilder {
	return &BlueprintBuilder{id: id}
}

func (b *BlueprintBuilder) Name(name string) *BlueprintBuilder {
	b.metadata.Name = name
	return b
}

func (b *BlueprintBuilder) Version(version string) *BlueprintBuilder {
	b.metadata.Version = version
	return b
}

// AddNode appends a node built via Node(...).Build().
func (b *BlueprintBuilder) AddNode(n blueprint.NodeDefinition) *BlueprintBuilder {
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge appends an edge built via Edge(...).Build().
func (b *BlueprintBuilder) AddEdge(e blueprint.EdgeDefinition) *BlueprintBuilder {
	b.edges = append(b.edges, e)
	return b
}

// Input sets one key in the blueprint's declared input schema/defaults.
func (b *BlueprintBuilder) Input(key string, value any) *BlueprintBuilder {
	if b.inputs == nil {
		b.inputs = map[string]any{}
	}
	b.inputs[key] = value
	return b
}

// Output sets one key in the blueprint's declared output mapping.
func (b *BlueprintBuilder) Output(key string, value any) *BlueprintBuilder {
	if b.outputs == nil {
		b.outputs = map[string]any{}
	}
	b.outputs[key] = value
	return b
}

// Build constructs the Blueprint, eagerly computing its Analysis via
// blueprint.New.
func (b *BlueprintBuilder) Build() *blueprint.Blueprint {
	bp := blueprint.New(b.id, b.metadata, b.nodes, b.edges)
	bp.Inputs = b.inputs
	bp.Outputs = b.outputs
	return bp
}

// NodeBuilder assembles a single NodeDefinition, mirroring
// NodeDefBuilder's ID/Type/Handler/Timeout/Retry/ConfigKV/Condition/Build
// chain.
type NodeBuilder struct {
	n blueprint.NodeDefinition
}

// Node starts a NodeBuilder for the node identified by id.
func Node(id string) *NodeBuilder {
	return &NodeBuilder{n: blueprint.NodeDefinition{ID: id}}
}

func (b *NodeBuilder) Uses(uses string) *NodeBuilder {
	b.n.Uses = uses
	return b
}

// Param sets one key in the node's params map, the same ConfigKV
// accumulate-into-a-lazily-allocated-map shape NodeDefBuilder uses.
func (b *NodeBuilder) Param(key string, value any) *NodeBuilder {
	if b.n.Params == nil {
		b.n.Params = map[string]any{}
	}
	b.n.Params[key] = value
	return b
}

func (b *NodeBuilder) MaxRetries(n int) *NodeBuilder {
	b.n.Config.MaxRetries = n
	return b
}

// Timeout sets the node's timeout in milliseconds. A value of 0 is a
// meaningful boundary (fires immediately, treated as error), distinct
// from never calling Timeout at all.
func (b *NodeBuilder) Timeout(ms int64) *NodeBuilder {
	b.n.Config.Timeout = &ms
	return b
}

func (b *NodeBuilder) Fallback(functionName string) *NodeBuilder {
	b.n.Config.Fallback = functionName
	return b
}

func (b *NodeBuilder) Join(strategy blueprint.JoinStrategy) *NodeBuilder {
	b.n.Config.JoinStrategy = strategy
	return b
}

// Inputs sets the node's raw input spec (nil, a string, a []string, or a
// map[string][]string), passed straight through to NodeDefinition.Inputs.
func (b *NodeBuilder) Inputs(spec any) *NodeBuilder {
	b.n.Inputs = spec
	return b
}

func (b *NodeBuilder) Build() blueprint.NodeDefinition { return b.n }

// EdgeBuilder assembles a single EdgeDefinition, mirroring
// EdgeDefBuilder's From/To/Type/Condition/Transform/Build chain.
type EdgeBuilder struct {
	e blueprint.EdgeDefinition
}

// Edge starts an EdgeBuilder connecting source to target.
func Edge(source, target string) *EdgeBuilder {
	return &EdgeBuilder{e: blueprint.EdgeDefinition{Source: source, Target: target}}
}

func (b *EdgeBuilder) Action(action string) *EdgeBuilder {
	b.e.Action = action
	return b
}

func (b *EdgeBuilder) Condition(expr string) *EdgeBuilder {
	b.e.Condition = expr
	return b
}

func (b *EdgeBuilder) Transform(expr string) *EdgeBuilder {
	b.e.Transform = expr
	return b
}

func (b *EdgeBuilder) Build() blueprint.EdgeDefinition { return b.e }
