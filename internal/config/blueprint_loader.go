package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gorango/flowcraft/internal/blueprint"
)

// LoadBlueprintFromYAML parses a blueprint document. Unlike
// yaml_importer.go's YAMLWorkflow/YAMLNode/YAMLEdge intermediate structs
// (needed because models.Workflow isn't itself yaml-tagged),
// blueprint.Blueprint already carries yaml tags directly, so this
// unmarshals straight into it and eagerly computes Analysis the way
// blueprint.New does, rather than introducing a parallel YAML schema to
// translate from.
func LoadBlueprintFromYAML(data []byte) (*blueprint.Blueprint, error) {
	var bp blueprint.Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint yaml: %w", err)
	}
	if bp.ID == "" {
		return nil, fmt.Errorf("blueprint yaml: id is required")
	}
	if len(bp.Nodes) == 0 {
		return nil, fmt.Errorf("blueprint yaml: at least one node is required")
	}
	bp.Analysis()
	return &bp, nil
}
