package storage

import (
	"encoding/json"

	"github.com/gorango/flowcraft/internal/blueprint"
)

// blueprintToJSON/blueprintFromJSON round-trip a Blueprint through its own
// json tags rather than bun model fields, since Blueprint is already a
// flat, fully-tagged value type (see PostgresStore's doc comment on why
// BlueprintModel doesn't decompose it the way bun_store.go decomposes
// domain.Workflow).
func blueprintToJSON(bp *blueprint.Blueprint) ([]byte, error) {
	return json.Marshal(bp)
}

func blueprintFromJSON(doc []byte) (*blueprint.Blueprint, error) {
	var bp blueprint.Blueprint
	if err := json.Unmarshal(doc, &bp); err != nil {
		return nil, err
	}
	// blueprint.New's Analysis is unexported and not populated by
	// unmarshalling; Blueprint.Analysis() lazily computes and caches it on
	// first call, which is exactly what every downstream consumer
	// (traverser, adapter) calls before touching analysis data.
	bp.Analysis()
	return &bp, nil
}
