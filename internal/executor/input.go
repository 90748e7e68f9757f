package executor

import "github.com/gorango/flowcraft/internal/blueprint"

// ResolveInput implements spec.md §4.4 step 1 against node.Inputs, which may
// be nil, a string, an array of strings, or a map of alias -> one-or-many
// source refs.
func ResolveInput(bp *blueprint.Blueprint, node *blueprint.NodeDefinition, nctx ContextReader) any {
	switch v := node.Inputs.(type) {
	case string:
		return resolveRef(v, nctx)
	case []string:
		return firstDefined(v, nctx)
	case []any:
		return firstDefined(toStringSlice(v), nctx)
	case map[string][]string:
		return resolveObject(v, nctx)
	case map[string]any:
		norm := make(map[string][]string, len(v))
		for k, raw := range v {
			norm[k] = toStringSlice(raw)
		}
		return resolveObject(norm, nctx)
	default:
		return fallbackInput(bp, node, nctx)
	}
}

// ContextReader is the subset of fctx.Context input resolution needs; kept
// narrow so callers can pass any key/value reader.
type ContextReader interface {
	Get(key string) (any, bool)
}

func resolveRef(ref string, nctx ContextReader) any {
	if val, ok := nctx.Get("_outputs." + ref); ok {
		return val
	}
	return ref
}

func firstDefined(refs []string, nctx ContextReader) any {
	for _, ref := range refs {
		if val, ok := nctx.Get("_outputs." + ref); ok {
			return val
		}
	}
	return nil
}

func resolveObject(spec map[string][]string, nctx ContextReader) map[string]any {
	out := make(map[string]any, len(spec))
	for alias, refs := range spec {
		out[alias] = firstDefined(refs, nctx)
	}
	return out
}

// fallbackInput handles node.Inputs == nil: prefer the edge-transformed
// _inputs.<nodeId> value, else concatenate predecessor outputs (a single
// predecessor's output is passed through bare; multiple are collected into
// a slice in declaration order, skipping any not yet present).
func fallbackInput(bp *blueprint.Blueprint, node *blueprint.NodeDefinition, nctx ContextReader) any {
	if val, ok := nctx.Get("_inputs." + node.ID); ok {
		return val
	}

	preds := bp.Analysis().Predecessors(node.ID)
	if len(preds) == 0 {
		return nil
	}

	var outputs []any
	for _, p := range preds {
		if val, ok := nctx.Get("_outputs." + p); ok {
			outputs = append(outputs, val)
		}
	}
	if len(outputs) == 1 {
		return outputs[0]
	}
	if len(outputs) == 0 {
		return nil
	}
	return outputs
}

func toStringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
