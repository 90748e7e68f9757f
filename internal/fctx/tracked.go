package fctx

// EventPublisher is the minimal seam TrackedContext needs to emit
// "context:change" notifications; internal/obsv's Bus satisfies it without
// fctx importing obsv (which itself may want to observe contexts).
type EventPublisher interface {
	Publish(eventType string, payload map[string]any)
}

// TrackedContext wraps a Context and records every mutation as a
// PatchOperation, for flushing to a distributed adapter's coordination/
// storage layer via patch(ops) between node runs. Grounded on
// smilemakc/mbflow's event-sourced execution.go (ApplyEvent/applyVariableSet
// recording VariableSetEvent), generalized to spec.md's op/key/value delta
// shape instead of a typed domain-event hierarchy.
type TrackedContext struct {
	base        Context
	sourceNode  string
	executionID string
	publisher   EventPublisher

	deltas []PatchOperation
}

// NewTracked wraps base so that every Set/Delete/Patch is recorded and,
// if publisher is non-nil, announced as a context:change event.
func NewTracked(base Context, sourceNode, executionID string, publisher EventPublisher) *TrackedContext {
	return &TrackedContext{base: base, sourceNode: sourceNode, executionID: executionID, publisher: publisher}
}

func (t *TrackedContext) Get(key string) (any, bool) { return t.base.Get(key) }
func (t *TrackedContext) Has(key string) bool        { return t.base.Has(key) }
func (t *TrackedContext) ToJSON() map[string]any     { return t.base.ToJSON() }

func (t *TrackedContext) Set(key string, value any) {
	t.base.Set(key, value)
	t.record(PatchOperation{Op: OpSet, Key: key, Value: value})
}

func (t *TrackedContext) Delete(key string) {
	t.base.Delete(key)
	t.record(PatchOperation{Op: OpDelete, Key: key})
}

// Patch applies ops to the underlying context and records each as a delta,
// the same path Set/Delete take, so patches received from a remote worker
// are themselves re-flushable.
func (t *TrackedContext) Patch(ops []PatchOperation) {
	t.base.Patch(ops)
	t.deltas = append(t.deltas, ops...)
	for _, op := range ops {
		t.emit(op)
	}
}

func (t *TrackedContext) record(op PatchOperation) {
	t.deltas = append(t.deltas, op)
	t.emit(op)
}

func (t *TrackedContext) emit(op PatchOperation) {
	if t.publisher == nil {
		return
	}
	t.publisher.Publish("context:change", map[string]any{
		"sourceNode":  t.sourceNode,
		"key":         op.Key,
		"op":          string(op.Op),
		"value":       op.Value,
		"executionId": t.executionID,
	})
}

// GetDeltas returns the deltas recorded since construction or the last
// ClearDeltas, in application order.
func (t *TrackedContext) GetDeltas() []PatchOperation {
	out := make([]PatchOperation, len(t.deltas))
	copy(out, t.deltas)
	return out
}

// ClearDeltas discards recorded deltas; distributed adapters call this right
// after a successful patch(ops) flush.
func (t *TrackedContext) ClearDeltas() {
	t.deltas = t.deltas[:0]
}
