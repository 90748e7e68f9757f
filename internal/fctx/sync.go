package fctx

import "github.com/puzpuzpuz/xsync/v3"

// syncContext is the default in-process Context backing store: a lock-free
// concurrent map so parallel node executions within the same run (fan-out
// branches) can read/write without a single global mutex becoming the
// bottleneck the teacher's mutex-guarded VariableSet would be under
// orchestrator-level concurrency.
type syncContext struct {
	m *xsync.MapOf[string, any]
}

// NewSyncContext returns a Context seeded with the given initial state.
func NewSyncContext(initial map[string]any) Context {
	c := &syncContext{m: xsync.NewMapOf[string, any]()}
	for k, v := range initial {
		c.m.Store(k, v)
	}
	return c
}

func (c *syncContext) Get(key string) (any, bool) {
	return c.m.Load(key)
}

func (c *syncContext) Set(key string, value any) {
	c.m.Store(key, value)
}

func (c *syncContext) Has(key string) bool {
	_, ok := c.m.Load(key)
	return ok
}

func (c *syncContext) Delete(key string) {
	c.m.Delete(key)
}

func (c *syncContext) ToJSON() map[string]any {
	out := make(map[string]any, c.m.Size())
	c.m.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

// Patch applies a batch of operations in order, last-write-wins per key.
func (c *syncContext) Patch(ops []PatchOperation) {
	for _, op := range ops {
		switch op.Op {
		case OpSet:
			c.m.Store(op.Key, op.Value)
		case OpDelete:
			c.m.Delete(op.Key)
		}
	}
}
