package fctx

import "context"

// KVStore is the minimal remote key/value seam an AsyncContext runs on;
// internal/storage provides a bun/Postgres-backed implementation, and
// tests use an in-memory one.
type KVStore interface {
	Get(ctx context.Context, runID, key string) (any, bool, error)
	Set(ctx context.Context, runID, key string, value any) error
	Delete(ctx context.Context, runID, key string) error
	All(ctx context.Context, runID string) (map[string]any, error)
}

// storeContext is the AsyncContext a distributed worker reconstructs per
// job: every read/write round-trips the coordination/storage layer instead
// of process memory, matching spec.md's "client seeds the run's shared
// Context" distributed data flow.
type storeContext struct {
	store KVStore
	runID string
}

// NewAsyncContext returns an AsyncContext bound to runID over store.
func NewAsyncContext(store KVStore, runID string) AsyncContext {
	return &storeContext{store: store, runID: runID}
}

func (c *storeContext) Get(ctx context.Context, key string) (any, bool, error) {
	return c.store.Get(ctx, c.runID, key)
}

func (c *storeContext) Set(ctx context.Context, key string, value any) error {
	return c.store.Set(ctx, c.runID, key, value)
}

func (c *storeContext) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.store.Get(ctx, c.runID, key)
	return ok, err
}

func (c *storeContext) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.runID, key)
}

func (c *storeContext) ToJSON(ctx context.Context) (map[string]any, error) {
	return c.store.All(ctx, c.runID)
}

// Patch applies ops in order, returning the first error and leaving later
// ops unapplied; callers that need all-or-nothing semantics should wrap
// their KVStore in a transactional one.
func (c *storeContext) Patch(ctx context.Context, ops []PatchOperation) error {
	for _, op := range ops {
		var err error
		switch op.Op {
		case OpSet:
			err = c.store.Set(ctx, c.runID, op.Key, op.Value)
		case OpDelete:
			err = c.store.Delete(ctx, c.runID, op.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
