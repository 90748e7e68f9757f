package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/evaluator"
	"github.com/gorango/flowcraft/internal/executor"
)

// fakeQueue is an in-memory QueueBinding: Enqueue appends, Drain lets a
// test pump the queue through a handler synchronously instead of running
// Consume's blocking loop.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *fakeQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) error {
	return nil
}

// drain repeatedly pops and handles jobs until the queue is empty, so
// tests can run a full multi-hop traversal without a real broker.
func (q *fakeQueue) drain(t *testing.T, handle func(ctx context.Context, job Job) error) {
	t.Helper()
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		require.NoError(t, handle(context.Background(), job))
	}
}

// fakeCoord is an in-memory CoordinationStore; ttl is accepted but not
// enforced (tests don't need expiry, only the primitive semantics).
type fakeCoord struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{values: make(map[string]string), counts: make(map[string]int64)}
}

func (c *fakeCoord) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCoord) SetIfNotExist(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value
	return true, nil
}

func (c *fakeCoord) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (c *fakeCoord) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.counts, key)
	return nil
}

func (c *fakeCoord) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

type fakeBlueprintStore struct {
	bp *blueprint.Blueprint
}

func (s *fakeBlueprintStore) Get(ctx context.Context, id string) (*blueprint.Blueprint, bool, error) {
	if s.bp == nil || s.bp.ID != id {
		return nil, false, nil
	}
	return s.bp, true, nil
}

// fakeKV is an in-memory fctx.KVStore, namespaced by runID.
type fakeKV struct {
	mu   sync.Mutex
	runs map[string]map[string]any
}

func newFakeKV() *fakeKV { return &fakeKV{runs: make(map[string]map[string]any)} }

func (k *fakeKV) Get(ctx context.Context, runID, key string) (any, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.runs[runID]
	if !ok {
		return nil, false, nil
	}
	v, ok := m[key]
	return v, ok, nil
}

func (k *fakeKV) Set(ctx context.Context, runID, key string, value any) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.runs[runID] == nil {
		k.runs[runID] = make(map[string]any)
	}
	k.runs[runID][key] = value
	return nil
}

func (k *fakeKV) Delete(ctx context.Context, runID, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.runs[runID], key)
	return nil
}

func (k *fakeKV) All(ctx context.Context, runID string) (map[string]any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]any, len(k.runs[runID]))
	for kk, v := range k.runs[runID] {
		out[kk] = v
	}
	return out, nil
}

func identityRegistry() *executor.Registry {
	reg := executor.NewRegistry()
	reg.RegisterFunction("identity", func(ctx context.Context, input any) (any, error) {
		return input, nil
	})
	reg.RegisterFunction("double", func(ctx context.Context, input any) (any, error) {
		return input.(int) * 2, nil
	})
	executor.RegisterBuiltins(reg, evaluator.NewSafePath())
	return reg
}

func TestHandleJobLinearRunCompletes(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"},
		[]blueprint.NodeDefinition{
			{ID: "a", Uses: "function", Params: map[string]any{"fn": "double"}},
			{ID: "b", Uses: "function", Params: map[string]any{"fn": "double"}},
		},
		[]blueprint.EdgeDefinition{{Source: "a", Target: "b"}},
	)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())

	var finished map[string]any
	publisher := publisherFunc(func(eventType string, payload map[string]any) {
		if eventType == "workflow:finish" {
			finished = payload
		}
	})

	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath(), WithPublisher(publisher))

	require.NoError(t, a.StartRun(context.Background(), "run1", bp, map[string]any{"_inputs.a": 5}))
	queue.drain(t, a.HandleJob)

	require.NotNil(t, finished)
	assert.Equal(t, "completed", finished["status"])

	snapshot, err := fctxAll(kv, "run1")
	require.NoError(t, err)
	assert.Equal(t, 20, snapshot["_outputs.b"])
}

func TestHandleJobFanInAllWaitsForBothPredecessors(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"},
		[]blueprint.NodeDefinition{
			{ID: "a", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "b", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "c", Uses: "function", Params: map[string]any{"fn": "identity"}, Config: blueprint.NodeConfig{JoinStrategy: blueprint.JoinAll}},
		},
		[]blueprint.EdgeDefinition{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath())

	require.NoError(t, kv.Set(context.Background(), "run1", "_inputs.a", "A"))
	require.NoError(t, kv.Set(context.Background(), "run1", "_inputs.b", "B"))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintId", bp.ID))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintVersion", bp.Metadata.Version))

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "a"}))
	// c must not have run yet: only one of two predecessors completed.
	snapshot, err := fctxAll(kv, "run1")
	require.NoError(t, err)
	_, cRan := snapshot["_outputs.c"]
	assert.False(t, cRan)

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "b"}))
	queue.drain(t, a.HandleJob)

	snapshot, err = fctxAll(kv, "run1")
	require.NoError(t, err)
	_, cRan = snapshot["_outputs.c"]
	assert.True(t, cRan)
}

func TestHandleJobFanInAnyArbitratesSingleWinner(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"},
		[]blueprint.NodeDefinition{
			{ID: "a", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "b", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "c", Uses: "function", Params: map[string]any{"fn": "identity"}, Config: blueprint.NodeConfig{JoinStrategy: blueprint.JoinAny}},
		},
		[]blueprint.EdgeDefinition{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath())

	require.NoError(t, kv.Set(context.Background(), "run1", "_inputs.a", "A"))
	require.NoError(t, kv.Set(context.Background(), "run1", "_inputs.b", "B"))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintId", bp.ID))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintVersion", bp.Metadata.Version))

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "a"}))
	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "b"}))

	// exactly one job for c should have been enqueued (a won the lock).
	assert.Len(t, queue.jobs, 1)
	assert.Equal(t, "c", queue.jobs[0].NodeID)
}

func TestHandleJobBlueprintVersionMismatchDrops(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v2"}, []blueprint.NodeDefinition{
		{ID: "a", Uses: "function", Params: map[string]any{"fn": "identity"}},
	}, nil)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())

	var finished map[string]any
	publisher := publisherFunc(func(eventType string, payload map[string]any) {
		if eventType == "workflow:finish" {
			finished = payload
		}
	})
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath(), WithPublisher(publisher))

	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintVersion", "v1"))

	err := a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "a"})
	require.NoError(t, err)
	require.NotNil(t, finished)
	assert.Equal(t, "failed", finished["status"])
}

func TestHandleJobPoisonPillStopsAllJoinSuccessor(t *testing.T) {
	reg := executor.NewRegistry()
	reg.RegisterFunction("boom", func(ctx context.Context, input any) (any, error) {
		return nil, assert.AnError
	})
	reg.RegisterFunction("identity", func(ctx context.Context, input any) (any, error) {
		return input, nil
	})
	executor.RegisterBuiltins(reg, evaluator.NewSafePath())

	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"},
		[]blueprint.NodeDefinition{
			{ID: "a", Uses: "function", Params: map[string]any{"fn": "boom"}},
			{ID: "b", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "c", Uses: "function", Params: map[string]any{"fn": "identity"}, Config: blueprint.NodeConfig{JoinStrategy: blueprint.JoinAll}},
		},
		[]blueprint.EdgeDefinition{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(reg)
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath())

	require.NoError(t, kv.Set(context.Background(), "run1", "_inputs.b", "B"))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintId", bp.ID))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintVersion", bp.Metadata.Version))

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "a"}))
	// a's failure should have poisoned c.
	_, poisoned, err := coord.Get(context.Background(), poisonKey("run1", "c"))
	require.NoError(t, err)
	assert.True(t, poisoned)

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "b"}))
	snapshot, err := fctxAll(kv, "run1")
	require.NoError(t, err)
	_, cRan := snapshot["_outputs.c"]
	assert.False(t, cRan, "poisoned successor must never run")
}

func TestReconcileEnqueuesReadyFrontier(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"},
		[]blueprint.NodeDefinition{
			{ID: "a", Uses: "function", Params: map[string]any{"fn": "identity"}},
			{ID: "b", Uses: "function", Params: map[string]any{"fn": "identity"}},
		},
		[]blueprint.EdgeDefinition{{Source: "a", Target: "b"}},
	)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath())

	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintId", bp.ID))
	require.NoError(t, kv.Set(context.Background(), "run1", "_outputs.a", "a"))

	enqueued, err := a.Reconcile(context.Background(), "run1", bp)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, enqueued)

	_, locked, err := coord.Get(context.Background(), nodelockKey("run1", "b"))
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestCancelRunStopsSubsequentJobs(t *testing.T) {
	bp := blueprint.New("bp", blueprint.Metadata{Version: "v1"}, []blueprint.NodeDefinition{
		{ID: "a", Uses: "function", Params: map[string]any{"fn": "identity"}},
	}, nil)

	queue := &fakeQueue{}
	coord := newFakeCoord()
	kv := newFakeKV()
	exec := executor.NewExecutor(identityRegistry())

	var finished map[string]any
	publisher := publisherFunc(func(eventType string, payload map[string]any) {
		if eventType == "workflow:finish" {
			finished = payload
		}
	})
	a := New(queue, coord, &fakeBlueprintStore{bp: bp}, kv, exec, evaluator.NewSafePath(), WithPublisher(publisher))

	require.NoError(t, a.CancelRun(context.Background(), "run1"))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintId", bp.ID))
	require.NoError(t, kv.Set(context.Background(), "run1", "blueprintVersion", bp.Metadata.Version))

	require.NoError(t, a.HandleJob(context.Background(), Job{RunID: "run1", BlueprintID: bp.ID, NodeID: "a"}))
	require.NotNil(t, finished)
	assert.Equal(t, "cancelled", finished["status"])

	snapshot, err := fctxAll(kv, "run1")
	require.NoError(t, err)
	_, ran := snapshot["_outputs.a"]
	assert.False(t, ran)
}

type publisherFunc func(eventType string, payload map[string]any)

func (f publisherFunc) Publish(eventType string, payload map[string]any) { f(eventType, payload) }

func fctxAll(kv *fakeKV, runID string) (map[string]any, error) {
	return kv.All(context.Background(), runID)
}
