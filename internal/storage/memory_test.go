package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorango/flowcraft/internal/blueprint"
)

func TestMemoryKVStoreGetSetDeleteAll(t *testing.T) {
	s := NewMemoryKVStore()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "run1", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "run1", "a", 1))
	require.NoError(t, s.Set(ctx, "run1", "b", "two"))

	val, found, err := s.Get(ctx, "run1", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, val)

	all, err := s.All(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": "two"}, all)

	require.NoError(t, s.Delete(ctx, "run1", "a"))
	all, err = s.All(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": "two"}, all)
}

func TestMemoryKVStoreIsolatesRuns(t *testing.T) {
	s := NewMemoryKVStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "run1", "k", "run1-value"))
	require.NoError(t, s.Set(ctx, "run2", "k", "run2-value"))

	v1, _, err := s.Get(ctx, "run1", "k")
	require.NoError(t, err)
	v2, _, err := s.Get(ctx, "run2", "k")
	require.NoError(t, err)

	assert.Equal(t, "run1-value", v1)
	assert.Equal(t, "run2-value", v2)
}

func TestMemoryBlueprintStorePutGet(t *testing.T) {
	s := NewMemoryBlueprintStore()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	bp := blueprint.New("bp1", blueprint.Metadata{Version: "v1"}, nil, nil)
	require.NoError(t, s.Put(ctx, bp))

	got, found, err := s.Get(ctx, "bp1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, bp, got)
}

func TestMemoryEventLogRecordsInOrder(t *testing.T) {
	l := NewMemoryEventLog()

	l.Record("run1", "node:start", map[string]any{"nodeId": "a"})
	l.Record("run1", "node:finish", map[string]any{"nodeId": "a"})
	l.Record("run2", "node:start", map[string]any{"nodeId": "x"})

	events := l.Events("run1")
	require.Len(t, events, 2)
	assert.Equal(t, "node:start", events[0].Type)
	assert.Equal(t, "node:finish", events[1].Type)

	assert.Len(t, l.Events("run2"), 1)
	assert.Empty(t, l.Events("run3"))
}
