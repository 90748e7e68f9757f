package obsv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/executor"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return &Tracer{tracer: provider.Tracer("flowcraft-test")}, exporter
}

func TestNodeMiddlewareRecordsSpanOnSuccess(t *testing.T) {
	tr, exporter := newRecordingTracer(t)

	wrapped := tr.NodeMiddleware()(func(ctx context.Context, sc *executor.StrategyContext) (*executor.Result, error) {
		return &executor.Result{Output: "ok"}, nil
	})

	sc := &executor.StrategyContext{Node: &blueprint.NodeDefinition{ID: "n1", Uses: "function"}}
	_, err := wrapped(context.Background(), sc)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "node.function", spans[0].Name)
}

func TestNodeMiddlewareRecordsErrorStatus(t *testing.T) {
	tr, exporter := newRecordingTracer(t)

	wrapped := tr.NodeMiddleware()(func(ctx context.Context, sc *executor.StrategyContext) (*executor.Result, error) {
		return nil, errors.New("boom")
	})

	sc := &executor.StrategyContext{Node: &blueprint.NodeDefinition{ID: "n1", Uses: "function"}}
	_, err := wrapped(context.Background(), sc)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, 1, len(spans[0].Events))
}
