package obsv

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gorango/flowcraft/internal/executor"
)

// Tracer upgrades the teacher's ExecutionTrace — a mutex-guarded slice of
// TraceEvent structs accumulated in-process and rendered via String() —
// to real OpenTelemetry spans, since otel/otel/trace are already in this
// engine's stack. One span is opened per node execution (including
// retries, since runOnce rebuilds the middleware chain per attempt) and
// closed when the strategy dispatch returns.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps the named tracer from the global TracerProvider. name is
// typically the module path, matching how otel.Tracer is conventionally
// keyed per instrumented library.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NodeMiddleware opens a span named "node.<uses>" around the strategy
// dispatch, tagging it with the node's id and strategy and recording any
// returned error, the span-based equivalent of ExecutionTrace.AddEvent's
// eventType/nodeID/nodeType/error fields.
func (t *Tracer) NodeMiddleware() executor.Middleware {
	return func(next executor.Handler) executor.Handler {
		return func(ctx context.Context, sc *executor.StrategyContext) (*executor.Result, error) {
			ctx, span := t.tracer.Start(ctx, "node."+sc.Node.Uses, trace.WithAttributes(
				attribute.String("flowcraft.node_id", sc.Node.ID),
				attribute.String("flowcraft.node_uses", sc.Node.Uses),
			))
			defer span.End()

			result, err := next(ctx, sc)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}
			span.SetStatus(codes.Ok, "")
			return result, nil
		}
	}
}
