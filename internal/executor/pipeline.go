package executor

import (
	"context"
	"time"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/errs"
	"github.com/gorango/flowcraft/internal/fctx"
)

// Handler runs a strategy dispatch, wrapped by zero or more Middleware.
type Handler func(ctx context.Context, sc *StrategyContext) (*Result, error)

// Middleware wraps a Handler with a cross-cutting concern (logging,
// tracing, metrics); composed around the strategy call per spec.md §4.4
// step 2. Retries/timeouts are applied by the Executor itself, outside the
// middleware chain, since they need to re-invoke the whole chain per
// attempt.
type Middleware func(next Handler) Handler

// Executor runs one node at a time through the full pipeline: input
// resolution, middleware chain, strategy dispatch, retry/timeout,
// fallback, and output publication.
type Executor struct {
	registry     *Registry
	middleware   []Middleware
	publisher    fctx.EventPublisher
	defaultRetry RetryPolicy
	breakers     *CircuitBreakers
	runner       BlueprintRunner
}

// Option configures an Executor at construction.
type Option func(*Executor)

func WithPublisher(p fctx.EventPublisher) Option { return func(e *Executor) { e.publisher = p } }
func WithDefaultRetryPolicy(p RetryPolicy) Option { return func(e *Executor) { e.defaultRetry = p } }
func WithCircuitBreakers(c *CircuitBreakers) Option {
	return func(e *Executor) { e.breakers = c }
}

func NewExecutor(registry *Registry, opts ...Option) *Executor {
	e := &Executor{registry: registry, defaultRetry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Use appends mw to the middleware chain, outermost-registered-first.
func (e *Executor) Use(mw Middleware) { e.middleware = append(e.middleware, mw) }

// SetRunner wires the BlueprintRunner the subflow strategy calls into.
// Runtime calls this once after constructing both itself and its Executor.
func (e *Executor) SetRunner(r BlueprintRunner) { e.runner = r }

func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs node to completion (including retries and fallback) and
// publishes its output, or returns the surviving error.
func (e *Executor) Execute(ctx context.Context, node *blueprint.NodeDefinition, bp *blueprint.Blueprint, nctx fctx.Context) (*Result, error) {
	input := ResolveInput(bp, node, nctx)
	sc := &StrategyContext{Node: node, Input: input, Ctx: nctx, Blueprint: bp, Exec: e}

	e.publish("node:start", map[string]any{"nodeId": node.ID})

	var breaker *CircuitBreaker
	if e.breakers != nil {
		breaker = e.breakers.For(node.ID)
		if err := breaker.Allow(); err != nil {
			wrapped := errs.NewForNode(errs.Coordination, node.ID, "circuit open", err)
			e.publish("node:error", map[string]any{"nodeId": node.ID, "error": wrapped.Error()})
			return nil, wrapped
		}
	}

	result, err := e.runWithRetry(ctx, sc)
	if breaker != nil {
		breaker.Record(err)
	}

	if err != nil && node.Config.Fallback != "" {
		fallbackResult, fbErr := e.runFallback(ctx, node, sc)
		if fbErr == nil {
			fallbackResult.FallbackUsed = true
			e.publish("node:fallback", map[string]any{"nodeId": node.ID})
			result, err = fallbackResult, nil
		}
	}

	if err != nil {
		e.publish("node:error", map[string]any{"nodeId": node.ID, "error": err.Error()})
		return nil, err
	}

	if result.Suspend == nil {
		nctx.Set("_outputs."+node.ID, result.Output)
	}
	e.publish("node:finish", map[string]any{"nodeId": node.ID})
	return result, nil
}

func (e *Executor) runWithRetry(ctx context.Context, sc *StrategyContext) (*Result, error) {
	// config.maxRetries is the authoritative attempt count per spec.md
	// §4.4 step 4; only backoff shape (base delay, multiplier, cap) comes
	// from the engine's default policy.
	policy := e.defaultRetry.WithMaxAttempts(sc.Node.Config.MaxRetries)

	var lastErr error
	for attempt := 0; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.publish("node:retry", map[string]any{"nodeId": sc.Node.ID, "attempt": attempt})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.delay(attempt)):
			}
		}

		result, err := e.runOnce(ctx, sc)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if fe, ok := err.(*errs.Error); ok && fe.IsFatal() {
			return nil, err
		}
	}
	return nil, lastErr
}

// runOnce invokes the middleware chain (built fresh so chains observing
// per-attempt state work correctly) around the strategy dispatch, applying
// the node's configured timeout if any.
func (e *Executor) runOnce(ctx context.Context, sc *StrategyContext) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	switch {
	case sc.Node.Config.Timeout == nil:
		// no timeout configured; run under the parent context as-is.
	case *sc.Node.Config.Timeout <= 0:
		// timeout=0 fires immediately per spec.md §8's boundary behavior,
		// rather than being mistaken for "no timeout configured".
		runCtx, cancel = context.WithDeadline(ctx, time.Now())
		defer cancel()
	default:
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(*sc.Node.Config.Timeout)*time.Millisecond)
		defer cancel()
	}

	handler := e.dispatch
	for i := len(e.middleware) - 1; i >= 0; i-- {
		handler = e.middleware[i](handler)
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(runCtx, sc)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, errs.NewForNode(errs.KindOf(o.err), sc.Node.ID, o.err.Error(), o.err)
		}
		return o.result, nil
	case <-runCtx.Done():
		return nil, errs.NewForNode(errs.Timeout, sc.Node.ID, "node execution timed out", runCtx.Err())
	}
}

func (e *Executor) dispatch(ctx context.Context, sc *StrategyContext) (*Result, error) {
	strategy, ok := e.registry.Strategy(sc.Node.Uses)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, sc.Node.ID, "unknown strategy: "+sc.Node.Uses, nil)
	}
	return strategy.Execute(ctx, sc)
}

func (e *Executor) runFallback(ctx context.Context, node *blueprint.NodeDefinition, sc *StrategyContext) (*Result, error) {
	fn, ok := e.registry.Function(node.Config.Fallback)
	if !ok {
		return nil, errs.NewForNode(errs.Validation, node.ID, "unknown fallback function: "+node.Config.Fallback, nil)
	}
	output, err := fn(ctx, sc.Input)
	if err != nil {
		return nil, err
	}
	return &Result{Output: output}, nil
}

func (e *Executor) publish(eventType string, payload map[string]any) {
	if e.publisher != nil {
		e.publisher.Publish(eventType, payload)
	}
}
