// Package executor runs a single node: input resolution, a middleware
// chain, strategy dispatch, retry/timeout/fallback policy, and output
// publication — spec.md §4.4's Executor Pipeline.
package executor

import (
	"context"
	"time"

	"github.com/gorango/flowcraft/internal/blueprint"
	"github.com/gorango/flowcraft/internal/fctx"
)

// Function is a user-registered unit of work: the "function" strategy
// invokes one directly, and it doubles as the callable shape for
// fallbacks and batch/loop worker references.
type Function func(ctx context.Context, input any) (any, error)

// Strategy dispatches a node's configured behavior (function, batch, loop,
// subflow, wait, parallel-container, or a user-registered custom one).
type Strategy interface {
	Execute(ctx context.Context, sc *StrategyContext) (*Result, error)
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(ctx context.Context, sc *StrategyContext) (*Result, error)

func (f StrategyFunc) Execute(ctx context.Context, sc *StrategyContext) (*Result, error) {
	return f(ctx, sc)
}

// StrategyContext is everything a strategy needs: the node it's running
// for, its resolved input, the run's Context, the blueprint it belongs to
// (for loop/parallel-container/subflow to look up sibling nodes), and the
// Executor itself so composite strategies can recursively run other
// nodes.
type StrategyContext struct {
	Node      *blueprint.NodeDefinition
	Input     any
	Ctx       fctx.Context
	Blueprint *blueprint.Blueprint
	Exec      *Executor
}

// Suspend is returned by the "wait" strategy in place of an output: the
// node produces no result until scheduler.Resume supplies one.
type Suspend struct {
	Reason    string // "sleep" | "event" | "webhook"
	Duration  time.Duration // set when Reason == "sleep"
	EventName string
	WebhookID string
}

// Result is a strategy's outcome.
type Result struct {
	Output       any
	Action       string
	DynamicNodes []blueprint.NodeDefinition
	DynamicEdges []blueprint.EdgeDefinition
	Suspend      *Suspend
	FallbackUsed bool
}

// BlueprintRunner lets the subflow strategy run a child blueprint to
// completion without the executor package importing the traverser/runtime
// packages that would otherwise create an import cycle (they import
// executor to run nodes). Runtime implements this and is injected via
// Executor.SetRunner.
type BlueprintRunner interface {
	RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, initialState map[string]any) (map[string]any, error)
}
