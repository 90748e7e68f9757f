package evaluator

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Sandboxed evaluates arbitrary expr-lang expressions against a scope map.
// Only the scope's own keys are visible to the expression; there is no
// access to globals, the filesystem, or the process. Explicitly unsafe for
// untrusted expression *input* (an attacker who controls the expression
// string, not just the scope values, can still write arbitrarily expensive
// programs) — spec.md calls this out as the unsafe/sandboxed half of the
// pair, contrasted with SafePath.
//
// Grounded on smilemakc/mbflow's internal/application/executor/conditions.go
// ConditionEvaluator: same expr.Compile+expr.Run plus a compiled-program
// cache, generalized from a bool-only condition evaluator to a general
// evaluate(expression,scope)->any usable for both conditions and transforms,
// and with the "undefined-on-any-failure" contract spec.md requires instead
// of conditions.go's error-returning one.
type Sandboxed struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewSandboxed returns a Sandboxed evaluator with an empty compile cache.
func NewSandboxed() *Sandboxed {
	return &Sandboxed{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or reuses a cached compile of) expression against the
// keys of scope and runs it. Any compile or runtime failure yields nil.
func (s *Sandboxed) Evaluate(expression string, scope map[string]any) any {
	if expression == "" {
		return nil
	}

	program, err := s.compiled(expression, scope)
	if err != nil {
		return nil
	}

	result, err := expr.Run(program, scope)
	if err != nil {
		return nil
	}
	return result
}

func (s *Sandboxed) compiled(expression string, scope map[string]any) (*vm.Program, error) {
	s.mu.RLock()
	program, ok := s.cache[expression]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(scope), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[expression] = program
	s.mu.Unlock()
	return program, nil
}
