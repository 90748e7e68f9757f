package executor

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls the backoff schedule between retry attempts.
// Grounded on smilemakc/mbflow's internal/application/executor/retry.go
// RetryExecutor/RetryPolicy (exponential backoff with jitter and a max-delay
// cap), narrowed to spec.md §4.4's baseline (exponential, base=100ms,
// factor=2) as the default, still overridable per node via
// blueprint.NodeConfig.MaxRetries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultRetryPolicy is spec.md's prescribed baseline: exponential,
// base=100ms, factor=2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// WithMaxAttempts returns a copy of p with MaxAttempts set, used to apply a
// node's config.maxRetries override to the default policy.
func (p RetryPolicy) WithMaxAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

// delay returns the backoff before retry attempt number attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d += d * 0.1 * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
