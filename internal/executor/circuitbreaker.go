package executor

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is a circuit breaker's current posture.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig tunes one breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 60 * time.Second}
}

// CircuitBreaker is opt-in per node (spec.md doesn't mandate it; it's a
// supplemented piece of the retry/timeout policy's ambient resiliency
// stack). Grounded on smilemakc/mbflow's
// internal/application/executor/circuit_breaker.go, trimmed of its
// half-open concurrent-request limiter (this engine already bounds
// concurrency at the orchestrator level) down to the closed/open/half-open
// state machine.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	state  CircuitState

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed}
}

// ErrCircuitOpen is returned by Allow when the breaker is open.
type ErrCircuitOpen struct {
	OpenedAt time.Time
	Timeout  time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit open since %s (retry after %s)", e.OpenedAt.Format(time.RFC3339), e.Timeout)
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once OpenTimeout has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.OpenTimeout {
			cb.state = StateHalfOpen
			cb.consecutiveSuccesses = 0
			return nil
		}
		return &ErrCircuitOpen{OpenedAt: cb.openedAt, Timeout: cb.config.OpenTimeout}
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return
	}

	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.state = StateClosed
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakers manages one breaker per node ID, created lazily.
type CircuitBreakers struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewCircuitBreakers(config CircuitBreakerConfig) *CircuitBreakers {
	return &CircuitBreakers{config: config, breakers: make(map[string]*CircuitBreaker)}
}

func (c *CircuitBreakers) For(nodeID string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[nodeID]
	if !ok {
		cb = NewCircuitBreaker(c.config)
		c.breakers[nodeID] = cb
	}
	return cb
}
