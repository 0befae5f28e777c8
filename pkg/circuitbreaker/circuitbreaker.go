// Package circuitbreaker implements the Circuit Breaker pattern for fault
// tolerance. It protects the evaluation pipeline from a failing external
// notifier: award and streak notices keep flowing to the breaker, which
// sheds them while the downstream service is down instead of stalling
// evaluation jobs.
// No external dependencies - uses only standard library.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state - requests are allowed through.
	StateClosed State = iota
	// StateOpen is the failure state - requests are blocked.
	StateOpen
	// StateHalfOpen is the recovery state - limited requests allowed to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit is open and requests are blocked.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when too many requests are made in half-open state.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies this circuit breaker (for logging).
	Name string

	// FailureThreshold is the number of consecutive failures before
	// opening the circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open state
	// before closing the circuit. Default: 2
	SuccessThreshold int

	// Timeout is how long to wait in open state before transitioning
	// to half-open. Default: 30s
	Timeout time.Duration

	// MaxHalfOpenRequests is the maximum number of in-flight requests
	// allowed in half-open state. Default: 1
	MaxHalfOpenRequests int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker tracks failures of a protected operation and blocks
// calls while the downstream is considered unhealthy.
type CircuitBreaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	halfOpenInUse int
	openedAt      time.Time
}

// New creates a circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxHalfOpenRequests <= 0 {
		cfg.MaxHalfOpenRequests = 1
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState resolves open→half-open transitions. Caller holds the lock.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Timeout {
		cb.transition(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInUse = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.cfg.MaxHalfOpenRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenInUse++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if err != nil {
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
		} else {
			cb.failures = 0
		}
	case StateHalfOpen:
		if cb.halfOpenInUse > 0 {
			cb.halfOpenInUse--
		}
		if err != nil {
			cb.transition(StateOpen)
		} else {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
	}
}
