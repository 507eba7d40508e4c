// Package broker wraps a venue Gateway with per-call timeouts, bounded
// retry and a circuit breaker, and holds the resilience primitives shared
// with the Redis publisher.
package broker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, calls pass through
	StateOpen     State = 1 // Tripped, calls rejected immediately
	StateHalfOpen State = 2 // One probe call allowed through
)

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

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for resetTimeout. It then lets a single probe through: success
// closes it, failure reopens it. Calls arriving while a probe is running
// are rejected.
type CircuitBreaker struct {
	Name string

	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	now          func() time.Time

	// OnStateChange is called on every transition, under the breaker lock.
	OnStateChange func(name string, from, to State)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		Name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the breaker. Errors for which countFailure
// returns false (for example a venue rejecting an order) pass through
// without counting against the breaker; a nil countFailure counts every
// error.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteCounting(fn, nil)
}

// ExecuteCounting is Execute with a failure classifier.
func (cb *CircuitBreaker) ExecuteCounting(fn func() error, countFailure func(error) bool) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil && (countFailure == nil || countFailure(err)) {
		cb.failures++
		if wasProbe || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return err
	}

	if wasProbe {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return err
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(cb.Name, from, to)
	}
}
