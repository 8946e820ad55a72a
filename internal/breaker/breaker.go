// Package breaker implements a per-backend circuit breaker.
//
// Each backend adapter gets its own Breaker instance with independently
// tuned thresholds. Breaker state lives in process memory only; it is
// never persisted across restarts.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the normal operation state.
	Closed State = iota
	// Open rejects all requests.
	Open
	// HalfOpen allows one trial request to check recovery.
	HalfOpen
)

// String returns the string representation of the circuit state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the circuit is open and the recovery
// window has not yet elapsed. The wrapped backend is never invoked.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker.
type Config struct {
	FailureThreshold int           // Consecutive failures before opening (default: 5)
	RecoveryTimeout  time.Duration // Time in open state before permitting a trial call (default: 60s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// Breaker tracks call outcomes for one backend and short-circuits calls
// while the backend is considered down.
//
// A single success in closed or half-open state fully resets the breaker:
// the state returns to closed and the failure count drops to zero. There
// is no success streak requirement.
type Breaker struct {
	mu sync.RWMutex

	name        string
	state       State
	failures    int
	lastFailure time.Time

	failureThreshold int
	recoveryTimeout  time.Duration
}

// New creates a circuit breaker named after the backend it guards.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}

	return &Breaker{
		name:             name,
		state:            Closed,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
	}
}

// Name returns the backend name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Allow checks whether a call may proceed.
// Uses an exclusive lock to safely handle the Open -> HalfOpen transition.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.lastFailure) > b.recoveryTimeout {
			b.state = HalfOpen
			return nil
		}
		return ErrOpen
	case HalfOpen:
		return nil // trial request
	}
	return nil
}

// Success records a successful call. In any non-open state the breaker
// closes and the failure count resets to zero.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		return
	}
	b.state = Closed
	b.failures = 0
}

// Failure records a failed call. Reaching the failure threshold from the
// closed state, or any failure in the half-open state, opens the circuit.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case Closed:
		if b.failures >= b.failureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}

// Reset returns the breaker to the closed state.
// This is primarily useful for testing.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.lastFailure = time.Time{}
}
