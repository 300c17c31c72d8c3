// Package awsclient owns the pieces of the AWS collaborator surface that
// aren't specific to any one service: the shared client pool, and the
// circuit breaker wrapped around every outbound call so a struggling AWS
// service fails fast for every room sharing the breaker instead of backing
// up every room's goroutines behind a slow dependency.
package awsclient

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker guards calls to one external collaborator (a region's
// Transcribe or Translate endpoint). It opens after a run of failures,
// probes in half-open state, and closes again after a run of successes.
type CircuitBreaker struct {
	state            string
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldownPeriod   time.Duration
	openTime         time.Time
	halfOpenRequests int
	maxHalfOpen      int
	mu               sync.RWMutex
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	CooldownPeriod   time.Duration
	MaxHalfOpen      int
}

// DefaultCircuitBreakerConfig returns a conservative default: trips after 5
// consecutive failures, needs 3 consecutive successes in half-open to close,
// and waits 30s before probing again.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 3,
		CooldownPeriod:   30 * time.Second,
		MaxHalfOpen:      1,
	}
}

// NewCircuitBreaker constructs a CircuitBreaker. A nil cfg uses
// DefaultCircuitBreakerConfig("default").
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig("default")
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldownPeriod:   cfg.CooldownPeriod,
		maxHalfOpen:      cfg.MaxHalfOpen,
	}
}

// Execute runs fn under circuit breaker protection, returning
// ErrCircuitOpen without calling fn if the breaker is tripped.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if !cb.allowRequestLocked() {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	wasHalfOpen := cb.state == StateHalfOpen
	if wasHalfOpen {
		cb.halfOpenRequests++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if wasHalfOpen && cb.state == StateHalfOpen {
		cb.halfOpenRequests--
	}
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequestLocked() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openTime) > cb.cooldownPeriod {
			cb.state = StateHalfOpen
			cb.halfOpenRequests = 0
			cb.successCount = 0
			return true
		}
		return false
	case StateHalfOpen:
		return cb.halfOpenRequests < cb.maxHalfOpen
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.successCount = 0

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.tripBreaker()
		}
	case StateHalfOpen:
		cb.tripBreaker()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.successCount++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		if cb.successCount >= cb.successThreshold {
			cb.reset()
		}
	}
}

func (cb *CircuitBreaker) tripBreaker() {
	cb.state = StateOpen
	cb.openTime = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
}

// State returns the current state.
func (cb *CircuitBreaker) State() string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

