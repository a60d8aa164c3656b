// Package httpx holds the resilience policy shared by the indexer and
// relay HTTP clients: a per-endpoint circuit breaker and a token-bucket
// rate limiter.
package httpx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/config"
)

// CircuitBreaker implements the closed/open/half-open pattern in front of a
// single external collaborator (one Indexer variant, or the Relay).
type CircuitBreaker struct {
	mu               sync.Mutex
	state            string
	consecutiveFails int
	threshold        int
	cooldown         time.Duration
	lastFailure      time.Time
	halfOpenAllowed  int
	halfOpenCount    int
	name             string
}

// NewCircuitBreaker builds a circuit breaker with the given threshold and cooldown.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		state:           config.CircuitClosed,
		threshold:       threshold,
		cooldown:        cooldown,
		halfOpenAllowed: config.CircuitBreakerHalfOpenMax,
	}
}

// Allow reports whether a call should be attempted right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case config.CircuitClosed:
		return true
	case config.CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.cooldown {
			slog.Debug("circuit breaker half-open probe", "name", cb.name)
			cb.state = config.CircuitHalfOpen
			cb.halfOpenCount = 0
			return true
		}
		return false
	case config.CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenAllowed {
			cb.halfOpenCount++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	prev := cb.state
	cb.consecutiveFails = 0
	cb.state = config.CircuitClosed
	cb.halfOpenCount = 0
	if prev != config.CircuitClosed {
		slog.Info("circuit breaker closed", "name", cb.name, "previousState", prev)
	}
}

// RecordFailure registers a failed call, possibly tripping the breaker open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	if cb.state == config.CircuitHalfOpen {
		cb.state = config.CircuitOpen
		cb.halfOpenCount = 0
		slog.Warn("circuit breaker reopened", "name", cb.name, "consecutiveFails", cb.consecutiveFails)
		return
	}
	if cb.consecutiveFails >= cb.threshold {
		cb.state = config.CircuitOpen
		cb.halfOpenCount = 0
		slog.Warn("circuit breaker tripped open", "name", cb.name, "consecutiveFails", cb.consecutiveFails, "threshold", cb.threshold)
	}
}

// State returns the current state string.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
