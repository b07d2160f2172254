// Package k8s wraps client-go with per-cluster timeouts, retries, rate
// limiting, and a circuit breaker, and adapts metrics-server readings into
// the analytics domain model.
package k8s

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fleetscope/fleetscope-backend/internal/pkg/metrics"
)

// ErrCircuitOpen is returned without touching the cluster when the breaker
// is open. Callers must treat it as "cluster unavailable", not as a query error.
var ErrCircuitOpen = errors.New("circuit breaker is open: cluster API unavailable")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // normal operation
	StateOpen                                // failing fast
	StateHalfOpen                            // single probe allowed
)

// String returns the state name used in metrics labels and health payloads.
func (s CircuitBreakerState) String() string {
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

// CircuitBreaker protects one cluster's API server. After 5 consecutive
// retryable failures the circuit opens for 30 seconds; the first call after
// the cooldown runs as a probe, and its outcome decides closed vs. open.
type CircuitBreaker struct {
	mu sync.RWMutex

	failureThreshold int
	openDuration     time.Duration
	halfOpenMaxCalls int
	clusterID        string

	state             CircuitBreakerState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
	lastStateChange   time.Time
}

// NewCircuitBreaker creates a breaker with the default 5-failure / 30s policy.
func NewCircuitBreaker(clusterID string) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		halfOpenMaxCalls: 1,
		state:            StateClosed,
		clusterID:        clusterID,
		lastStateChange:  time.Now(),
	}
	metrics.CircuitBreakerState.WithLabelValues(clusterID).Set(float64(StateClosed))
	return cb
}

// setState updates the state and records the transition. Caller holds mu.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	metrics.CircuitBreakerTransitionsTotal.WithLabelValues(cb.clusterID, cb.state.String(), newState.String()).Inc()
	metrics.CircuitBreakerState.WithLabelValues(cb.clusterID).Set(float64(newState))
	cb.state = newState
	cb.lastStateChange = time.Now()
}

// Execute runs fn under breaker protection. Only retryable errors (network,
// timeouts, 5xx, 429) count toward opening the circuit; errors like 404 or
// 403 pass through without affecting breaker state.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if isRetryableError(err) {
			cb.failureCount++
			cb.lastFailureTime = time.Now()
			metrics.CircuitBreakerFailuresTotal.WithLabelValues(cb.clusterID).Inc()

			if cb.state == StateHalfOpen {
				// Probe failed, back to open for another cooldown.
				cb.setState(StateOpen)
				cb.halfOpenCallCount = 0
			} else if cb.failureCount >= cb.failureThreshold {
				cb.setState(StateOpen)
			}
		} else {
			// Non-retryable errors break the consecutive-failure streak.
			cb.failureCount = 0
		}
		return err
	}

	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
		cb.halfOpenCallCount = 0
	}
	return nil
}

// admit decides under a single lock acquisition whether a call may proceed.
// Open transitions to half-open once the cooldown has elapsed; half-open
// admits at most halfOpenMaxCalls in-flight probes.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.openDuration {
		cb.setState(StateHalfOpen)
		cb.halfOpenCallCount = 0
	}

	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCallCount >= cb.halfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenCallCount++
	}
	return nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// FailureCount returns the current consecutive retryable failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// isRetryableError reports whether an error should count toward opening the
// circuit: context timeouts, Kubernetes 5xx/429, and network-level failures.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if isRetryable(err) {
		return true
	}
	errStr := err.Error()
	for _, sub := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network",
		"unreachable",
		"no such host",
		"dial tcp",
		"i/o timeout",
	} {
		if strings.Contains(errStr, sub) {
			return true
		}
	}
	return false
}
