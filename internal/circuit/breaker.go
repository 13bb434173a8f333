package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Calls rejected
	StateHalfOpen BreakerState = "half_open" // Probing recovery
)

// ErrOpen is returned when a call is rejected because the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	Cooldown         time.Duration `json:"cooldown"`          // Time before half-open probing
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         time.Minute,
	}
}

// Breaker guards one external dependency. It opens after a configured number
// of consecutive failures, rejects calls while open, and probes with a single
// trial call (half-open) once the cooldown has elapsed.
type Breaker struct {
	name                string
	config              *BreakerConfig
	state               BreakerState
	consecutiveFailures int
	totalFailures       int64
	totalSuccesses      int64
	lastFailure         time.Time
	openedAt            time.Time
	lastError           string
	mu                  sync.RWMutex
	onTrip              func(name, reason string)
	onReset             func(name string)
}

// NewBreaker creates a breaker for the named dependency
func NewBreaker(name string, config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Name returns the dependency name this breaker guards
func (b *Breaker) Name() string {
	return b.name
}

// OnTrip sets the callback invoked when the breaker opens
func (b *Breaker) OnTrip(handler func(name, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback invoked when the breaker closes again
func (b *Breaker) OnReset(handler func(name string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Allow reports whether a call may proceed. While open it returns false until
// the cooldown elapses, at which point the breaker moves to half-open and one
// trial call is let through.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true, nil
	case StateOpen:
		if time.Since(b.openedAt) < b.config.Cooldown {
			remaining := b.config.Cooldown - time.Since(b.openedAt)
			return false, fmt.Errorf("%w: %s cooling down for %v (last error: %s)",
				ErrOpen, b.name, remaining.Round(time.Second), b.lastError)
		}
		b.state = StateHalfOpen
		return true, nil
	}
	return false, fmt.Errorf("%w: %s in unknown state", ErrOpen, b.name)
}

// RecordSuccess records a successful call and closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.totalSuccesses++
	b.consecutiveFailures = 0
	recovered := b.state != StateClosed
	b.state = StateClosed
	onReset := b.onReset
	name := b.name
	b.mu.Unlock()

	if recovered && onReset != nil {
		go onReset(name)
	}
}

// RecordFailure records a failed call. A failure in half-open state reopens
// immediately; in closed state the breaker opens once the threshold is hit.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	b.totalFailures++
	b.consecutiveFailures++
	b.lastFailure = time.Now()
	if err != nil {
		b.lastError = err.Error()
	}

	var reason string
	switch {
	case b.state == StateHalfOpen:
		reason = fmt.Sprintf("probe failed: %s", b.lastError)
	case b.consecutiveFailures >= b.config.FailureThreshold:
		reason = fmt.Sprintf("%d consecutive failures", b.consecutiveFailures)
	}

	var onTrip func(string, string)
	if reason != "" && b.state != StateOpen {
		b.state = StateOpen
		b.openedAt = time.Now()
		onTrip = b.onTrip
	} else if reason != "" {
		b.openedAt = time.Now()
	}
	name := b.name
	b.mu.Unlock()

	if onTrip != nil {
		go onTrip(name, reason)
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns current statistics
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"name":                 b.name,
		"state":                string(b.state),
		"consecutive_failures": b.consecutiveFailures,
		"total_failures":       b.totalFailures,
		"total_successes":      b.totalSuccesses,
		"last_error":           b.lastError,
		"last_failure":         b.lastFailure,
	}
}

// Registry holds one breaker per external dependency so every call site uses
// the same instance for the same collaborator.
type Registry struct {
	mu       sync.Mutex
	config   *BreakerConfig
	breakers map[string]*Breaker
}

// NewRegistry creates a registry using the given config for new breakers
func NewRegistry(config *BreakerConfig) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency, creating it on first use
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.config)
	r.breakers[name] = b
	return b
}

// Stats returns statistics for every registered breaker
func (r *Registry) Stats() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]map[string]interface{}, 0, len(r.breakers))
	for _, b := range r.breakers {
		stats = append(stats, b.Stats())
	}
	return stats
}
