// Package tenantclient is the Router's front-door request broker: given
// a tenant_id and an envelope, resolve the worker via the Supervisor and
// Channel Pool, dispatch with retry, and short-circuit a failing tenant
// without affecting any other tenant. breaker.go is the per-tenant
// Closed/Open/HalfOpen state machine; client.go wires it to transport
// dispatch and retry.
package tenantclient

import (
	"sync"
	"time"

	"github.com/LerianStudio/acsd/pkg/mcircuitbreaker"
)

// BreakerState is the Circuit Breaker's state.
type BreakerState string

const (
	StateClosed   BreakerState = "Closed"
	StateOpen     BreakerState = "Open"
	StateHalfOpen BreakerState = "HalfOpen"
)

// BreakerConfig holds the breaker's trip and recovery policy.
type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and holds
// the circuit open for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// Breaker is one tenant's circuit breaker state, guarded by its own
// lock: constant-time operations, no cross-tenant contention.
type Breaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	nextProbeAt         time.Time
	halfOpenProbeInFlight bool

	listener mcircuitbreaker.StateListener
	name     string
}

// NewBreaker builds a Closed breaker for tenant name. listener may be nil
// — when set, every transition is reported through it (internal/lifecyclebus
// wires this to fan transitions out over RabbitMQ, purely ambient).
func NewBreaker(name string, cfg BreakerConfig, listener mcircuitbreaker.StateListener) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: StateClosed, name: name, listener: listener}
}

// Admit decides whether a call may proceed now. It returns ok=false
// with CircuitOpen semantics when the
// breaker is Open and the probe window hasn't arrived, or when a
// HalfOpen probe is already in flight (only one probe is ever allowed
// through concurrently).
func (b *Breaker) Admit(now time.Time) (ok bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false

	case StateOpen:
		if now.Before(b.nextProbeAt) {
			return false, false
		}
		// The open window has elapsed: transition to HalfOpen and
		// allow exactly one probe through.
		if b.halfOpenProbeInFlight {
			return false, false
		}
		b.setState(StateHalfOpen)
		b.halfOpenProbeInFlight = true
		return true, true

	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false, false
		}
		b.halfOpenProbeInFlight = true
		return true, true

	default:
		return true, false
	}
}

// RecordSuccess closes the breaker on a successful HalfOpen probe and
// zeroes the consecutive-failure count. A success in Closed is a no-op
// beyond clearing any stray failure count.
func (b *Breaker) RecordSuccess(wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if wasProbe {
		b.halfOpenProbeInFlight = false
	}
	b.consecutiveFailures = 0
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
}

// RecordFailure reopens the breaker immediately on any HalfOpen
// failure, and trips Closed to Open once the threshold is reached. now
// is used to set the next probe window.
func (b *Breaker) RecordFailure(now time.Time, wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if wasProbe {
		b.halfOpenProbeInFlight = false
	}

	switch b.state {
	case StateHalfOpen:
		b.openAt(now)
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.openAt(now)
		}
	case StateOpen:
		// Already open; extend the probe window defensively.
		b.openAt(now)
	}
}

func (b *Breaker) openAt(now time.Time) {
	b.openedAt = now
	b.nextProbeAt = now.Add(b.cfg.OpenTimeout)
	b.setState(StateOpen)
}

// setState must be called with mu held. It reports the transition to the
// listener, if any, while mu is still held, so listeners must not block
// (ambient fan-out only).
func (b *Breaker) setState(next BreakerState) {
	prev := b.state
	b.state = next
	if next == StateClosed {
		b.consecutiveFailures = 0
	}
	if b.listener != nil && prev != next {
		b.listener.OnCircuitBreakerStateChange(mcircuitbreaker.StateChangeEvent{
			ServiceName: b.name,
			FromState:   convertBreakerState(prev),
			ToState:     convertBreakerState(next),
			Counts:      mcircuitbreaker.Counts{ConsecutiveFailures: uint32(b.consecutiveFailures)},
		})
	}
}

// Snapshot returns the current state for observability/tests.
func (b *Breaker) Snapshot() (state BreakerState, consecutiveFailures int, nextProbeAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.consecutiveFailures, b.nextProbeAt
}

func convertBreakerState(s BreakerState) mcircuitbreaker.State {
	switch s {
	case StateClosed:
		return mcircuitbreaker.StateClosed
	case StateHalfOpen:
		return mcircuitbreaker.StateHalfOpen
	case StateOpen:
		return mcircuitbreaker.StateOpen
	default:
		return mcircuitbreaker.StateClosed
	}
}

// BreakerRegistry owns one Breaker per tenant, created lazily on first
// call and living as long as the Router.
type BreakerRegistry struct {
	cfg      BreakerConfig
	listener mcircuitbreaker.StateListener

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerRegistry builds an empty per-tenant breaker registry.
func NewBreakerRegistry(cfg BreakerConfig, listener mcircuitbreaker.StateListener) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, listener: listener, breakers: make(map[string]*Breaker)}
}

// Get returns tenantID's breaker, creating it lazily on first access.
func (r *BreakerRegistry) Get(tenantID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[tenantID]; ok {
		return b
	}
	b := NewBreaker(tenantID, r.cfg, r.listener)
	r.breakers[tenantID] = b
	return b
}
