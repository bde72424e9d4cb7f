// Package mcircuitbreaker adapts lib-commons' circuit breaker state
// change callback to this repository's own State/Counts/StateChangeEvent
// shape, the way pkg/mzap adapts zap's Logger to mlog.Logger. Used by
// internal/tenantclient's breaker to surface Closed/Open/HalfOpen
// transitions to internal/lifecyclebus without every caller importing
// lib-commons directly.
package mcircuitbreaker

import (
	libCircuitBreaker "github.com/LerianStudio/lib-commons/v2/commons/circuitbreaker"
)

// State mirrors lib-commons' circuit breaker State, kept as its own type
// so this repository's callers never import lib-commons for it.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts mirrors lib-commons' per-breaker request counters at the
// moment of a state transition.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeEvent is one breaker transition, named by the tenant/service
// whose breaker moved.
type StateChangeEvent struct {
	ServiceName string
	FromState   State
	ToState     State
	Counts      Counts
}

// StateListener receives breaker transitions in this package's own
// vocabulary. internal/lifecyclebus implements this to fan transitions
// out over RabbitMQ without depending on lib-commons types.
type StateListener interface {
	OnCircuitBreakerStateChange(event StateChangeEvent)
}

// LibCommonsAdapter implements lib-commons' StateChangeListener and
// forwards every callback to a wrapped StateListener, translating types
// on the way.
type LibCommonsAdapter struct {
	listener StateListener
}

// NewLibCommonsAdapter wraps listener so it can be registered against a
// lib-commons circuit breaker as its StateChangeListener.
func NewLibCommonsAdapter(listener StateListener) *LibCommonsAdapter {
	return &LibCommonsAdapter{listener: listener}
}

// OnStateChange implements lib-commons' StateChangeListener. With a nil
// wrapped listener it does nothing.
func (a *LibCommonsAdapter) OnStateChange(serviceName string, from, to libCircuitBreaker.State, counts libCircuitBreaker.Counts) {
	if a.listener == nil {
		return
	}
	a.listener.OnCircuitBreakerStateChange(StateChangeEvent{
		ServiceName: serviceName,
		FromState:   convertState(from),
		ToState:     convertState(to),
		Counts: Counts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		},
	})
}

// convertState maps a lib-commons State onto this package's State.
func convertState(s libCircuitBreaker.State) State {
	switch s {
	case libCircuitBreaker.StateClosed:
		return StateClosed
	case libCircuitBreaker.StateHalfOpen:
		return StateHalfOpen
	case libCircuitBreaker.StateOpen:
		return StateOpen
	default:
		return StateUnknown
	}
}
