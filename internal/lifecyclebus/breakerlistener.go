package lifecyclebus

import (
	"time"

	"github.com/LerianStudio/acsd/pkg/mcircuitbreaker"
)

// BreakerListener implements mcircuitbreaker.StateListener, fanning every
// tenant breaker's Closed/Open/HalfOpen transition out over the bus.
// internal/tenantclient.NewBreaker takes this as its (optional) listener.
type BreakerListener struct {
	bus *Bus
}

// NewBreakerListener wraps bus as a mcircuitbreaker.StateListener.
func NewBreakerListener(bus *Bus) *BreakerListener {
	return &BreakerListener{bus: bus}
}

var _ mcircuitbreaker.StateListener = (*BreakerListener)(nil)

// OnCircuitBreakerStateChange implements mcircuitbreaker.StateListener.
// The publish runs on its own goroutine so the breaker, which calls this
// with its lock held, never waits on the broker.
func (l *BreakerListener) OnCircuitBreakerStateChange(event mcircuitbreaker.StateChangeEvent) {
	go l.bus.PublishBreakerEvent(BreakerEvent{
		TenantID:            event.ServiceName,
		FromState:           event.FromState.String(),
		ToState:             event.ToState.String(),
		ConsecutiveFailures: event.Counts.ConsecutiveFailures,
		OccurredAt:          time.Now(),
	})
}
