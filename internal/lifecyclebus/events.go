package lifecyclebus

import (
	"context"
	"time"
)

// TransitionEvent fans out one Supervisor registry state transition.
type TransitionEvent struct {
	TenantID   string    `json:"tenant_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Generation uint64    `json:"generation"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BreakerEvent fans out one Tenant Client breaker transition.
type BreakerEvent struct {
	TenantID            string    `json:"tenant_id"`
	FromState           string    `json:"from_state"`
	ToState             string    `json:"to_state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Bus is the publishing side of lifecyclebus: a thin wrapper over a
// Connection that both the registry Watcher and the breaker's
// StateListener hook use.
type Bus struct {
	conn *Connection
}

// NewBus wraps an already-Connected Connection.
func NewBus(conn *Connection) *Bus {
	return &Bus{conn: conn}
}

// PublishTransition fans out one registry state transition.
func (b *Bus) PublishTransition(evt TransitionEvent) {
	b.conn.publish(context.Background(), "lifecycle.transition", evt)
}

// PublishBreakerEvent fans out one breaker transition.
func (b *Bus) PublishBreakerEvent(evt BreakerEvent) {
	b.conn.publish(context.Background(), "lifecycle.breaker", evt)
}
