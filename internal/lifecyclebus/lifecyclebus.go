// Package lifecyclebus fans Supervisor registry transitions and Tenant
// Client breaker transitions out over RabbitMQ for observability
// consumers. It is purely ambient: nothing on the request-serving path
// (Supervisor.Start, Breaker.Admit, Buffer.SubmitCommand/SubmitQuery)
// blocks on or depends on a publish succeeding, so an unreachable
// broker cannot slow a tenant down or fail a request. Connections are a
// hub dialed once by Connect: one amqp connection and channel per
// process, held open until Close.
package lifecyclebus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/acsd/pkg/mlog"
)

// exchangeName is the single fanout exchange every lifecycle and breaker
// event is published to; consumers bind their own queues to it.
const exchangeName = "acsd.lifecycle"

// Connection is a hub for one RabbitMQ connection and channel, held open
// for the process lifetime.
type Connection struct {
	URL    string
	Logger mlog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials the broker, opens one channel, and declares the fanout
// exchange every publish targets.
func (c *Connection) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("lifecyclebus: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("lifecyclebus: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("lifecyclebus: declare exchange: %w", err)
	}

	c.conn = conn
	c.channel = ch
	if c.Logger != nil {
		c.Logger.Info("lifecyclebus: connected to rabbitmq")
	}
	return nil
}

// Close releases the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// publish marshals v as JSON and fans it out, logging rather than
// returning on failure — a lost observability event is never allowed to
// propagate back into the caller's request path.
func (c *Connection) publish(ctx context.Context, routingKey string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Errorf("lifecyclebus: marshal event: %v", err)
		}
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(publishCtx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil && c.Logger != nil {
		c.Logger.Errorf("lifecyclebus: publish: %v", err)
	}
}
