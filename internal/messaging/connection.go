package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pos_service/internal/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "pos_events"

	ConfirmationQueue = "order_confirmations"
	StatusQueue       = "order_status_updates"

	ConfirmationRoutingKey = "order.confirmation"
	statusRoutingPrefix    = "order.status."
)

// Connection wraps a RabbitMQ connection and the channel used to publish.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
	retries int
}

func New(url string, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		logger:  log,
		url:     url,
		retries: 5,
	}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	var err error
	for i := 0; i < c.retries; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if setupErr := c.setupTopology(); setupErr != nil {
					c.close()
					err = setupErr
				} else {
					return nil
				}
			} else {
				c.conn.Close()
			}
		}

		if i < c.retries-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.logger.Error(context.Background(), "rabbitmq_connection_failed",
				fmt.Sprintf("failed to connect to RabbitMQ, retrying in %v", wait), err)
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.retries, err)
}

// setupTopology declares the events exchange and the queues that the
// notification workers consume.
func (c *Connection) setupTopology() error {
	err := c.channel.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", EventsExchange, err)
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{ConfirmationQueue, ConfirmationRoutingKey},
		{StatusQueue, statusRoutingPrefix + "*"},
	}
	for _, binding := range bindings {
		_, err = c.channel.QueueDeclare(
			binding.queue, // name
			true,          // durable
			false,         // delete when unused
			false,         // exclusive
			false,         // no-wait
			nil,           // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", binding.queue, err)
		}
		err = c.channel.QueueBind(binding.queue, binding.routingKey, EventsExchange, false, nil)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s with routing key %s: %w", binding.queue, binding.routingKey, err)
		}
	}
	return nil
}

// Channel returns a live channel, reconnecting first if the broker went away.
func (c *Connection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		c.close()
		if err := c.connect(); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
	}
	return c.channel, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) isClosed() bool {
	return c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed()
}
