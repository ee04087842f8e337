package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pos_service/internal/logger"
	"pos_service/internal/models"

	"github.com/rabbitmq/amqp091-go"
)

// Channel is the publishing half of an AMQP channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// ChannelSource hands out a channel ready to publish on.
type ChannelSource interface {
	Channel() (Channel, error)
}

// Publisher sends order events to the events exchange.
type Publisher struct {
	source  ChannelSource
	logger  *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewPublisher(source ChannelSource, log *logger.Logger) *Publisher {
	return &Publisher{
		source:  source,
		logger:  log,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
}

// SendOrderConfirmation queues a confirmation e-mail for the order.
func (p *Publisher) SendOrderConfirmation(ctx context.Context, order *models.Order, email string) error {
	return p.publish(ctx, ConfirmationRoutingKey, NewOrderConfirmationMessage(order, email), true)
}

func (p *Publisher) PublishStatusChange(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	msg := NewStatusChangeMessage(order, previous, p.now())
	return p.publish(ctx, StatusRoutingKey(order.Status), msg, true)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, message interface{}, persistent bool) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	channel, err := p.source.Channel()
	if err != nil {
		return err
	}

	deliveryMode := amqp091.Transient
	if persistent {
		deliveryMode = amqp091.Persistent
	}
	publishing := amqp091.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  deliveryMode,
		Timestamp:     p.now(),
		CorrelationId: logger.RequestID(ctx),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := channel.PublishWithContext(ctx, EventsExchange, routingKey, false, false, publishing); err != nil {
		p.logger.Error(ctx, "message_publish_failed", "failed to publish message", err,
			slog.String("exchange", EventsExchange),
			slog.String("routing_key", routingKey))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug(ctx, "message_published", "published message",
		slog.String("exchange", EventsExchange),
		slog.String("routing_key", routingKey),
		slog.Int("message_size", len(body)))
	return nil
}
