package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gymflow/gymflow-backend/pkg/logger"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Router maps event types to handlers
type Router struct {
	handlers map[string]MessageHandler
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{handlers: make(map[string]MessageHandler)}
}

// RegisterHandler registers a handler for a specific event type
func (r *Router) RegisterHandler(eventType string, handler MessageHandler) {
	r.handlers[eventType] = handler
}

// Dispatch runs the handler registered for the event's type.
// handled is false when no handler exists.
func (r *Router) Dispatch(ctx context.Context, event *Event) (handled bool, err error) {
	handler, ok := r.handlers[event.Type]
	if !ok {
		return false, nil
	}
	return true, handler(ctx, event)
}

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	*Router
	rmq       *RabbitMQ
	queueName string
	logger    *logger.Logger
}

// NewConsumer creates a consumer on an instance queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareInstanceQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		Router:    NewRouter(),
		rmq:       rmq,
		queueName: queueName,
		logger:    log,
	}, nil
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// Start starts consuming messages from the queue
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		true,        // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handled, err := c.Dispatch(ctx, &event)
	if !handled {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	if err != nil {
		c.logger.WithCorrelationID(event.CorrelationID).Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("failed to process event")

		// redelivered once, then dropped; the next change for the date refreshes it anyway
		msg.Nack(false, !msg.Redelivered)
		return
	}

	msg.Ack(false)
}
