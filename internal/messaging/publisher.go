package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-engine/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SessionEventPublisher публикует события жизненного цикла сессий.
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
}

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
	appID           = "story-server"
)

// amqpChannel - часть *amqp.Channel, которая нужна паблишеру.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher отправляет события в очередь RabbitMQ через default exchange.
type RabbitMQPublisher struct {
	channel   amqpChannel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQPublisher открывает канал и объявляет durable-очередь.
func NewRabbitMQPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("session event publisher: failed to open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("session event publisher: failed to declare queue '%s': %w", queueName, err)
	}
	log := logger.Named("SessionEventPublisher")
	log.Info("Queue declared", zap.String("queue", queueName))
	return &RabbitMQPublisher{channel: ch, queueName: queueName, logger: log}, nil
}

func (p *RabbitMQPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event %s: %w", event.Type, err)
	}
	if err := p.publishMessage(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s event for session %s: %w", event.Type, event.SessionID, err)
	}
	return nil
}

func (p *RabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (default)
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        appID,
			},
		)
		if err == nil {
			p.logger.Debug("Event published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to queue %s cancelled: %w", p.queueName, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to publish to queue %s after retries: %w", p.queueName, err)
}

// Close закрывает канал паблишера.
func (p *RabbitMQPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}

// NoopPublisher используется, когда RabbitMQ не настроен.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionEvent(context.Context, models.SessionEvent) error {
	return nil
}
