package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"concierge/pkg/logger"
	"concierge/pkg/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LogNotifier writes notices to the log. It backs deployments without a
// broker.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, msg model.Notification) error {
	n.log.Info("Notification",
		"recipient", msg.Recipient,
		"title", msg.Title,
		"body", msg.Body,
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notices as persistent JSON messages on a durable
// queue. The channel is reopened after the broker closes it.
type AMQPNotifier struct {
	url   string
	queue string
	log   *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   publisher
	dial func() (publisher, error)
}

func NewAMQPNotifier(url, queue string, log *logger.Logger) (*AMQPNotifier, error) {
	n := &AMQPNotifier{url: url, queue: queue, log: log}
	n.dial = n.open

	ch, err := n.dial()
	if err != nil {
		return nil, err
	}
	n.ch = ch

	log.Info("RabbitMQ notifier ready", "queue", queue)
	return n, nil
}

func (n *AMQPNotifier) open() (publisher, error) {
	if n.conn == nil || n.conn.IsClosed() {
		conn, err := amqp.Dial(n.url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
		}
		n.conn = conn
	}

	ch, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", n.queue, err)
	}
	return ch, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, msg model.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch == nil {
		ch, err := n.dial()
		if err != nil {
			return err
		}
		n.ch = ch
	}

	if err := n.ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		n.log.Warn("RabbitMQ publish failed, channel will be reopened", "queue", n.queue, "error", err)
		_ = n.ch.Close()
		n.ch = nil
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.log.Debug("Notification published", "queue", n.queue, "recipient", msg.Recipient)
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
