package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RabbitQueue publishes persistent JSON messages to durable queues and
// consumes them with manual acks, so a run request survives a restart.
type RabbitQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex
	logger *zap.Logger

	declared map[string]bool
}

var _ Queue = (*RabbitQueue)(nil)

// DialRabbit connects to the broker at url.
func DialRabbit(url string, logger *zap.Logger) (*RabbitQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &RabbitQueue{conn: conn, ch: ch, logger: logger, declared: make(map[string]bool)}, nil
}

func (q *RabbitQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

// Publish encodes payload as JSON.
func (q *RabbitQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(topic); err != nil {
		return err
	}
	err = q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes topic one message at a time. The handler receives the
// body as json.RawMessage. A failed message is requeued once, then dropped.
func (q *RabbitQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	if err := q.ch.Qos(1, 0, false); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			if err := handler(json.RawMessage(d.Body)); err != nil {
				requeue := !d.Redelivered
				q.logger.Warn("Message handling failed",
					zap.String("topic", topic),
					zap.Bool("requeue", requeue),
					zap.Error(err),
				)
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
		q.logger.Info("Consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

// Close closes the channel and the connection, which ends all consumers.
func (q *RabbitQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
