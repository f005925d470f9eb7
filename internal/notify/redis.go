package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/metrics"
)

// ChannelPrefix namespaces progress channels in Redis.
const ChannelPrefix = "progress:"

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisNotifier publishes events on Redis pub/sub so that a process without
// browser connections (the worker) can reach the API process.
type RedisNotifier struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client redis.UniversalClient, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, channel, event string, payload any) error {
	ev, err := newEvent(channel, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Event: ev.Name, Payload: ev.Payload})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, ChannelPrefix+channel, data).Err(); err != nil {
		metrics.NotifyEvents.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("redis publish: %w", err)
	}
	metrics.NotifyEvents.WithLabelValues(event, "published").Inc()
	return nil
}

// Relay forwards every progress channel from Redis into a local Hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{client: client, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer ps.Close()

	// Wait for the subscription confirmation so callers know the relay is live.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	r.logger.Info("📡 Progress relay subscribed", zap.String("pattern", ChannelPrefix+"*"))

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("Dropping malformed progress message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.hub.Publish(Event{
				Channel: strings.TrimPrefix(msg.Channel, ChannelPrefix),
				Name:    env.Event,
				Payload: env.Payload,
			})
		}
	}
}
