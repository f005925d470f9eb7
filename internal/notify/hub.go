package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/metrics"
)

const defaultSubscriberBuffer = 64

// Hub fans events out to in-process subscribers of a channel. Sends never
// block: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan Event
	buffer int
	logger *zap.Logger
}

var _ Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[string]chan Event),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

// Subscribe registers a listener on channel. The returned cancel func
// removes it and closes the event channel; it is safe to call twice.
func (h *Hub) Subscribe(channel string) (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[string]chan Event)
	}
	h.subs[channel][id] = ch
	h.mu.Unlock()

	h.logger.Debug("Subscriber joined", zap.String("channel", channel), zap.String("subscriber", id))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], id)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Notify(_ context.Context, channel, event string, payload any) error {
	ev, err := newEvent(channel, event, payload)
	if err != nil {
		return err
	}
	h.Publish(ev)
	return nil
}

// Publish delivers ev to the current subscribers of ev.Channel and reports
// how many received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, ch := range h.subs[ev.Channel] {
		select {
		case ch <- ev:
			delivered++
		default:
			metrics.NotifyEvents.WithLabelValues(ev.Name, "dropped").Inc()
			h.logger.Warn("Slow subscriber, event dropped",
				zap.String("channel", ev.Channel),
				zap.String("subscriber", id),
				zap.String("event", ev.Name),
			)
		}
	}
	if delivered > 0 {
		metrics.NotifyEvents.WithLabelValues(ev.Name, "delivered").Add(float64(delivered))
	}
	return delivered
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
