// Package notify pushes progress events to a user's live channel.
//
// Delivery is fire-and-forget and at-most-once: events for a channel with no
// listener are dropped, and nothing is replayed on reconnect.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/metrics"
)

// Event names understood by the frontend.
const (
	EventCampaignProgress = "CAMPAIGN_PROGRESS"
	EventScrapeStatus     = "SCRAPE_STATUS"
	EventChatChunk        = "CHAT_CHUNK"
	EventChatComplete     = "CHAT_COMPLETE"
)

// Notifier delivers one event to a channel. The channel is the user id.
type Notifier interface {
	Notify(ctx context.Context, channel, event string, payload any) error
}

// Event is what subscribers receive.
type Event struct {
	Channel string          `json:"-"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// CampaignProgress is the payload of CAMPAIGN_PROGRESS.
type CampaignProgress struct {
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	SentCount  int    `json:"sentCount"`
	Error      string `json:"error,omitempty"`
}

// ScrapeStatus is the payload of SCRAPE_STATUS.
type ScrapeStatus struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	LeadsCount int    `json:"leadsCount"`
}

func newEvent(channel, name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{Channel: channel, Name: name, Payload: raw}, nil
}

// LogNotifier only logs. Used when no live transport is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(_ context.Context, channel, event string, payload any) error {
	ev, err := newEvent(channel, event, payload)
	if err != nil {
		return err
	}
	if n.Logger != nil {
		n.Logger.Info("Progress event",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.ByteString("payload", ev.Payload),
		)
	}
	metrics.NotifyEvents.WithLabelValues(event, "logged").Inc()
	return nil
}

// ChatChunk is the payload of CHAT_CHUNK.
type ChatChunk struct {
	AgentID string `json:"agentId"`
	Text    string `json:"text"`
}

// ChatComplete is the payload of CHAT_COMPLETE. Text holds the full answer.
type ChatComplete struct {
	AgentID string `json:"agentId"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}
