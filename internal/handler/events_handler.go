// internal/handler/events_handler.go
package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/auth"
	"github.com/unclebandit/outreach-backend/internal/notify"
)

const defaultHeartbeat = 25 * time.Second

// Subscriber is the in-process side of the progress channel.
type Subscriber interface {
	Subscribe(channel string) (<-chan notify.Event, func())
}

var _ Subscriber = (*notify.Hub)(nil)

// EventsHandler streams the caller's progress events as Server-Sent Events.
type EventsHandler struct {
	Hub       Subscriber
	Logger    *zap.Logger
	Heartbeat time.Duration

	// Done ends every open stream when closed. Nil never fires.
	Done <-chan struct{}
}

func (h *EventsHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Stream blocks until the client disconnects or Done is closed.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	events, cancel := h.Hub.Subscribe(userID)
	defer cancel()

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := h.logger().With(zap.String("user_id", userID))
	logger.Info("📡 Progress stream opened")
	defer logger.Info("Progress stream closed")

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.Done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.event(ev.Name, ev.Payload); err != nil {
				logger.Debug("Progress stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := sse.comment("ping"); err != nil {
				return
			}
		}
	}
}
