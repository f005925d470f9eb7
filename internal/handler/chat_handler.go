// internal/handler/chat_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/auth"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/notify"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// ChatService streams an agent's persona answers.
type ChatService interface {
	ChatStream(ctx context.Context, userID, agentID string, in service.ChatInput) (iter.Seq2[string, error], error)
}

var _ ChatService = (*service.AgentService)(nil)

// ChatHandler answers POST /agents/{id}/chat with a CHAT_CHUNK stream
// terminated by one CHAT_COMPLETE.
type ChatHandler struct {
	AgentService ChatService
	Logger       *zap.Logger
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	var in service.ChatInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seq, err := h.AgentService.ChatStream(r.Context(), auth.UserID(r.Context()), agentID, in)
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case appErrors.IsNotFound(err):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var full strings.Builder
	for chunk, err := range seq {
		if err != nil {
			if h.Logger != nil {
				h.Logger.Warn("Chat stream failed", zap.String("agent_id", agentID), zap.Error(err))
			}
			_ = sse.eventJSON(notify.EventChatComplete, notify.ChatComplete{AgentID: agentID, Text: full.String(), Error: err.Error()})
			return
		}
		full.WriteString(chunk)
		if err := sse.eventJSON(notify.EventChatChunk, notify.ChatChunk{AgentID: agentID, Text: chunk}); err != nil {
			// Client went away; breaking stops the upstream stream.
			return
		}
	}
	_ = sse.eventJSON(notify.EventChatComplete, notify.ChatComplete{AgentID: agentID, Text: full.String()})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
