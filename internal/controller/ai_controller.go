// internal/controller/ai_controller.go
package controller

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// AI is the content generator exposed for direct use.
type AI interface {
	Generate(ctx context.Context, prompt string, opts ai.Options) (string, error)
	Embed(ctx context.Context, text string) []float32
}

var _ AI = (*ai.Client)(nil)

type AIController struct {
	AI     AI
	Logger *zap.Logger
}

func (c *AIController) Generate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt            string  `json:"prompt"`
		SystemInstruction string  `json:"system_instruction"`
		Temperature       float64 `json:"temperature"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, c.Logger, appErrors.Validation("prompt is required"))
		return
	}

	text, err := c.AI.Generate(r.Context(), body.Prompt, ai.Options{
		Temperature:       body.Temperature,
		SystemInstruction: body.SystemInstruction,
	})
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("Generation failed", zap.Error(err))
		}
		writeErrorMessage(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Embed never fails upstream; a zero vector stands in for an unavailable model.
func (c *AIController) Embed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, c.Logger, appErrors.Validation("text is required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"embedding": c.AI.Embed(r.Context(), body.Text)})
}
