// internal/controller/agent_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/auth"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// AgentService is what the agent routes need from the service layer.
type AgentService interface {
	CreateAgent(ctx context.Context, userID string, in service.CreateAgentInput) (*model.Agent, error)
	ListAgents(ctx context.Context, userID string) ([]*model.Agent, error)
	GetAgent(ctx context.Context, userID, agentID string) (*model.Agent, error)
	UpdateAgent(ctx context.Context, userID, agentID string, patch model.AgentPatch) (*model.Agent, error)
	DeleteAgent(ctx context.Context, userID, agentID string) error
	CheckHealth(ctx context.Context, userID, agentID string) (*service.AgentHealth, error)
}

var _ AgentService = (*service.AgentService)(nil)

type AgentController struct {
	AgentService AgentService
	Logger       *zap.Logger
}

func (c *AgentController) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var body service.CreateAgentInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, c.Logger, err)
		return
	}

	agent, err := c.AgentService.CreateAgent(r.Context(), auth.UserID(r.Context()), body)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (c *AgentController) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := c.AgentService.ListAgents(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": agents})
}

func (c *AgentController) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewAgentNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	agent, err := c.AgentService.GetAgent(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (c *AgentController) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewAgentNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	var patch model.AgentPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, c.Logger, err)
		return
	}

	agent, err := c.AgentService.UpdateAgent(r.Context(), auth.UserID(r.Context()), id, patch)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (c *AgentController) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewAgentNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	if err := c.AgentService.DeleteAgent(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AgentController) CheckHealth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewAgentNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	health, err := c.AgentService.CheckHealth(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}
