package controller_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/controller"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

const testAgent = "0b8f6a52-9d1e-4c7f-a3b2-6e5d4c3b2a10"

type mockAgentService struct {
	agents    map[string]*model.Agent
	createErr error
	lastPatch model.AgentPatch
}

func newMockAgentService() *mockAgentService {
	return &mockAgentService{agents: map[string]*model.Agent{
		testAgent: {ID: testAgent, UserID: testUser, Name: "Sam", Email: "sam@acme.io", AppPassword: "secret", Status: model.AgentActive},
	}}
}

func (m *mockAgentService) CreateAgent(_ context.Context, userID string, in service.CreateAgentInput) (*model.Agent, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.Agent{ID: testAgent, UserID: userID, Name: in.Name, Email: in.Email, AppPassword: in.AppPassword, Status: model.AgentActive}, nil
}

func (m *mockAgentService) ListAgents(context.Context, string) ([]*model.Agent, error) {
	return []*model.Agent{m.agents[testAgent]}, nil
}

func (m *mockAgentService) GetAgent(_ context.Context, userID, id string) (*model.Agent, error) {
	a, ok := m.agents[id]
	if !ok || a.UserID != userID {
		return nil, appErrors.NewAgentNotFound(id)
	}
	return a, nil
}

func (m *mockAgentService) UpdateAgent(ctx context.Context, userID, id string, patch model.AgentPatch) (*model.Agent, error) {
	m.lastPatch = patch
	a, err := m.GetAgent(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	return a, nil
}

func (m *mockAgentService) DeleteAgent(ctx context.Context, userID, id string) error {
	if _, err := m.GetAgent(ctx, userID, id); err != nil {
		return err
	}
	delete(m.agents, id)
	return nil
}

func (m *mockAgentService) CheckHealth(_ context.Context, _, id string) (*service.AgentHealth, error) {
	return &service.AgentHealth{ID: id, Status: model.AgentError, Error: "535 rejected", CheckedAt: time.Now()}, nil
}

func agentRouter(svc controller.AgentService) http.Handler {
	ctrl := &controller.AgentController{AgentService: svc}
	r := chi.NewRouter()
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", ctrl.ListAgents)
		r.Post("/", ctrl.CreateAgent)
		r.Get("/{id}", ctrl.GetAgent)
		r.Patch("/{id}", ctrl.UpdateAgent)
		r.Delete("/{id}", ctrl.DeleteAgent)
		r.Get("/{id}/health", ctrl.CheckHealth)
	})
	return r
}

func TestCreateAgentHandler_NeverEchoesPassword(t *testing.T) {
	h := agentRouter(newMockAgentService())

	w := do(t, h, http.MethodPost, "/agents", map[string]string{
		"name": "Sam", "email": "sam@acme.io", "app_password": "secret",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	res := decode(t, w)
	assert.Equal(t, "sam@acme.io", res["email"])
	assert.NotContains(t, res, "user_id")
}

func TestCreateAgentHandler_BadCredentials(t *testing.T) {
	svc := newMockAgentService()
	svc.createErr = fmt.Errorf("%w: 535 authentication failed", appErrors.ErrInvalidCredentials)
	h := agentRouter(svc)

	w := do(t, h, http.MethodPost, "/agents", map[string]string{"name": "Sam", "email": "sam@acme.io", "app_password": "nope"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decode(t, w)["error"], "535")
}

func TestAgentHandlers(t *testing.T) {
	svc := newMockAgentService()
	h := agentRouter(svc)

	w := do(t, h, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = do(t, h, http.MethodGet, "/agents/"+testAgent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sam", decode(t, w)["name"])

	w = do(t, h, http.MethodPatch, "/agents/"+testAgent, map[string]string{"name": "Samantha"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Samantha", decode(t, w)["name"])
	assert.Nil(t, svc.lastPatch.Email)

	w = do(t, h, http.MethodGet, "/agents/"+testAgent+"/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, false, health["healthy"])
	assert.Equal(t, "Error", health["status"])

	w = do(t, h, http.MethodDelete, "/agents/"+testAgent, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/agents/"+testAgent, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/agents/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
