// internal/service/agent_service.go
package service

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/mailer"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// ChatGenerator streams persona chat answers.
type ChatGenerator interface {
	GenerateStream(ctx context.Context, prompt string, opts ai.Options) iter.Seq2[string, error]
}

type AgentService struct {
	AgentRepo repository.AgentRepositoryInterface
	Dialer    mailer.Dialer
	Chat      ChatGenerator
	Logger    *zap.Logger
}

type CreateAgentInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	AppPassword   string `json:"app_password"`
	PersonaPrompt string `json:"persona_prompt"`
}

// AgentHealth is the result of a live SMTP check.
type AgentHealth struct {
	ID        string            `json:"id"`
	Status    model.AgentStatus `json:"status"`
	Healthy   bool              `json:"healthy"`
	Error     string            `json:"error,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// ChatInput is one persona chat request.
type ChatInput struct {
	Message string    `json:"message"`
	History []ai.Turn `json:"history"`
}

func (s *AgentService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *AgentService) verify(ctx context.Context, email, password string) error {
	if err := s.Dialer.Verify(ctx, mailer.Credentials{Email: email, AppPassword: password}); err != nil {
		s.logger().Warn("SMTP verification failed", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("%w: %v", appErrors.ErrInvalidCredentials, err)
	}
	return nil
}

// CreateAgent verifies the SMTP credentials before storing the agent.
func (s *AgentService) CreateAgent(ctx context.Context, userID string, in CreateAgentInput) (*model.Agent, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Name == "":
		return nil, appErrors.Validation("name is required")
	case in.Email == "":
		return nil, appErrors.Validation("email is required")
	case in.AppPassword == "":
		return nil, appErrors.Validation("app_password is required")
	}

	if err := s.verify(ctx, in.Email, in.AppPassword); err != nil {
		return nil, err
	}

	a := &model.Agent{
		UserID:        userID,
		Name:          in.Name,
		Email:         in.Email,
		AppPassword:   in.AppPassword,
		PersonaPrompt: in.PersonaPrompt,
		Status:        model.AgentActive,
	}
	if err := s.AgentRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger().Info("Agent created", zap.String("agent_id", a.ID), zap.String("user_id", userID))
	return a, nil
}

func (s *AgentService) ListAgents(ctx context.Context, userID string) ([]*model.Agent, error) {
	return s.AgentRepo.ListByUser(ctx, userID)
}

func (s *AgentService) GetAgent(ctx context.Context, userID, agentID string) (*model.Agent, error) {
	return s.AgentRepo.GetByID(ctx, userID, agentID)
}

// UpdateAgent re-verifies SMTP when the email or app password changes.
func (s *AgentService) UpdateAgent(ctx context.Context, userID, agentID string, patch model.AgentPatch) (*model.Agent, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, appErrors.Validation("name cannot be empty")
	}
	if patch.Status != nil && *patch.Status != model.AgentActive && *patch.Status != model.AgentError {
		return nil, appErrors.Validation("invalid status")
	}

	if patch.Email != nil || patch.AppPassword != nil {
		current, err := s.AgentRepo.GetByID(ctx, userID, agentID)
		if err != nil {
			return nil, err
		}
		email, password := current.Email, current.AppPassword
		if patch.Email != nil {
			email = strings.TrimSpace(*patch.Email)
			patch.Email = &email
		}
		if patch.AppPassword != nil {
			password = *patch.AppPassword
		}
		if email == "" || password == "" {
			return nil, appErrors.Validation("email and app_password cannot be empty")
		}
		if err := s.verify(ctx, email, password); err != nil {
			return nil, err
		}
		active := model.AgentActive
		patch.Status = &active
	}

	return s.AgentRepo.Update(ctx, userID, agentID, patch)
}

func (s *AgentService) DeleteAgent(ctx context.Context, userID, agentID string) error {
	return s.AgentRepo.Delete(ctx, userID, agentID)
}

// CheckHealth runs a live SMTP login and records the outcome on the agent.
func (s *AgentService) CheckHealth(ctx context.Context, userID, agentID string) (*AgentHealth, error) {
	a, err := s.AgentRepo.GetByID(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}

	h := &AgentHealth{ID: a.ID, Status: model.AgentActive, Healthy: true, CheckedAt: time.Now().UTC()}
	if err := s.verify(ctx, a.Email, a.AppPassword); err != nil {
		h.Status = model.AgentError
		h.Healthy = false
		h.Error = err.Error()
	}
	if err := s.AgentRepo.SetStatus(ctx, a.ID, h.Status); err != nil {
		return nil, err
	}
	return h, nil
}

// ChatStream answers as the agent's persona. The returned sequence is lazy;
// nothing is sent to the model until it is ranged over.
func (s *AgentService) ChatStream(ctx context.Context, userID, agentID string, in ChatInput) (iter.Seq2[string, error], error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, appErrors.Validation("message is required")
	}
	a, err := s.AgentRepo.GetByID(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	return s.Chat.GenerateStream(ctx, in.Message, ai.Options{
		SystemInstruction: a.PersonaPrompt,
		History:           in.History,
	}), nil
}
