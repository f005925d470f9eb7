package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// AgentRepositoryInterface defines methods used by the agent service
type AgentRepositoryInterface interface {
	Create(ctx context.Context, a *model.Agent) error
	GetByID(ctx context.Context, userID, id string) (*model.Agent, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Agent, error)
	Update(ctx context.Context, userID, id string, patch model.AgentPatch) (*model.Agent, error)
	Delete(ctx context.Context, userID, id string) error
	SetStatus(ctx context.Context, id string, status model.AgentStatus) error
}

type AgentRepository struct {
	DB *sql.DB
}

const agentColumns = `id, user_id, name, email, app_password, persona_prompt, status, created_at, last_active`

func scanAgent(row interface{ Scan(...any) error }, a *model.Agent) error {
	return row.Scan(&a.ID, &a.UserID, &a.Name, &a.Email, &a.AppPassword, &a.PersonaPrompt, &a.Status, &a.CreatedAt, &a.LastActive)
}

func (r *AgentRepository) Create(ctx context.Context, a *model.Agent) error {
	if a.Status == "" {
		a.Status = model.AgentActive
	}
	query := `
        INSERT INTO agents (user_id, name, email, app_password, persona_prompt, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at, last_active
    `
	return r.DB.QueryRowContext(ctx, query, a.UserID, a.Name, a.Email, a.AppPassword, a.PersonaPrompt, a.Status).
		Scan(&a.ID, &a.CreatedAt, &a.LastActive)
}

// GetByID returns the agent including its app password; callers must not
// serialize the secret (the JSON tag already omits it).
func (r *AgentRepository) GetByID(ctx context.Context, userID, id string) (*model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id=$1 AND user_id=$2`
	var a model.Agent
	if err := scanAgent(r.DB.QueryRowContext(ctx, query, id, userID), &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAgentNotFound(id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *AgentRepository) ListByUser(ctx context.Context, userID string) ([]*model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []*model.Agent{}
	for rows.Next() {
		a := &model.Agent{}
		if err := scanAgent(rows, a); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Update applies the non-nil fields of patch and touches last_active.
func (r *AgentRepository) Update(ctx context.Context, userID, id string, patch model.AgentPatch) (*model.Agent, error) {
	query := `
        UPDATE agents
        SET name = COALESCE($1, name),
            email = COALESCE($2, email),
            app_password = COALESCE($3, app_password),
            persona_prompt = COALESCE($4, persona_prompt),
            status = COALESCE($5, status),
            last_active = NOW()
        WHERE id = $6 AND user_id = $7
        RETURNING ` + agentColumns
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	var a model.Agent
	err := scanAgent(r.DB.QueryRowContext(ctx, query,
		patch.Name, patch.Email, patch.AppPassword, patch.PersonaPrompt, status, id, userID), &a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAgentNotFound(id)
		}
		return nil, err
	}
	return &a, nil
}

// Delete removes the agent. Campaigns keep their rows with agent_id set to NULL.
func (r *AgentRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM agents WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewAgentNotFound(id)
	}
	return nil
}

func (r *AgentRepository) SetStatus(ctx context.Context, id string, status model.AgentStatus) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE agents SET status=$1, last_active=NOW() WHERE id=$2`, status, id)
	return err
}

var _ AgentRepositoryInterface = (*AgentRepository)(nil)
