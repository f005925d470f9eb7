// internal/model/agent.go
package model

import "time"

type AgentStatus string

const (
	AgentActive AgentStatus = "Active"
	AgentError  AgentStatus = "Error"
)

type Agent struct {
	ID            string      `db:"id" json:"id"`
	UserID        string      `db:"user_id" json:"-"`
	Name          string      `db:"name" json:"name"`
	Email         string      `db:"email" json:"email"`
	AppPassword   string      `db:"app_password" json:"-"`
	PersonaPrompt string      `db:"persona_prompt" json:"persona_prompt"`
	Status        AgentStatus `db:"status" json:"status"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	LastActive    *time.Time  `db:"last_active" json:"last_active,omitempty"`
}

// AgentPatch carries the optional fields of an agent update. Nil means unchanged.
type AgentPatch struct {
	Name          *string      `json:"name"`
	Email         *string      `json:"email"`
	AppPassword   *string      `json:"app_password"`
	PersonaPrompt *string      `json:"persona_prompt"`
	Status        *AgentStatus `json:"status"`
}
