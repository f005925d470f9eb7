// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "Draft"
	CampaignInProgress CampaignStatus = "InProgress"
	CampaignCompleted  CampaignStatus = "Completed"
	CampaignFailed     CampaignStatus = "Failed"
	CampaignPaused     CampaignStatus = "Paused"
)

type Campaign struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id"`
	AgentID    *string        `db:"agent_id" json:"agent_id"`
	Name       string         `db:"name" json:"name"`
	Status     CampaignStatus `db:"status" json:"status"`
	TotalLeads int            `db:"total_leads" json:"total_leads"`
	SentLeads  int            `db:"sent_leads" json:"sent_leads"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RunContext is everything a campaign run needs to send on the agent's behalf.
type RunContext struct {
	Campaign      Campaign
	AgentEmail    string
	AppPassword   string
	PersonaPrompt string
}

// RunJob is the unit submitted to the run queue.
type RunJob struct {
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
}
