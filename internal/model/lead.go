// internal/model/lead.go
package model

import "time"

type LeadStatus string

const (
	LeadPending LeadStatus = "Pending"
	LeadSent    LeadStatus = "Sent"
	LeadFailed  LeadStatus = "Failed"
)

type Lead struct {
	ID                  string     `db:"id" json:"id"`
	CampaignID          string     `db:"campaign_id" json:"campaign_id"`
	Email               string     `db:"email" json:"email"`
	FirstName           *string    `db:"first_name" json:"first_name"`
	Role                *string    `db:"role" json:"role"`
	PersonalizedContent *string    `db:"personalized_content" json:"personalized_content"`
	Status              LeadStatus `db:"status" json:"status"` // Pending, Sent, Failed
	ErrorMessage        *string    `db:"error_message" json:"error_message"`
	SentAt              *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// NewLead is a recipient supplied when a campaign is created.
type NewLead struct {
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// ScrapedLead is an address discovered by the scraper. It is not persisted
// until it is submitted as part of a campaign.
type ScrapedLead struct {
	Email   string  `json:"email"`
	Name    *string `json:"name"`
	Role    *string `json:"role"`
	Source  string  `json:"source"`
	Context string  `json:"context,omitempty"`
}
