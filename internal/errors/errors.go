// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned when SMTP credentials cannot be verified.
	ErrInvalidCredentials = errors.New("invalid email or app password")
	// ErrRunInProgress is returned when another run already holds the campaign.
	ErrRunInProgress = errors.New("campaign run already in progress")
)

// ErrCampaignNotFound is returned when a campaign does not exist for the caller.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrAgentNotFound is returned when an agent does not exist for the caller.
type ErrAgentNotFound struct {
	AgentID string
}

func (e *ErrAgentNotFound) Error() string {
	return fmt.Sprintf("agent with ID %s not found", e.AgentID)
}

func NewAgentNotFound(id string) error {
	return &ErrAgentNotFound{AgentID: id}
}

// Validation wraps ErrValidation with a human readable reason.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var a *ErrAgentNotFound
	return errors.As(err, &c) || errors.As(err, &a)
}
