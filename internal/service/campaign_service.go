// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	AgentRepo    repository.AgentRepositoryInterface
	Queue        queue.Queue
	Logger       *zap.Logger
}

type CreateCampaignInput struct {
	Name    string          `json:"name"`
	AgentID string          `json:"agent_id"`
	Leads   []model.NewLead `json:"leads"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// StartCampaignResult is returned once the run has been queued.
type StartCampaignResult struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// CreateCampaign stores a Draft campaign and its leads atomically. Leads
// are deduplicated by case-insensitive email, keeping the first occurrence.
func (s *CampaignService) CreateCampaign(ctx context.Context, userID string, in CreateCampaignInput) (*model.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	agentID := strings.TrimSpace(in.AgentID)
	switch {
	case name == "":
		return nil, appErrors.Validation("name is required")
	case agentID == "":
		return nil, appErrors.Validation("agent_id is required")
	case len(in.Leads) == 0:
		return nil, appErrors.Validation("at least one lead is required")
	}

	leads := make([]model.NewLead, 0, len(in.Leads))
	seen := make(map[string]struct{}, len(in.Leads))
	for i, l := range in.Leads {
		email := strings.TrimSpace(l.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, appErrors.Validation(fmt.Sprintf("lead %d has an invalid email", i))
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		l.Email = email
		leads = append(leads, l)
	}

	if _, err := s.AgentRepo.GetByID(ctx, userID, agentID); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		UserID:  userID,
		AgentID: &agentID,
		Name:    name,
	}
	if err := s.CampaignRepo.CreateWithLeads(ctx, c, leads); err != nil {
		return nil, err
	}

	s.logger().Info("Campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("user_id", userID),
		zap.Int("leads", c.TotalLeads),
	)
	return c, nil
}

// ListCampaigns returns the caller's campaigns, newest first.
func (s *CampaignService) ListCampaigns(ctx context.Context, userID string) ([]*model.Campaign, error) {
	return s.CampaignRepo.ListByUser(ctx, userID)
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, userID, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func (s *CampaignService) ListLeads(ctx context.Context, userID, campaignID string) ([]*model.Lead, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	return s.LeadRepo.ListByCampaign(ctx, campaignID)
}

// StartCampaign marks the campaign InProgress and queues a run. Starting a
// campaign that already finished is allowed; the run only touches leads
// that are still Pending.
func (s *CampaignService) StartCampaign(ctx context.Context, userID, campaignID string) (*StartCampaignResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.UpdateStatus(ctx, campaign.ID, model.CampaignInProgress); err != nil {
		return nil, err
	}

	job := model.RunJob{CampaignID: campaign.ID, UserID: userID}
	if err := s.Queue.Publish(queue.TopicCampaignRuns, job); err != nil {
		// The campaign stays InProgress and is picked up by the next resume scan.
		return nil, fmt.Errorf("enqueue campaign run: %w", err)
	}

	s.logger().Info("Campaign started", zap.String("campaign_id", campaign.ID), zap.String("user_id", userID))
	return &StartCampaignResult{Message: "Campaign started", ID: campaign.ID}, nil
}

// PauseCampaign asks a running campaign to stop after the current lead.
func (s *CampaignService) PauseCampaign(ctx context.Context, userID, campaignID string) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignInProgress {
		return nil, appErrors.Validation(fmt.Sprintf("campaign is %s, not running", campaign.Status))
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaign.ID, model.CampaignPaused); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignPaused
	return campaign, nil
}

// ResumeInProgress re-queues every campaign left InProgress by a previous
// process. It returns the number of runs queued.
func (s *CampaignService) ResumeInProgress(ctx context.Context) (int, error) {
	jobs, err := s.CampaignRepo.ListRunJobsByStatus(ctx, model.CampaignInProgress)
	if err != nil {
		return 0, fmt.Errorf("list in-progress campaigns: %w", err)
	}
	queued := 0
	for _, job := range jobs {
		if err := s.Queue.Publish(queue.TopicCampaignRuns, job); err != nil {
			s.logger().Error("Failed to re-queue campaign", zap.String("campaign_id", job.CampaignID), zap.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger().Info("🔁 Resumed interrupted campaigns", zap.Int("count", queued))
	}
	return queued, nil
}
