// internal/controller/campaign_controller.go
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

// CampaignService is what the campaign routes need from the service layer.
type CampaignService interface {
	CreateCampaign(ctx context.Context, userID string, in service.CreateCampaignInput) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, userID string) ([]*model.Campaign, error)
	GetCampaignDetailsWithStats(ctx context.Context, userID, campaignID string) (*service.CampaignDetails, error)
	ListLeads(ctx context.Context, userID, campaignID string) ([]*model.Lead, error)
	StartCampaign(ctx context.Context, userID, campaignID string) (*service.StartCampaignResult, error)
	PauseCampaign(ctx context.Context, userID, campaignID string) (*model.Campaign, error)
}

var _ CampaignService = (*service.CampaignService)(nil)

type CampaignController struct {
	CampaignService CampaignService
	Logger          *zap.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, c.Logger, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), auth.UserID(r.Context()), body)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.CampaignService.ListCampaigns(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": campaigns})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewCampaignNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) ListLeads(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewCampaignNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	leads, err := c.CampaignService.ListLeads(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": leads})
}

// StartCampaign queues a run and answers before any email is sent.
func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewCampaignNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	res, err := c.CampaignService.StartCampaign(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, appErrors.NewCampaignNotFound)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}

	campaign, err := c.CampaignService.PauseCampaign(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}
