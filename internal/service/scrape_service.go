// internal/service/scrape_service.go
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/notify"
)

// Scraper discovers leads on a website.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) ([]model.ScrapedLead, error)
}

// Scrape status values sent with SCRAPE_STATUS.
const (
	ScrapeInProgress = "InProgress"
	ScrapeCompleted  = "Completed"
	ScrapeFailed     = "Failed"
)

type ScrapeService struct {
	Scraper  Scraper
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// Scrape runs the extractor and reports progress on the caller's channel.
func (s *ScrapeService) Scrape(ctx context.Context, userID, rawURL string) ([]model.ScrapedLead, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, appErrors.Validation("url is required")
	}

	s.notify(ctx, userID, notify.ScrapeStatus{Status: ScrapeInProgress, Message: "Starting deep discovery..."})

	leads, err := s.Scraper.Scrape(ctx, rawURL)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("Scrape failed", zap.String("url", rawURL), zap.Error(err))
		}
		s.notify(ctx, userID, notify.ScrapeStatus{Status: ScrapeFailed, Message: err.Error()})
		return nil, err
	}
	if leads == nil {
		leads = []model.ScrapedLead{}
	}

	s.notify(ctx, userID, notify.ScrapeStatus{Status: ScrapeCompleted, LeadsCount: len(leads)})
	return leads, nil
}

func (s *ScrapeService) notify(ctx context.Context, userID string, st notify.ScrapeStatus) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, notify.EventScrapeStatus, st); err != nil && s.Logger != nil {
		s.Logger.Debug("Scrape status not delivered", zap.Error(err))
	}
}
