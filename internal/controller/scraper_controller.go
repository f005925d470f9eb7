// internal/controller/scraper_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/auth"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type ScrapeService interface {
	Scrape(ctx context.Context, userID, rawURL string) ([]model.ScrapedLead, error)
}

var _ ScrapeService = (*service.ScrapeService)(nil)

type ScraperController struct {
	ScrapeService ScrapeService
	Logger        *zap.Logger
}

// Scrape blocks until discovery finishes; progress goes out as SCRAPE_STATUS.
func (c *ScraperController) Scrape(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, c.Logger, err)
		return
	}

	leads, err := c.ScrapeService.Scrape(r.Context(), auth.UserID(r.Context()), body.URL)
	if err != nil {
		if StatusFor(err) == http.StatusInternalServerError {
			// Unreachable sites are the caller's input, not a server fault.
			writeErrorMessage(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}
