package controller_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/ai"
	"github.com/unclebandit/outreach-backend/internal/controller"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type stubAI struct {
	opts ai.Options
	err  error
}

func (s *stubAI) Generate(_ context.Context, prompt string, opts ai.Options) (string, error) {
	s.opts = opts
	if s.err != nil {
		return "", s.err
	}
	return "re: " + prompt, nil
}

func (s *stubAI) Embed(context.Context, string) []float32 {
	return make([]float32, ai.EmbeddingDimension)
}

type stubScrapeService struct {
	userID string
	err    error
}

func (s *stubScrapeService) Scrape(_ context.Context, userID, rawURL string) ([]model.ScrapedLead, error) {
	s.userID = userID
	if s.err != nil {
		return nil, s.err
	}
	return []model.ScrapedLead{{Email: "info@" + rawURL, Source: "https://" + rawURL}}, nil
}

func aiRouter(gen controller.AI, scr controller.ScrapeService) http.Handler {
	aiCtrl := &controller.AIController{AI: gen}
	scrapeCtrl := &controller.ScraperController{ScrapeService: scr}
	r := chi.NewRouter()
	r.Post("/ai/generate", aiCtrl.Generate)
	r.Post("/ai/embed", aiCtrl.Embed)
	r.Post("/scraper/scrape", scrapeCtrl.Scrape)
	return r
}

func TestGenerateHandler(t *testing.T) {
	gen := &stubAI{}
	h := aiRouter(gen, &stubScrapeService{})

	w := do(t, h, http.MethodPost, "/ai/generate", map[string]any{"prompt": "hello", "temperature": 0.2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"text": "re: hello"}, decode(t, w))
	assert.Equal(t, 0.2, gen.opts.Temperature)

	w = do(t, h, http.MethodPost, "/ai/generate", map[string]any{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	gen.err = errors.New("all keys exhausted")
	w = do(t, h, http.MethodPost, "/ai/generate", map[string]any{"prompt": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestEmbedHandler(t *testing.T) {
	h := aiRouter(&stubAI{}, &stubScrapeService{})

	w := do(t, h, http.MethodPost, "/ai/embed", map[string]string{"text": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["embedding"], ai.EmbeddingDimension)

	w = do(t, h, http.MethodPost, "/ai/embed", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrapeHandler(t *testing.T) {
	scr := &stubScrapeService{}
	h := aiRouter(&stubAI{}, scr)

	w := do(t, h, http.MethodPost, "/scraper/scrape", map[string]string{"url": "acme.io"})
	require.Equal(t, http.StatusOK, w.Code)
	leads := decode(t, w)["leads"].([]any)
	require.Len(t, leads, 1)
	assert.Equal(t, "info@acme.io", leads[0].(map[string]any)["email"])
	assert.Equal(t, testUser, scr.userID)

	scr.err = appErrors.Validation("url is required")
	w = do(t, h, http.MethodPost, "/scraper/scrape", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	scr.err = errors.New("fetch https://acme.invalid: no such host")
	w = do(t, h, http.MethodPost, "/scraper/scrape", map[string]string{"url": "acme.invalid"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "no such host")
}

func TestListAPIKeysHandler(t *testing.T) {
	client, err := ai.NewClient(ai.Config{APIKeys: []string{"AIzaSyPrimary0001", "AIzaSyBackup00002"}}, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Get("/settings/keys", (&controller.SettingsController{Keys: client}).ListAPIKeys)

	w := do(t, r, http.MethodGet, "/settings/keys", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "AIzaSyPrimary0001")
	var keys []ai.KeyStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&keys))
	require.Len(t, keys, 2)
	assert.Equal(t, "AIza...0001", keys[0].Masked)
	assert.True(t, keys[0].IsPrimary)
	assert.True(t, keys[0].Current)
	assert.Equal(t, "Gemini Key 2", keys[1].Name)
}
