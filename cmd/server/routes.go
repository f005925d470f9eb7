// cmd/server/routes.go
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/auth"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/handler"
)

// routes holds everything the router dispatches to.
type routes struct {
	Campaigns *controller.CampaignController
	Agents    *controller.AgentController
	Scraper   *controller.ScraperController
	AI        *controller.AIController
	Settings  *controller.SettingsController
	Events    *handler.EventsHandler
	Chat      *handler.ChatHandler

	Verifier    *auth.Verifier
	CORSOrigins []string
	Logger      *zap.Logger
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.Verifier.Middleware)

		r.Get("/events", rt.Events.Stream)

		// Campaign routes
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", rt.Campaigns.CreateCampaign)
			r.Get("/", rt.Campaigns.ListCampaigns)
			r.Get("/{id}", rt.Campaigns.GetCampaignDetails)
			r.Get("/{id}/leads", rt.Campaigns.ListLeads)
			r.Post("/{id}/start", rt.Campaigns.StartCampaign)
			r.Post("/{id}/pause", rt.Campaigns.PauseCampaign)
		})

		// Agent routes
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", rt.Agents.CreateAgent)
			r.Get("/", rt.Agents.ListAgents)
			r.Get("/{id}", rt.Agents.GetAgent)
			r.Patch("/{id}", rt.Agents.UpdateAgent)
			r.Delete("/{id}", rt.Agents.DeleteAgent)
			r.Get("/{id}/health", rt.Agents.CheckHealth)
			r.Post("/{id}/chat", rt.Chat.Chat)
		})

		r.Post("/scraper/scrape", rt.Scraper.Scrape)
		r.Post("/ai/generate", rt.AI.Generate)
		r.Post("/ai/embed", rt.AI.Embed)
		r.Get("/settings/keys", rt.Settings.ListAPIKeys)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
