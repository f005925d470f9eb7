// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	"github.com/unclebandit/outreach-backend/internal/auth"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/handler"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/mailer"
	"github.com/unclebandit/outreach-backend/internal/notify"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scraper"
	"github.com/unclebandit/outreach-backend/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, envFound := config.Load()
	log := logger.Must(cfg.LogLevel)
	defer log.Sync()

	if !envFound {
		log.Warn("⚠️ No .env file found, relying on OS environment variables")
	}
	if cfg.SupabaseJWTSecret == "" {
		log.Fatal("SUPABASE_JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}
	agentRepo := &repository.AgentRepository{DB: conn}

	aiClient, err := ai.NewClient(ai.Config{
		APIKeys:        cfg.GeminiAPIKeys,
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.GeminiEmbeddingModel,
		BaseURL:        cfg.GeminiBaseURL,
	}, log)
	if err != nil {
		log.Fatal("Failed to create Gemini client", zap.Error(err))
	}
	dialer := mailer.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, log)
	extractor := scraper.NewExtractor(scraper.NewLLMEnricher(aiClient, log), log)

	// Progress events reach browsers through the hub. With Redis, every
	// process publishes to Redis and the relay feeds this process's hub.
	hub := notify.NewHub(log)
	var notifier notify.Notifier = hub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		notifier = notify.NewRedisNotifier(rdb, log)
		go func() {
			if err := notify.NewRelay(rdb, hub, log).Run(ctx); err != nil {
				log.Error("Progress relay stopped", zap.Error(err))
			}
		}()
	}

	processor := &service.Processor{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		Generator:    aiClient,
		Dialer:       dialer,
		Notifier:     notifier,
		Logger:       log,
		LeadDelay:    cfg.LeadDelay,
	}

	var q queue.Queue
	var memQueue *queue.InMemoryQueue
	if cfg.AMQPURL != "" {
		rq, err := queue.DialRabbit(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rq.Close()
		q = rq
		log.Info("Campaign runs are published to RabbitMQ for the worker")
	} else {
		memQueue = queue.NewInMemoryQueue(log)
		if err := memQueue.Subscribe(queue.TopicCampaignRuns, processor.Handler(ctx)); err != nil {
			log.Fatal("Failed to subscribe campaign processor", zap.Error(err))
		}
		q = memQueue
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		AgentRepo:    agentRepo,
		Queue:        q,
		Logger:       log,
	}
	agentService := &service.AgentService{
		AgentRepo: agentRepo,
		Dialer:    dialer,
		Chat:      aiClient,
		Logger:    log,
	}
	scrapeService := &service.ScrapeService{
		Scraper:  extractor,
		Notifier: notifier,
		Logger:   log,
	}

	if memQueue != nil {
		if _, err := campaignService.ResumeInProgress(ctx); err != nil {
			log.Error("Resume scan failed", zap.Error(err))
		}
	}

	router := newRouter(routes{
		Campaigns:   &controller.CampaignController{CampaignService: campaignService, Logger: log},
		Agents:      &controller.AgentController{AgentService: agentService, Logger: log},
		Scraper:     &controller.ScraperController{ScrapeService: scrapeService, Logger: log},
		AI:          &controller.AIController{AI: aiClient, Logger: log},
		Settings:    &controller.SettingsController{Keys: aiClient},
		Events:      &handler.EventsHandler{Hub: hub, Logger: log, Done: ctx.Done()},
		Chat:        &handler.ChatHandler{AgentService: agentService, Logger: log},
		Verifier:    auth.NewVerifier(cfg.SupabaseJWTSecret),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	if memQueue != nil {
		// In-flight runs stop at the next lead and are resumed on restart.
		memQueue.Wait()
	}
	log.Info("Server stopped")
}
