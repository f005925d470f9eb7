// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/mailer"
	"github.com/unclebandit/outreach-backend/internal/notify"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	cfg, envFound := config.Load()
	log := logger.Must(cfg.LogLevel)
	defer log.Sync()

	if !envFound {
		log.Warn("⚠️ No .env file found, relying on OS environment variables")
	}
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	aiClient, err := ai.NewClient(ai.Config{
		APIKeys:        cfg.GeminiAPIKeys,
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.GeminiEmbeddingModel,
		BaseURL:        cfg.GeminiBaseURL,
	}, log)
	if err != nil {
		log.Fatal("Failed to create Gemini client", zap.Error(err))
	}

	notifier, closeNotifier := newNotifier(cfg, log)
	defer closeNotifier()

	rq, err := queue.DialRabbit(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rq.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}

	processor := &service.Processor{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		Generator:    aiClient,
		Dialer:       mailer.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, log),
		Notifier:     notifier,
		Logger:       log,
		LeadDelay:    cfg.LeadDelay,
	}
	if err := rq.Subscribe(queue.TopicCampaignRuns, processor.Handler(ctx)); err != nil {
		log.Fatal("Failed to register consumer", zap.Error(err))
	}

	// Runs interrupted by a previous shutdown are queued again; the run lock
	// keeps a duplicate message from sending twice.
	resumer := &service.CampaignService{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		AgentRepo:    &repository.AgentRepository{DB: conn},
		Queue:        rq,
		Logger:       log,
	}
	if _, err := resumer.ResumeInProgress(ctx); err != nil {
		log.Error("Resume scan failed", zap.Error(err))
	}

	log.Info("👷 Worker running, waiting for campaign runs...")
	<-ctx.Done()
	log.Info("Worker stopping")
}

// newNotifier publishes through Redis when configured so the API process can
// relay events to browsers. Without Redis, events are only logged.
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func()) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, progress events will only be logged")
		return &notify.LogNotifier{Logger: log}, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return notify.NewRedisNotifier(rdb, log), func() { _ = rdb.Close() }
}
