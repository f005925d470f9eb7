// internal/service/processor.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/ai"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/mailer"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/notify"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// DefaultLeadDelay is the pause after every lead.
const DefaultLeadDelay = 2 * time.Second

// recordTimeout bounds the writes that follow a delivered email.
const recordTimeout = 10 * time.Second

// ErrRunFailed wraps a run-fatal error. The campaign has already been marked
// Failed and the user notified, so the job must not be retried.
var ErrRunFailed = errors.New("campaign run failed")

// Generator is the part of the AI client used for personalization.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ai.Options) (string, error)
}

// Processor sends a campaign's pending leads one at a time.
type Processor struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	Generator    Generator
	Dialer       mailer.Dialer
	Notifier     notify.Notifier
	Logger       *zap.Logger
	LeadDelay    time.Duration

	// Sleep waits between leads; nil uses a timer that honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// run carries the state of one Run call.
type run struct {
	rc      *model.RunContext
	sent    int
	logger  *zap.Logger
	session mailer.Session
}

// Run processes every Pending lead of the campaign. Leads already Sent or
// Failed are never touched, so calling Run again after an interruption
// resumes where the previous run stopped.
//
// Cancelling ctx stops the run between leads and leaves the campaign
// InProgress. Pausing the campaign stops it with status Paused.
func (p *Processor) Run(ctx context.Context, job model.RunJob) error {
	logger := p.logger().With(zap.String("campaign_id", job.CampaignID))

	release, err := p.CampaignRepo.AcquireRunLock(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, appErrors.ErrRunInProgress) {
			logger.Info("Campaign already running elsewhere, skipping")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, jobRun(job, logger), fmt.Errorf("acquire run lock: %w", err))
	}
	defer release()

	rc, err := p.CampaignRepo.GetRunContext(ctx, job.CampaignID)
	if err != nil {
		switch {
		case appErrors.IsNotFound(err):
			logger.Warn("Campaign vanished before run", zap.Error(err))
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, repository.ErrNoAgent):
			st, stErr := p.CampaignRepo.GetStatus(ctx, job.CampaignID)
			if stErr == nil && st != model.CampaignInProgress {
				return nil
			}
		}
		return p.fail(ctx, jobRun(job, logger), fmt.Errorf("load campaign: %w", err))
	}

	r := &run{rc: rc, sent: rc.Campaign.SentLeads, logger: logger}

	if rc.Campaign.Status != model.CampaignInProgress {
		logger.Info("Campaign not in progress, nothing to run", zap.String("status", string(rc.Campaign.Status)))
		return nil
	}

	leads, err := p.LeadRepo.ListPending(ctx, rc.Campaign.ID)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("list pending leads: %w", err))
	}

	logger.Info("🚀 Campaign run started", zap.Int("pending", len(leads)), zap.Int("sent", r.sent))

	if len(leads) > 0 {
		session, err := p.Dialer.Open(ctx, mailer.Credentials{Email: rc.AgentEmail, AppPassword: rc.AppPassword})
		if err != nil {
			return p.fail(ctx, r, fmt.Errorf("open SMTP session: %w", err))
		}
		defer session.Close()
		r.session = session
	}

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return p.interrupted(r, err)
		}

		status, err := p.CampaignRepo.GetStatus(ctx, rc.Campaign.ID)
		if err != nil {
			if ctx.Err() != nil {
				return p.interrupted(r, ctx.Err())
			}
			return p.fail(ctx, r, fmt.Errorf("read campaign status: %w", err))
		}
		if status == model.CampaignPaused {
			metrics.CampaignRuns.WithLabelValues("paused").Inc()
			logger.Info("⏸️ Campaign paused", zap.Int("sent", r.sent))
			p.progress(ctx, r, notify.CampaignProgress{Status: string(model.CampaignPaused)})
			return nil
		}

		if err := p.processLead(ctx, r, lead); err != nil {
			if ctx.Err() != nil {
				return p.interrupted(r, ctx.Err())
			}
			return p.fail(ctx, r, err)
		}

		if err := p.sleep(ctx, p.leadDelay()); err != nil {
			return p.interrupted(r, err)
		}
	}

	if err := p.CampaignRepo.UpdateStatus(ctx, rc.Campaign.ID, model.CampaignCompleted); err != nil {
		if ctx.Err() != nil {
			return p.interrupted(r, ctx.Err())
		}
		return p.fail(ctx, r, fmt.Errorf("complete campaign: %w", err))
	}

	metrics.CampaignRuns.WithLabelValues("completed").Inc()
	logger.Info("✅ Campaign completed", zap.Int("sent", r.sent), zap.Int("total", rc.Campaign.TotalLeads))
	p.progress(ctx, r, notify.CampaignProgress{Status: string(model.CampaignCompleted)})
	return nil
}

// processLead personalizes and sends one lead. Generation and delivery
// failures are recorded on the lead; only persistence errors are returned.
func (p *Processor) processLead(ctx context.Context, r *run, lead *model.Lead) error {
	p.progress(ctx, r, notify.CampaignProgress{
		Status:  string(model.CampaignInProgress),
		Message: fmt.Sprintf("Personalizing for %s...", lead.Email),
	})

	content, err := p.Generator.Generate(ctx, PersonalizationPrompt(r.rc.PersonaPrompt, lead), ai.Options{})
	if err == nil && strings.TrimSpace(content) == "" {
		err = errors.New("generated content is empty")
	}
	if err != nil {
		return p.leadFailed(ctx, r, lead, fmt.Errorf("generate: %w", err))
	}

	err = r.session.Send(ctx, mailer.Message{
		From:    r.rc.AgentEmail,
		To:      lead.Email,
		Subject: EmailSubject(r.rc.Campaign.Name),
		Body:    content,
	})
	if err != nil {
		return p.leadFailed(ctx, r, lead, fmt.Errorf("send: %w", err))
	}

	// The email is out, so it is recorded even if ctx is cancelled meanwhile.
	// Leaving the lead Pending would send it again on resume.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := p.LeadRepo.MarkSent(recordCtx, lead.ID, content); err != nil {
		if errors.Is(err, repository.ErrLeadNotPending) {
			metrics.LeadsProcessed.WithLabelValues("skipped").Inc()
			r.logger.Warn("Lead no longer pending, not counted", zap.String("lead_id", lead.ID))
			return nil
		}
		return fmt.Errorf("mark lead %s sent: %w", lead.ID, err)
	}

	sent, err := p.CampaignRepo.IncrementSentLeads(recordCtx, r.rc.Campaign.ID)
	if err != nil {
		return fmt.Errorf("increment sent count: %w", err)
	}
	r.sent = sent

	metrics.LeadsProcessed.WithLabelValues("sent").Inc()
	r.logger.Info("📧 Email sent", zap.String("lead_id", lead.ID), zap.String("email", lead.Email), zap.Int("sent", sent))
	p.progress(recordCtx, r, notify.CampaignProgress{Status: string(model.CampaignInProgress)})
	return nil
}

func (p *Processor) leadFailed(ctx context.Context, r *run, lead *model.Lead, cause error) error {
	if ctx.Err() != nil {
		// Interrupted, not failed: the lead stays Pending for the next run.
		return ctx.Err()
	}
	r.logger.Warn("⚠️ Lead failed", zap.String("lead_id", lead.ID), zap.String("email", lead.Email), zap.Error(cause))

	if err := p.LeadRepo.MarkFailed(ctx, lead.ID, cause.Error()); err != nil {
		if errors.Is(err, repository.ErrLeadNotPending) {
			metrics.LeadsProcessed.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("mark lead %s failed: %w", lead.ID, err)
	}
	metrics.LeadsProcessed.WithLabelValues("failed").Inc()
	return nil
}

// fail marks the campaign Failed and notifies the user.
func (p *Processor) fail(ctx context.Context, r *run, cause error) error {
	metrics.CampaignRuns.WithLabelValues("failed").Inc()
	r.logger.Error("❌ Campaign run failed", zap.Int("sent", r.sent), zap.Error(cause))

	// Record the failure even when the caller's context is already done.
	ctx = context.WithoutCancel(ctx)
	if err := p.CampaignRepo.UpdateStatus(ctx, r.rc.Campaign.ID, model.CampaignFailed); err != nil {
		r.logger.Error("Failed to mark campaign failed", zap.Error(err))
	}
	p.progress(ctx, r, notify.CampaignProgress{Status: string(model.CampaignFailed), Error: cause.Error()})
	return fmt.Errorf("%w: %w", ErrRunFailed, cause)
}

// jobRun is the run state for a failure before the run context is loaded.
func jobRun(job model.RunJob, logger *zap.Logger) *run {
	return &run{
		rc:     &model.RunContext{Campaign: model.Campaign{ID: job.CampaignID, UserID: job.UserID}},
		logger: logger,
	}
}

func (p *Processor) interrupted(r *run, cause error) error {
	metrics.CampaignRuns.WithLabelValues("interrupted").Inc()
	r.logger.Info("Campaign run interrupted, will resume", zap.Int("sent", r.sent), zap.Error(cause))
	return cause
}

func (p *Processor) progress(ctx context.Context, r *run, ev notify.CampaignProgress) {
	if p.Notifier == nil {
		return
	}
	ev.CampaignID = r.rc.Campaign.ID
	ev.SentCount = r.sent
	if err := p.Notifier.Notify(ctx, r.rc.Campaign.UserID, notify.EventCampaignProgress, ev); err != nil {
		r.logger.Debug("Progress notification not delivered", zap.Error(err))
	}
}

// Handler adapts Run to a queue subscriber. Run records its own failures,
// so only errors that leave the campaign untouched reach the queue.
func (p *Processor) Handler(ctx context.Context) func(payload any) error {
	return func(payload any) error {
		job, err := queue.DecodeRunJob(payload)
		if err != nil {
			p.logger().Error("Dropping invalid run job", zap.Error(err))
			return nil
		}
		err = p.Run(ctx, job)
		switch {
		case err == nil,
			errors.Is(err, ErrRunFailed),
			errors.Is(err, appErrors.ErrRunInProgress),
			appErrors.IsNotFound(err),
			ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Processor) leadDelay() time.Duration {
	if p.LeadDelay < 0 {
		return 0
	}
	if p.LeadDelay == 0 {
		return DefaultLeadDelay
	}
	return p.LeadDelay
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
