package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	CreateWithLeads(ctx context.Context, c *model.Campaign, leads []model.NewLead) error
	GetByID(ctx context.Context, userID, id string) (*model.Campaign, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error
	GetStatus(ctx context.Context, campaignID string) (model.CampaignStatus, error)
	GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error)

	// Run support
	GetRunContext(ctx context.Context, campaignID string) (*model.RunContext, error)
	IncrementSentLeads(ctx context.Context, campaignID string) (int, error)
	ListRunJobsByStatus(ctx context.Context, status model.CampaignStatus) ([]model.RunJob, error)
	AcquireRunLock(ctx context.Context, campaignID string) (func(), error)
}

// ErrNoAgent is returned when a campaign's agent was deleted.
var ErrNoAgent = errors.New("campaign has no sending agent")

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, agent_id, name, status, total_leads, sent_leads, created_at`

func scanCampaign(row interface{ Scan(...any) error }, c *model.Campaign) error {
	return row.Scan(&c.ID, &c.UserID, &c.AgentID, &c.Name, &c.Status, &c.TotalLeads, &c.SentLeads, &c.CreatedAt)
}

// ====================== Campaign CRUD ======================

// CreateWithLeads inserts the campaign in Draft and all of its leads in one
// transaction. total_leads is set from len(leads).
func (r *CampaignRepository) CreateWithLeads(ctx context.Context, c *model.Campaign, leads []model.NewLead) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create campaign: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	c.Status = model.CampaignDraft
	c.TotalLeads = len(leads)
	c.SentLeads = 0

	query := `
        INSERT INTO campaigns (user_id, agent_id, name, total_leads, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at
    `
	if err = tx.QueryRowContext(ctx, query, c.UserID, c.AgentID, c.Name, c.TotalLeads, c.Status).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (campaign_id, email, first_name, role) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare lead insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range leads {
		if _, err = stmt.ExecContext(ctx, c.ID, strings.TrimSpace(l.Email), blankToNil(l.Name), blankToNil(l.Role)); err != nil {
			return fmt.Errorf("insert lead %s: %w", l.Email, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, userID, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND user_id=$2`
	var c model.Campaign
	if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, userID), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListByUser(ctx context.Context, userID string) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status=$1 WHERE id=$2`, status, campaignID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

func (r *CampaignRepository) GetStatus(ctx context.Context, campaignID string) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, campaignID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.NewCampaignNotFound(campaignID)
	}
	return status, err
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM leads WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0}
	for _, st := range []model.LeadStatus{model.LeadPending, model.LeadSent, model.LeadFailed} {
		stats[string(st)] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

// ====================== Run support ======================

// GetRunContext loads the campaign together with its agent's sending identity.
func (r *CampaignRepository) GetRunContext(ctx context.Context, campaignID string) (*model.RunContext, error) {
	query := `
        SELECT c.id, c.user_id, c.agent_id, c.name, c.status, c.total_leads, c.sent_leads, c.created_at,
               a.email, a.app_password, a.persona_prompt
        FROM campaigns c
        LEFT JOIN agents a ON a.id = c.agent_id
        WHERE c.id = $1
    `
	var rc model.RunContext
	var agentEmail, appPassword, persona sql.NullString
	c := &rc.Campaign
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(
		&c.ID, &c.UserID, &c.AgentID, &c.Name, &c.Status, &c.TotalLeads, &c.SentLeads, &c.CreatedAt,
		&agentEmail, &appPassword, &persona,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(campaignID)
		}
		return nil, err
	}
	if c.AgentID == nil || !agentEmail.Valid {
		return nil, ErrNoAgent
	}
	rc.AgentEmail = agentEmail.String
	rc.AppPassword = appPassword.String
	rc.PersonaPrompt = persona.String
	return &rc, nil
}

// IncrementSentLeads atomically bumps sent_leads and returns the new value.
// The increment never pushes sent_leads above total_leads.
func (r *CampaignRepository) IncrementSentLeads(ctx context.Context, campaignID string) (int, error) {
	query := `
        UPDATE campaigns SET sent_leads = sent_leads + 1
        WHERE id = $1 AND sent_leads < total_leads
        RETURNING sent_leads
    `
	var sent int
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		// Already at total (or gone): report the stored value unchanged.
		err = r.DB.QueryRowContext(ctx, `SELECT sent_leads FROM campaigns WHERE id=$1`, campaignID).Scan(&sent)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.NewCampaignNotFound(campaignID)
		}
	}
	return sent, err
}

// ListRunJobsByStatus is used by the startup resume scan.
func (r *CampaignRepository) ListRunJobsByStatus(ctx context.Context, status model.CampaignStatus) ([]model.RunJob, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, user_id FROM campaigns WHERE status=$1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.RunJob{}
	for rows.Next() {
		var j model.RunJob
		if err := rows.Scan(&j.CampaignID, &j.UserID); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// AcquireRunLock takes a session-level advisory lock for the campaign on a
// dedicated connection. The returned func releases it and returns the
// connection to the pool. ErrRunInProgress means another run holds it.
func (r *CampaignRepository) AcquireRunLock(ctx context.Context, campaignID string) (func(), error) {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve lock connection: %w", err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, campaignID).Scan(&locked); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		conn.Close()
		return nil, appErrors.ErrRunInProgress
	}

	release := func() {
		// The run context may already be cancelled; unlock regardless.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, campaignID)
		conn.Close()
	}
	return release, nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
