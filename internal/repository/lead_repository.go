package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// LeadRepositoryInterface defines the lead operations used by services
type LeadRepositoryInterface interface {
	ListPending(ctx context.Context, campaignID string) ([]*model.Lead, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error)
	MarkSent(ctx context.Context, leadID, content string) error
	MarkFailed(ctx context.Context, leadID, errorMessage string) error
}

// ErrLeadNotPending is returned when a lead update targets a lead that has
// already reached a terminal status.
var ErrLeadNotPending = errors.New("lead is no longer pending")

type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `id, campaign_id, email, first_name, role, personalized_content, status, error_message, sent_at, created_at`

func (r *LeadRepository) list(ctx context.Context, query string, args ...any) ([]*model.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []*model.Lead{}
	for rows.Next() {
		l := &model.Lead{}
		if err := rows.Scan(
			&l.ID, &l.CampaignID, &l.Email, &l.FirstName, &l.Role,
			&l.PersonalizedContent, &l.Status, &l.ErrorMessage, &l.SentAt, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// ListPending returns the campaign's Pending leads in insertion order.
// created_at cannot order them: leads inserted in one transaction share it.
func (r *LeadRepository) ListPending(ctx context.Context, campaignID string) ([]*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id=$1 AND status=$2 ORDER BY seq`
	return r.list(ctx, query, campaignID, model.LeadPending)
}

// ListByCampaign returns every lead of the campaign in insertion order.
func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id=$1 ORDER BY seq`
	return r.list(ctx, query, campaignID)
}

// MarkSent records a successful delivery. Only a Pending lead is updated.
func (r *LeadRepository) MarkSent(ctx context.Context, leadID, content string) error {
	query := `
        UPDATE leads
        SET status=$1, personalized_content=$2, sent_at=NOW(), error_message=NULL
        WHERE id=$3 AND status=$4
    `
	return r.transition(ctx, query, model.LeadSent, content, leadID, model.LeadPending)
}

// MarkFailed records a terminal failure. Only a Pending lead is updated.
func (r *LeadRepository) MarkFailed(ctx context.Context, leadID, errorMessage string) error {
	query := `UPDATE leads SET status=$1, error_message=$2 WHERE id=$3 AND status=$4`
	return r.transition(ctx, query, model.LeadFailed, errorMessage, leadID, model.LeadPending)
}

func (r *LeadRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeadNotPending
	}
	return nil
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
