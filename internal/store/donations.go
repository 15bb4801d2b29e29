package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertDonation(ctx context.Context, donation Donation, answers []DonationAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert donation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO donations (id, organization_id, campaign_id, designation_id, donor_account_id, donor_email, donor_name, amount, currency, status, provider_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
	`, donation.ID, donation.OrganizationID, donation.CampaignID, donation.DesignationID, donation.DonorAccountID,
		donation.DonorEmail, donation.DonorName, donation.Amount, donation.Currency, donation.Status, donation.ProviderSessionID)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}

	for _, answer := range answers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO donation_answers (id, donation_id, question_id, answer)
			VALUES ($1, $2, $3, $4)
		`, answer.ID, donation.ID, answer.QuestionID, answer.Answer); err != nil {
			return fmt.Errorf("insert donation answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDonation(ctx context.Context, organizationID, donationID string) (Donation, []DonationAnswer, error) {
	var item Donation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, campaign_id, designation_id, donor_account_id, donor_email, COALESCE(donor_name, ''), amount, currency, status, COALESCE(provider_session_id, ''), completed_at, created_at
		FROM donations
		WHERE id=$1 AND organization_id=$2
	`, donationID, organizationID).Scan(&item.ID, &item.OrganizationID, &item.CampaignID, &item.DesignationID, &item.DonorAccountID,
		&item.DonorEmail, &item.DonorName, &item.Amount, &item.Currency, &item.Status, &item.ProviderSessionID, &item.CompletedAt, &item.CreatedAt)
	if err != nil {
		return Donation{}, nil, err
	}

	answers, err := s.listDonationAnswers(ctx, item.ID)
	if err != nil {
		return Donation{}, nil, err
	}
	return item, answers, nil
}

func (s *PostgresStore) listDonationAnswers(ctx context.Context, donationID string) ([]DonationAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.donation_id, a.question_id, a.answer, COALESCE(q.question_text, '')
		FROM donation_answers a
		LEFT JOIN campaign_questions q ON q.id = a.question_id
		WHERE a.donation_id=$1
		ORDER BY COALESCE(q.display_order, 0) ASC, a.id ASC
	`, donationID)
	if err != nil {
		return nil, fmt.Errorf("list donation answers: %w", err)
	}
	defer rows.Close()

	answers := make([]DonationAnswer, 0)
	for rows.Next() {
		var answer DonationAnswer
		if err := rows.Scan(&answer.ID, &answer.DonationID, &answer.QuestionID, &answer.Answer, &answer.QuestionText); err != nil {
			return nil, fmt.Errorf("scan donation answer: %w", err)
		}
		answers = append(answers, answer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donation answers: %w", err)
	}
	return answers, nil
}

type DonationFilter struct {
	CampaignID    string
	DesignationID string
	Status        string
}

func (s *PostgresStore) ListDonations(ctx context.Context, organizationID string, filter DonationFilter) ([]Donation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, campaign_id, designation_id, donor_account_id, donor_email, COALESCE(donor_name, ''), amount, currency, status, COALESCE(provider_session_id, ''), completed_at, created_at
		FROM donations
		WHERE organization_id=$1
		  AND ($2 = '' OR campaign_id = $2)
		  AND ($3 = '' OR designation_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC
	`, organizationID, filter.CampaignID, filter.DesignationID, filter.Status)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	return scanDonations(rows)
}

func (s *PostgresStore) ListDonorDonations(ctx context.Context, organizationID, donorAccountID string) ([]Donation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, campaign_id, designation_id, donor_account_id, donor_email, COALESCE(donor_name, ''), amount, currency, status, COALESCE(provider_session_id, ''), completed_at, created_at
		FROM donations
		WHERE organization_id=$1 AND donor_account_id=$2
		ORDER BY created_at DESC
	`, organizationID, donorAccountID)
	if err != nil {
		return nil, fmt.Errorf("list donor donations: %w", err)
	}
	defer rows.Close()

	return scanDonations(rows)
}

// CompleteDonationByProviderSession marks a pending donation completed when
// the payment provider confirms its checkout session. Repeat webhooks are
// no-ops because the status predicate no longer matches.
func (s *PostgresStore) CompleteDonationByProviderSession(ctx context.Context, providerSessionID string) (Donation, error) {
	var item Donation
	err := s.db.QueryRowContext(ctx, `
		UPDATE donations
		SET status='completed', completed_at=NOW()
		WHERE provider_session_id=$1 AND status='pending'
		RETURNING id, organization_id, campaign_id, designation_id, donor_account_id, donor_email, COALESCE(donor_name, ''), amount, currency, status, COALESCE(provider_session_id, ''), completed_at, created_at
	`, providerSessionID).Scan(&item.ID, &item.OrganizationID, &item.CampaignID, &item.DesignationID, &item.DonorAccountID,
		&item.DonorEmail, &item.DonorName, &item.Amount, &item.Currency, &item.Status, &item.ProviderSessionID, &item.CompletedAt, &item.CreatedAt)
	if err != nil {
		return Donation{}, err
	}
	return item, nil
}

type DonationTotals struct {
	Count       int64
	TotalAmount int64
}

func (s *PostgresStore) CampaignDonationTotals(ctx context.Context, organizationID, campaignID string) (DonationTotals, error) {
	var totals DonationTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM donations
		WHERE organization_id=$1 AND campaign_id=$2 AND status='completed'
	`, organizationID, campaignID).Scan(&totals.Count, &totals.TotalAmount)
	if err != nil {
		return DonationTotals{}, fmt.Errorf("campaign donation totals: %w", err)
	}
	return totals, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDonations(rows rowScanner) ([]Donation, error) {
	items := make([]Donation, 0)
	for rows.Next() {
		var item Donation
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.CampaignID, &item.DesignationID, &item.DonorAccountID,
			&item.DonorEmail, &item.DonorName, &item.Amount, &item.Currency, &item.Status, &item.ProviderSessionID, &item.CompletedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return items, nil
}
