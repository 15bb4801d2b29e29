package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across campaigns, designations, and
// donations using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.OrganizationID == "" {
		return nil, 0, fmt.Errorf("search requires an organization filter")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OrganizationID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCampaign {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'campaign'::text AS type, c.id, c.internal_name AS title,
				ts_headline('english', coalesce(c.external_name, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.organization_id, c.id AS campaign_id,
				ts_rank(c.fts, %s) AS rank
			FROM campaigns c
			WHERE c.fts @@ %s AND c.organization_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultDesignation {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'designation'::text AS type, d.id, d.name AS title,
				ts_headline('english', coalesce(d.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.organization_id, ''::text AS campaign_id,
				ts_rank(d.fts, %s) AS rank
			FROM designations d
			WHERE d.fts @@ %s AND d.organization_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultDonation {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'donation'::text AS type, dn.id, coalesce(dn.donor_name, '') AS title,
				ts_headline('english', dn.donor_email, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				dn.organization_id, dn.campaign_id,
				ts_rank(dn.fts, %s) AS rank
			FROM donations dn
			WHERE dn.fts @@ %s AND dn.organization_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, organization_id, campaign_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.OrganizationID, &r.CampaignID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CampaignRecord, []DesignationRecord, []DonationRecord, error) {
	campaignRows, err := p.db.QueryContext(ctx, `
		SELECT id, internal_name, external_name, slug, organization_id, is_active
		FROM campaigns
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load campaigns: %w", err)
	}
	defer campaignRows.Close()

	campaigns := make([]CampaignRecord, 0)
	for campaignRows.Next() {
		var c CampaignRecord
		if err := campaignRows.Scan(&c.ID, &c.InternalName, &c.ExternalName, &c.Slug, &c.OrganizationID, &c.IsActive); err != nil {
			return nil, nil, nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := campaignRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate campaigns: %w", err)
	}

	designationRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, ''), organization_id, is_archived
		FROM designations
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load designations: %w", err)
	}
	defer designationRows.Close()

	designations := make([]DesignationRecord, 0)
	for designationRows.Next() {
		var d DesignationRecord
		if err := designationRows.Scan(&d.ID, &d.Name, &d.Description, &d.OrganizationID, &d.IsArchived); err != nil {
			return nil, nil, nil, fmt.Errorf("scan designation: %w", err)
		}
		designations = append(designations, d)
	}
	if err := designationRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate designations: %w", err)
	}

	donationRows, err := p.db.QueryContext(ctx, `
		SELECT id, coalesce(donor_name, ''), donor_email, campaign_id, organization_id, status
		FROM donations
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load donations: %w", err)
	}
	defer donationRows.Close()

	donations := make([]DonationRecord, 0)
	for donationRows.Next() {
		var d DonationRecord
		if err := donationRows.Scan(&d.ID, &d.DonorName, &d.DonorEmail, &d.CampaignID, &d.OrganizationID, &d.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, d)
	}
	if err := donationRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate donations: %w", err)
	}

	return campaigns, designations, donations, nil
}
