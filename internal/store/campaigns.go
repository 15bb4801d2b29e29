package store

import (
	"context"
	"database/sql"
	"fmt"
)

// --- Campaigns ---

func (s *PostgresStore) ListCampaigns(ctx context.Context, organizationID string) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, internal_name, external_name, slug, default_designation_id, goal_amount, COALESCE(icon, ''), COALESCE(page_config::text, '{}'), is_active, created_at, updated_at
		FROM campaigns
		WHERE organization_id=$1
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	items := make([]Campaign, 0)
	for rows.Next() {
		var item Campaign
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.InternalName, &item.ExternalName, &item.Slug, &item.DefaultDesignationID, &item.GoalAmount, &item.Icon, &item.PageConfig, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListActiveCampaigns(ctx context.Context, organizationID string) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, internal_name, external_name, slug, default_designation_id, goal_amount, COALESCE(icon, ''), COALESCE(page_config::text, '{}'), is_active, created_at, updated_at
		FROM campaigns
		WHERE organization_id=$1 AND is_active
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	items := make([]Campaign, 0)
	for rows.Next() {
		var item Campaign
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.InternalName, &item.ExternalName, &item.Slug, &item.DefaultDesignationID, &item.GoalAmount, &item.Icon, &item.PageConfig, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active campaigns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, organizationID, campaignID string) (Campaign, error) {
	var item Campaign
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, internal_name, external_name, slug, default_designation_id, goal_amount, COALESCE(icon, ''), COALESCE(page_config::text, '{}'), is_active, created_at, updated_at
		FROM campaigns
		WHERE id=$1 AND organization_id=$2
	`, campaignID, organizationID).Scan(&item.ID, &item.OrganizationID, &item.InternalName, &item.ExternalName, &item.Slug, &item.DefaultDesignationID, &item.GoalAmount, &item.Icon, &item.PageConfig, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Campaign{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetCampaignBySlug(ctx context.Context, organizationID, slug string) (Campaign, error) {
	var item Campaign
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, internal_name, external_name, slug, default_designation_id, goal_amount, COALESCE(icon, ''), COALESCE(page_config::text, '{}'), is_active, created_at, updated_at
		FROM campaigns
		WHERE organization_id=$1 AND slug=$2
	`, organizationID, slug).Scan(&item.ID, &item.OrganizationID, &item.InternalName, &item.ExternalName, &item.Slug, &item.DefaultDesignationID, &item.GoalAmount, &item.Icon, &item.PageConfig, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Campaign{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertCampaign(ctx context.Context, item Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, organization_id, internal_name, external_name, slug, default_designation_id, goal_amount, icon, page_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9::jsonb)
	`, item.ID, item.OrganizationID, item.InternalName, item.ExternalName, item.Slug, item.DefaultDesignationID, item.GoalAmount, item.Icon, orDefault(item.PageConfig, "{}"))
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, item Campaign) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET internal_name=$3, external_name=$4, slug=$5, default_designation_id=$6, goal_amount=$7, icon=NULLIF($8, ''), updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, item.ID, item.OrganizationID, item.InternalName, item.ExternalName, item.Slug, item.DefaultDesignationID, item.GoalAmount, item.Icon)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateCampaignPageConfig(ctx context.Context, organizationID, campaignID, pageConfig string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET page_config=$3::jsonb, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, campaignID, organizationID, orDefault(pageConfig, "{}"))
	if err != nil {
		return fmt.Errorf("update campaign page config: %w", err)
	}
	return requireRow(result)
}

// PublishCampaign persists the final page config, flips is_active, and
// confirms every upload row referenced by the config, all in one transaction.
func (s *PostgresStore) PublishCampaign(ctx context.Context, organizationID, campaignID, pageConfig string, assetURLs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish campaign: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET page_config=$3::jsonb, is_active=TRUE, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, campaignID, organizationID, orDefault(pageConfig, "{}"))
	if err != nil {
		return fmt.Errorf("publish campaign: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	if err := confirmUploads(ctx, tx, organizationID, assetURLs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish campaign: %w", err)
	}
	return nil
}

// --- Designations ---

func (s *PostgresStore) ListDesignations(ctx context.Context, organizationID string, includeArchived bool) ([]Designation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description, ''), goal_amount, is_archived, created_at, updated_at
		FROM designations
		WHERE organization_id=$1
		  AND ($2::boolean OR NOT is_archived)
		ORDER BY name ASC
	`, organizationID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list designations: %w", err)
	}
	defer rows.Close()

	items := make([]Designation, 0)
	for rows.Next() {
		var item Designation
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.GoalAmount, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan designation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate designations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDesignation(ctx context.Context, organizationID, designationID string) (Designation, error) {
	var item Designation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, COALESCE(description, ''), goal_amount, is_archived, created_at, updated_at
		FROM designations
		WHERE id=$1 AND organization_id=$2
	`, designationID, organizationID).Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.GoalAmount, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Designation{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDesignation(ctx context.Context, item Designation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO designations (id, organization_id, name, description, goal_amount)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`, item.ID, item.OrganizationID, item.Name, item.Description, item.GoalAmount)
	if err != nil {
		return fmt.Errorf("insert designation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDesignation(ctx context.Context, item Designation) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE designations
		SET name=$3, description=NULLIF($4, ''), goal_amount=$5, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, item.ID, item.OrganizationID, item.Name, item.Description, item.GoalAmount)
	if err != nil {
		return fmt.Errorf("update designation: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SetDesignationArchived(ctx context.Context, organizationID, designationID string, archived bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE designations
		SET is_archived=$3, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, designationID, organizationID, archived)
	if err != nil {
		return fmt.Errorf("set designation archived: %w", err)
	}
	return requireRow(result)
}

// --- Campaign available designations (membership sync) ---

func (s *PostgresStore) ListCampaignDesignationIDs(ctx context.Context, organizationID, campaignID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cad.designation_id
		FROM campaign_available_designations cad
		JOIN campaigns c ON c.id = cad.campaign_id
		WHERE cad.campaign_id=$1 AND c.organization_id=$2
		ORDER BY cad.designation_id ASC
	`, campaignID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list campaign designations: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign designation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign designations: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListAvailableDesignations(ctx context.Context, organizationID, campaignID string) ([]Designation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.organization_id, d.name, COALESCE(d.description, ''), d.goal_amount, d.is_archived, d.created_at, d.updated_at
		FROM campaign_available_designations cad
		JOIN designations d ON d.id = cad.designation_id
		WHERE cad.campaign_id=$1 AND d.organization_id=$2 AND NOT d.is_archived
		ORDER BY d.name ASC
	`, campaignID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list available designations: %w", err)
	}
	defer rows.Close()

	items := make([]Designation, 0)
	for rows.Next() {
		var item Designation
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.GoalAmount, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan available designation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate available designations: %w", err)
	}
	return items, nil
}

// ReplaceCampaignDesignations applies a computed membership diff. Every added
// designation is re-verified inside the transaction to belong to the
// organization and to not be archived; any failure aborts the whole diff.
func (s *PostgresStore) ReplaceCampaignDesignations(ctx context.Context, organizationID, campaignID string, toAdd, toRemove []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin designation sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, designationID := range toRemove {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM campaign_available_designations
			WHERE campaign_id=$1 AND designation_id=$2
		`, campaignID, designationID); err != nil {
			return fmt.Errorf("remove campaign designation: %w", err)
		}
	}

	for _, designationID := range toAdd {
		var usable bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM designations
				WHERE id=$1 AND organization_id=$2 AND NOT is_archived
			)
		`, designationID, organizationID).Scan(&usable)
		if err != nil {
			return fmt.Errorf("verify designation: %w", err)
		}
		if !usable {
			return ErrDesignationUnavailable
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_available_designations (campaign_id, designation_id)
			VALUES ($1, $2)
			ON CONFLICT (campaign_id, designation_id) DO NOTHING
		`, campaignID, designationID); err != nil {
			return fmt.Errorf("add campaign designation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit designation sync: %w", err)
	}
	return nil
}

// --- Campaign questions (entity sync) ---

func (s *PostgresStore) ListCampaignQuestions(ctx context.Context, organizationID, campaignID string) ([]CampaignQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.campaign_id, q.question_text, q.question_type, COALESCE(q.options::text, '[]'), q.is_required, q.display_order, q.created_at, q.updated_at
		FROM campaign_questions q
		JOIN campaigns c ON c.id = q.campaign_id
		WHERE q.campaign_id=$1 AND c.organization_id=$2
		ORDER BY q.display_order ASC, q.created_at ASC
	`, campaignID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list campaign questions: %w", err)
	}
	defer rows.Close()

	items := make([]CampaignQuestion, 0)
	for rows.Next() {
		var item CampaignQuestion
		if err := rows.Scan(&item.ID, &item.CampaignID, &item.QuestionText, &item.QuestionType, &item.Options, &item.IsRequired, &item.DisplayOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign questions: %w", err)
	}
	return items, nil
}

// SyncCampaignQuestions applies a delete/create/update plan in one
// transaction. An update that matches no row for this campaign means the
// caller referenced a stale or foreign id; the plan rolls back.
func (s *PostgresStore) SyncCampaignQuestions(ctx context.Context, campaignID string, toRemove []string, toAdd, toUpdate []CampaignQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, questionID := range toRemove {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM campaign_questions WHERE id=$1 AND campaign_id=$2
		`, questionID, campaignID); err != nil {
			return fmt.Errorf("remove campaign question: %w", err)
		}
	}

	for _, question := range toAdd {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_questions (id, campaign_id, question_text, question_type, options, is_required, display_order)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		`, question.ID, campaignID, question.QuestionText, question.QuestionType, orDefault(question.Options, "[]"), question.IsRequired, question.DisplayOrder); err != nil {
			return fmt.Errorf("add campaign question: %w", err)
		}
	}

	for _, question := range toUpdate {
		result, err := tx.ExecContext(ctx, `
			UPDATE campaign_questions
			SET question_text=$3, question_type=$4, options=$5::jsonb, is_required=$6, display_order=$7, updated_at=NOW()
			WHERE id=$1 AND campaign_id=$2
		`, question.ID, campaignID, question.QuestionText, question.QuestionType, orDefault(question.Options, "[]"), question.IsRequired, question.DisplayOrder)
		if err != nil {
			return fmt.Errorf("update campaign question: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update campaign question rows: %w", err)
		}
		if affected == 0 {
			return ErrQuestionNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit question sync: %w", err)
	}
	return nil
}

// --- Organization pages ---

func (s *PostgresStore) ListOrganizationPages(ctx context.Context, organizationID string) ([]OrganizationPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, page_type, COALESCE(content_config::text, '{}'), is_published, created_at, updated_at
		FROM organization_pages
		WHERE organization_id=$1
		ORDER BY page_type ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list organization pages: %w", err)
	}
	defer rows.Close()

	items := make([]OrganizationPage, 0)
	for rows.Next() {
		var item OrganizationPage
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.PageType, &item.ContentConfig, &item.IsPublished, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan organization page: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetOrganizationPage(ctx context.Context, organizationID, pageType string) (OrganizationPage, error) {
	var item OrganizationPage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, page_type, COALESCE(content_config::text, '{}'), is_published, created_at, updated_at
		FROM organization_pages
		WHERE organization_id=$1 AND page_type=$2
	`, organizationID, pageType).Scan(&item.ID, &item.OrganizationID, &item.PageType, &item.ContentConfig, &item.IsPublished, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return OrganizationPage{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpsertOrganizationPage(ctx context.Context, page OrganizationPage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_pages (id, organization_id, page_type, content_config)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (organization_id, page_type) DO UPDATE
		SET content_config=EXCLUDED.content_config, updated_at=NOW()
	`, page.ID, page.OrganizationID, page.PageType, orDefault(page.ContentConfig, "{}"))
	if err != nil {
		return fmt.Errorf("upsert organization page: %w", err)
	}
	return nil
}

// PublishOrganizationPage persists the final content config, flips
// is_published, and confirms referenced uploads in one transaction.
func (s *PostgresStore) PublishOrganizationPage(ctx context.Context, organizationID, pageType, contentConfig string, assetURLs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish page: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE organization_pages
		SET content_config=$3::jsonb, is_published=TRUE, updated_at=NOW()
		WHERE organization_id=$1 AND page_type=$2
	`, organizationID, pageType, orDefault(contentConfig, "{}"))
	if err != nil {
		return fmt.Errorf("publish page: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	if err := confirmUploads(ctx, tx, organizationID, assetURLs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish page: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPagePublished(ctx context.Context, organizationID, pageType string, published bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organization_pages
		SET is_published=$3, updated_at=NOW()
		WHERE organization_id=$1 AND page_type=$2
	`, organizationID, pageType, published)
	if err != nil {
		return fmt.Errorf("set page published: %w", err)
	}
	return requireRow(result)
}

// --- Uploads ---

func (s *PostgresStore) InsertUpload(ctx context.Context, upload Upload) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, organization_id, object_key, url, content_type, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, upload.ID, upload.OrganizationID, upload.ObjectKey, upload.URL, upload.ContentType)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, organizationID, uploadID string) (Upload, error) {
	var item Upload
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, object_key, url, content_type, status, created_at
		FROM uploads
		WHERE id=$1 AND organization_id=$2
	`, uploadID, organizationID).Scan(&item.ID, &item.OrganizationID, &item.ObjectKey, &item.URL, &item.ContentType, &item.Status, &item.CreatedAt)
	if err != nil {
		return Upload{}, err
	}
	return item, nil
}

// DeleteUpload removes a pending upload row. A confirmed upload is referenced
// by published content and stays put, surfacing as sql.ErrNoRows.
func (s *PostgresStore) DeleteUpload(ctx context.Context, organizationID, uploadID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM uploads
		WHERE id=$1 AND organization_id=$2 AND status='pending'
	`, uploadID, organizationID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return requireRow(result)
}

func confirmUploads(ctx context.Context, tx *sql.Tx, organizationID string, assetURLs []string) error {
	for _, assetURL := range assetURLs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE uploads
			SET status='confirmed'
			WHERE organization_id=$1 AND url=$2 AND status='pending'
		`, organizationID, assetURL); err != nil {
			return fmt.Errorf("confirm upload: %w", err)
		}
	}
	return nil
}
