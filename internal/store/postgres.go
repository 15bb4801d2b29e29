package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Organizations ---

// CreateOrganization inserts the organization and grants the creating staff
// account the admin role, atomically.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization, ownerStaffAccountID, roleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create organization: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, subdomain, payment_account_id, settings_json)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb)
	`, org.ID, org.Name, org.Subdomain, org.PaymentAccountID, orDefault(org.Settings, "{}")); err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO staff_roles (id, staff_account_id, organization_id, role)
		VALUES ($1, $2, $3, 'admin')
	`, roleID, ownerStaffAccountID, org.ID); err != nil {
		return fmt.Errorf("insert owner role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, organizationID string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, subdomain, COALESCE(payment_account_id, ''), is_publicly_active, COALESCE(settings_json::text, '{}'), created_at, updated_at
		FROM organizations
		WHERE id=$1
	`, organizationID).Scan(&item.ID, &item.Name, &item.Subdomain, &item.PaymentAccountID, &item.IsPubliclyActive, &item.Settings, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetOrganizationBySubdomain(ctx context.Context, subdomain string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, subdomain, COALESCE(payment_account_id, ''), is_publicly_active, COALESCE(settings_json::text, '{}'), created_at, updated_at
		FROM organizations
		WHERE subdomain=$1
	`, subdomain).Scan(&item.ID, &item.Name, &item.Subdomain, &item.PaymentAccountID, &item.IsPubliclyActive, &item.Settings, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, organizationID, name, settings string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET name=$2, settings_json=$3::jsonb, updated_at=NOW()
		WHERE id=$1
	`, organizationID, name, orDefault(settings, "{}"))
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteOrganization(ctx context.Context, organizationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id=$1`, organizationID)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SetPaymentAccount(ctx context.Context, organizationID, paymentAccountID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET payment_account_id=NULLIF($2, ''), updated_at=NOW()
		WHERE id=$1
	`, organizationID, paymentAccountID)
	if err != nil {
		return fmt.Errorf("set payment account: %w", err)
	}
	return requireRow(result)
}

// SetPublicStatus flips is_publicly_active and reports whether a row actually
// changed. The conditional WHERE keeps recomputation idempotent: no redundant
// write when the stored value already matches.
func (s *PostgresStore) SetPublicStatus(ctx context.Context, organizationID string, active bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET is_publicly_active=$2, updated_at=NOW()
		WHERE id=$1 AND is_publicly_active <> $2
	`, organizationID, active)
	if err != nil {
		return false, fmt.Errorf("set public status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set public status rows: %w", err)
	}
	return affected > 0, nil
}

// --- Staff accounts (global identities) ---

func (s *PostgresStore) GetStaffByEmail(ctx context.Context, email string) (StaffAccount, error) {
	var item StaffAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM staff_accounts
		WHERE email=$1
	`, email).Scan(&item.ID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.IsEmailVerified, &item.VerificationToken, &item.VerificationExpiresAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return StaffAccount{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetStaffByID(ctx context.Context, staffAccountID string) (StaffAccount, error) {
	var item StaffAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM staff_accounts
		WHERE id=$1
	`, staffAccountID).Scan(&item.ID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.IsEmailVerified, &item.VerificationToken, &item.VerificationExpiresAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return StaffAccount{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateStaffAccount(ctx context.Context, account StaffAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (id, email, display_name, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, account.ID, account.Email, account.DisplayName, account.PasswordHash, account.IsEmailVerified, account.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert staff account: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStaffVerificationToken(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, staffAccountID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyStaffEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify staff email: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateStaffPassword(ctx context.Context, staffAccountID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, staffAccountID, passwordHash)
	if err != nil {
		return fmt.Errorf("update staff password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, staff_account_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, staffAccountID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var staffAccountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT staff_account_id
		FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&staffAccountID)
	if err != nil {
		return "", err
	}
	return staffAccountID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// --- Staff roles (per-organization membership) ---

func (s *PostgresStore) ListStaffRoles(ctx context.Context, organizationID string) ([]StaffRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.id, sr.staff_account_id, sr.organization_id, sr.role, sr.created_at, sa.email, sa.display_name
		FROM staff_roles sr
		JOIN staff_accounts sa ON sa.id = sr.staff_account_id
		WHERE sr.organization_id=$1
		ORDER BY sa.display_name ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list staff roles: %w", err)
	}
	defer rows.Close()

	items := make([]StaffRole, 0)
	for rows.Next() {
		var item StaffRole
		if err := rows.Scan(&item.ID, &item.StaffAccountID, &item.OrganizationID, &item.Role, &item.CreatedAt, &item.Email, &item.DisplayName); err != nil {
			return nil, fmt.Errorf("scan staff role: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff roles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetStaffRole(ctx context.Context, organizationID, staffAccountID string) (StaffRole, error) {
	var item StaffRole
	err := s.db.QueryRowContext(ctx, `
		SELECT sr.id, sr.staff_account_id, sr.organization_id, sr.role, sr.created_at, sa.email, sa.display_name
		FROM staff_roles sr
		JOIN staff_accounts sa ON sa.id = sr.staff_account_id
		WHERE sr.organization_id=$1 AND sr.staff_account_id=$2
	`, organizationID, staffAccountID).Scan(&item.ID, &item.StaffAccountID, &item.OrganizationID, &item.Role, &item.CreatedAt, &item.Email, &item.DisplayName)
	if err != nil {
		return StaffRole{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListStaffRolesForAccount(ctx context.Context, staffAccountID string) ([]StaffRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_account_id, organization_id, role, created_at
		FROM staff_roles
		WHERE staff_account_id=$1
		ORDER BY created_at ASC
	`, staffAccountID)
	if err != nil {
		return nil, fmt.Errorf("list account roles: %w", err)
	}
	defer rows.Close()

	items := make([]StaffRole, 0)
	for rows.Next() {
		var item StaffRole
		if err := rows.Scan(&item.ID, &item.StaffAccountID, &item.OrganizationID, &item.Role, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account role: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account roles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateStaffRole(ctx context.Context, role StaffRole) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_roles (id, staff_account_id, organization_id, role)
		VALUES ($1, $2, $3, $4)
	`, role.ID, role.StaffAccountID, role.OrganizationID, role.Role)
	if err != nil {
		return fmt.Errorf("insert staff role: %w", err)
	}
	return nil
}

// UpdateStaffRole changes a member's role. Demoting the only admin is refused
// inside the same transaction that reads the admin count.
func (s *PostgresStore) UpdateStaffRole(ctx context.Context, organizationID, staffAccountID, role string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update staff role: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM staff_roles WHERE organization_id=$1 AND staff_account_id=$2
	`, organizationID, staffAccountID).Scan(&current)
	if err != nil {
		return err
	}

	if current == "admin" && role != "admin" {
		count, err := adminCount(ctx, tx, organizationID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE staff_roles SET role=$3 WHERE organization_id=$1 AND staff_account_id=$2
	`, organizationID, staffAccountID, role); err != nil {
		return fmt.Errorf("update staff role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update staff role: %w", err)
	}
	return nil
}

// DeleteStaffRole removes a member from the organization, refusing to remove
// the last admin.
func (s *PostgresStore) DeleteStaffRole(ctx context.Context, organizationID, staffAccountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete staff role: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM staff_roles WHERE organization_id=$1 AND staff_account_id=$2
	`, organizationID, staffAccountID).Scan(&current)
	if err != nil {
		return err
	}

	if current == "admin" {
		count, err := adminCount(ctx, tx, organizationID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastAdmin
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM staff_roles WHERE organization_id=$1 AND staff_account_id=$2
	`, organizationID, staffAccountID); err != nil {
		return fmt.Errorf("delete staff role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete staff role: %w", err)
	}
	return nil
}

func adminCount(ctx context.Context, tx *sql.Tx, organizationID string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staff_roles WHERE organization_id=$1 AND role='admin'
	`, organizationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// --- Donor accounts (scoped to one organization) ---

func (s *PostgresStore) GetDonorByEmail(ctx context.Context, organizationID, email string) (DonorAccount, error) {
	var item DonorAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, display_name, password_hash, created_at
		FROM donor_accounts
		WHERE organization_id=$1 AND email=$2
	`, organizationID, email).Scan(&item.ID, &item.OrganizationID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.CreatedAt)
	if err != nil {
		return DonorAccount{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetDonorByID(ctx context.Context, organizationID, donorAccountID string) (DonorAccount, error) {
	var item DonorAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, display_name, password_hash, created_at
		FROM donor_accounts
		WHERE organization_id=$1 AND id=$2
	`, organizationID, donorAccountID).Scan(&item.ID, &item.OrganizationID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.CreatedAt)
	if err != nil {
		return DonorAccount{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateDonorAccount(ctx context.Context, donor DonorAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donor_accounts (id, organization_id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, donor.ID, donor.OrganizationID, donor.Email, donor.DisplayName, donor.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert donor account: %w", err)
	}
	return nil
}

// --- helpers ---

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
