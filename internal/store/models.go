package store

import "time"

type Organization struct {
	ID               string
	Name             string
	Subdomain        string
	PaymentAccountID string
	IsPubliclyActive bool
	Settings         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StaffAccount is a global identity; org membership lives in StaffRole.
type StaffAccount struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StaffRole grants a staff account a role inside one organization.
type StaffRole struct {
	ID             string
	StaffAccountID string
	OrganizationID string
	Role           string
	CreatedAt      time.Time
	// Joined from staff_accounts for listings
	Email       string
	DisplayName string
}

type DonorAccount struct {
	ID             string
	OrganizationID string
	Email          string
	DisplayName    string
	PasswordHash   string
	CreatedAt      time.Time
}

type Campaign struct {
	ID                   string
	OrganizationID       string
	InternalName         string
	ExternalName         string
	Slug                 string
	DefaultDesignationID *string
	GoalAmount           int64
	Icon                 string
	PageConfig           string
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Designation struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	GoalAmount     int64
	IsArchived     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CampaignQuestion struct {
	ID           string
	CampaignID   string
	QuestionText string
	QuestionType string
	Options      string
	IsRequired   bool
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Donation struct {
	ID                string
	OrganizationID    string
	CampaignID        string
	DesignationID     *string
	DonorAccountID    *string
	Amount            int64
	Currency          string
	Status            string
	DonorName         string
	DonorEmail        string
	ProviderSessionID string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

type DonationAnswer struct {
	ID           string
	DonationID   string
	QuestionID   string
	QuestionText string
	Answer       string
}

type OrganizationPage struct {
	ID             string
	OrganizationID string
	PageType       string
	ContentConfig  string
	IsPublished    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Upload tracks an issued signed-upload URL. Rows stay pending until a publish
// references the asset, which flips them to confirmed.
type Upload struct {
	ID             string
	OrganizationID string
	ObjectKey      string
	URL            string
	ContentType    string
	Status         string
	CreatedAt      time.Time
}

// RevisionInfo describes one page-config commit in a campaign's history.
type RevisionInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
