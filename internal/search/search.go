package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCampaign    ResultType = "campaign"
	ResultDesignation ResultType = "designation"
	ResultDonation    ResultType = "donation"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type           ResultType `json:"type"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Snippet        string     `json:"snippet"`
	OrganizationID string     `json:"organizationId"`
	CampaignID     string     `json:"campaignId,omitempty"`
}

// Query describes a search request. OrganizationID is mandatory: search is
// always scoped to the caller's organization.
type Query struct {
	Text           string
	OrganizationID string
	FilterType     ResultType // empty = all types
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexCampaign(c CampaignRecord) error
	IndexDesignation(d DesignationRecord) error
	IndexDonation(d DonationRecord) error
	DeleteCampaign(id string) error
	DeleteDesignation(id string) error
}

// CampaignRecord is the data we index for a campaign.
type CampaignRecord struct {
	ID             string `json:"id"`
	InternalName   string `json:"internalName"`
	ExternalName   string `json:"externalName"`
	Slug           string `json:"slug"`
	OrganizationID string `json:"organizationId"`
	IsActive       bool   `json:"isActive"`
}

// DesignationRecord is the data we index for a designation.
type DesignationRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	OrganizationID string `json:"organizationId"`
	IsArchived     bool   `json:"isArchived"`
}

// DonationRecord is the data we index for a donation.
type DonationRecord struct {
	ID             string `json:"id"`
	DonorName      string `json:"donorName"`
	DonorEmail     string `json:"donorEmail"`
	CampaignID     string `json:"campaignId"`
	OrganizationID string `json:"organizationId"`
	Status         string `json:"status"`
}
