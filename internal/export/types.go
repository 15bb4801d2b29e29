// Package export renders donation receipts as PDF and donation lists as CSV.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Receipt holds the data rendered onto a donation receipt.
type Receipt struct {
	DonationID       string
	OrganizationName string
	CampaignName     string
	DesignationName  string
	DonorName        string
	DonorEmail       string
	Amount           int64
	Currency         string
	CompletedAt      time.Time
	Answers          []ReceiptAnswer
}

// ReceiptAnswer is one custom question answer shown on the receipt.
type ReceiptAnswer struct {
	Question string
	Answer   string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
