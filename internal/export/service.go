package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Service provides donation export functionality
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// ReceiptPDF renders a donation receipt and converts it to PDF.
func (s *Service) ReceiptPDF(receipt Receipt) (*Result, error) {
	html, err := RenderReceiptHTML(receipt)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return exportPDF(html, "receipt-"+receipt.DonationID)
}

// DonationRow is one line of a donations CSV export.
type DonationRow struct {
	ID              string
	CampaignName    string
	DesignationName string
	DonorName       string
	DonorEmail      string
	Amount          int64
	Currency        string
	Status          string
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// DonationsCSV renders donations as CSV, amounts in minor units.
func (s *Service) DonationsCSV(rows []DonationRow) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "campaign", "designation", "donor_name", "donor_email", "amount", "currency", "status", "completed_at", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		completedAt := ""
		if row.CompletedAt != nil {
			completedAt = row.CompletedAt.Format(time.RFC3339)
		}
		record := []string{
			row.ID,
			row.CampaignName,
			row.DesignationName,
			row.DonorName,
			row.DonorEmail,
			strconv.FormatInt(row.Amount, 10),
			row.Currency,
			row.Status,
			completedAt,
			row.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: "donations-" + time.Now().Format("2006-01-02") + ".csv",
		MimeType: "text/csv",
	}, nil
}
