package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"donorbase/api/internal/email"
	"donorbase/api/internal/export"
	"donorbase/api/internal/payment"
	"donorbase/api/internal/search"
	"donorbase/api/internal/store"
	"donorbase/api/internal/util"
)

var allowedCurrencies = map[string]struct{}{
	"usd": {},
	"eur": {},
	"gbp": {},
}

// publicOrganization resolves a subdomain to an organization that is publicly
// active. Inactive and unknown subdomains both come back as 404.
func (s *Service) publicOrganization(ctx context.Context, subdomain string) (store.Organization, error) {
	org, err := s.store.GetOrganizationBySubdomain(ctx, strings.ToLower(strings.TrimSpace(subdomain)))
	if err != nil {
		return store.Organization{}, err
	}
	if !org.IsPubliclyActive {
		return store.Organization{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return org, nil
}

func (s *Service) PublicOrganization(ctx context.Context, subdomain string) (map[string]any, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	pages, err := s.store.ListOrganizationPages(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	publishedPages := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		if page.IsPublished {
			publishedPages = append(publishedPages, pagePayload(page))
		}
	}
	return map[string]any{
		"id":        org.ID,
		"name":      org.Name,
		"subdomain": org.Subdomain,
		"pages":     publishedPages,
	}, nil
}

func (s *Service) PublicCampaigns(ctx context.Context, subdomain string) ([]map[string]any, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.store.ListActiveCampaigns(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(campaigns))
	for _, campaign := range campaigns {
		items = append(items, publicCampaignPayload(campaign))
	}
	return items, nil
}

func (s *Service) PublicCampaign(ctx context.Context, subdomain, slug string) (map[string]any, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaignBySlug(ctx, org.ID, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	designations, err := s.store.ListAvailableDesignations(ctx, org.ID, campaign.ID)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListCampaignQuestions(ctx, org.ID, campaign.ID)
	if err != nil {
		return nil, err
	}

	designationItems := make([]map[string]any, 0, len(designations))
	for _, designation := range designations {
		designationItems = append(designationItems, designationPayload(designation))
	}
	questionItems := make([]map[string]any, 0, len(questions))
	for _, question := range questions {
		questionItems = append(questionItems, questionPayload(question))
	}

	payload := publicCampaignPayload(campaign)
	payload["designations"] = designationItems
	payload["questions"] = questionItems
	return payload, nil
}

func (s *Service) PublicSearch(ctx context.Context, subdomain string, query search.Query) (search.Response, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}, nil
	}
	query.OrganizationID = org.ID
	// Donations never surface on the public side.
	if query.FilterType == "" || query.FilterType == search.ResultDonation {
		query.FilterType = search.ResultCampaign
	}
	return s.search.Search(query), nil
}

// Donation intake

type DonationInput struct {
	CampaignSlug  string            `json:"campaignSlug"`
	DesignationID string            `json:"designationId"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	DonorName     string            `json:"donorName"`
	DonorEmail    string            `json:"donorEmail"`
	Answers       map[string]string `json:"answers"`
}

// CreateDonation records a pending donation and opens a provider checkout
// session the donor is redirected to. The donation completes later via the
// payment webhook.
func (s *Service) CreateDonation(ctx context.Context, subdomain string, donor Session, input DonationInput) (map[string]any, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaignBySlug(ctx, org.ID, strings.ToLower(strings.TrimSpace(input.CampaignSlug)))
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	if input.Amount <= 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "amount must be a positive number of minor units", nil)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}
	if _, ok := allowedCurrencies[currency]; !ok {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "unsupported currency", nil)
	}
	donorName := strings.TrimSpace(input.DonorName)
	donorEmail := strings.TrimSpace(input.DonorEmail)
	if donorName == "" || donorEmail == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "donorName and donorEmail are required", nil)
	}

	designationID, err := s.resolveDonationDesignation(ctx, org.ID, campaign, input.DesignationID)
	if err != nil {
		return nil, err
	}
	answers, err := s.buildDonationAnswers(ctx, org.ID, campaign.ID, input.Answers)
	if err != nil {
		return nil, err
	}

	donation := store.Donation{
		ID:             util.NewID("don"),
		OrganizationID: org.ID,
		CampaignID:     campaign.ID,
		DesignationID:  designationID,
		Amount:         input.Amount,
		Currency:       currency,
		Status:         "pending",
		DonorName:      donorName,
		DonorEmail:     donorEmail,
	}
	if donor.Kind != "" && donor.OrganizationID == org.ID {
		donorAccountID := donor.AccountID
		donation.DonorAccountID = &donorAccountID
	}

	checkout, err := s.payment.CreateCheckoutSession(ctx, payment.CheckoutParams{
		OrganizationID:   org.ID,
		PaymentAccountID: org.PaymentAccountID,
		DonationID:       donation.ID,
		Amount:           donation.Amount,
		Currency:         donation.Currency,
		Description:      campaign.ExternalName,
		SuccessURL:       s.cfg.PublicBaseURL + "/" + org.Subdomain + "/thanks",
		CancelURL:        s.cfg.PublicBaseURL + "/" + org.Subdomain + "/" + campaign.Slug,
	})
	if err != nil {
		return nil, err
	}
	donation.ProviderSessionID = checkout.ID

	for i := range answers {
		answers[i].DonationID = donation.ID
	}
	if err := s.store.InsertDonation(ctx, donation, answers); err != nil {
		return nil, err
	}

	return map[string]any{
		"donationId":  donation.ID,
		"checkoutUrl": checkout.RedirectURL,
	}, nil
}

// resolveDonationDesignation validates the donor's designation choice against
// the campaign's available set, falling back to the campaign default.
func (s *Service) resolveDonationDesignation(ctx context.Context, organizationID string, campaign store.Campaign, designationID string) (*string, error) {
	designationID = strings.TrimSpace(designationID)
	if designationID == "" {
		return campaign.DefaultDesignationID, nil
	}
	availableIDs, err := s.store.ListCampaignDesignationIDs(ctx, organizationID, campaign.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range availableIDs {
		if id == designationID {
			return &designationID, nil
		}
	}
	if campaign.DefaultDesignationID != nil && *campaign.DefaultDesignationID == designationID {
		return &designationID, nil
	}
	return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "designation is not available for this campaign", nil)
}

func (s *Service) buildDonationAnswers(ctx context.Context, organizationID, campaignID string, answers map[string]string) ([]store.DonationAnswer, error) {
	questions, err := s.store.ListCampaignQuestions(ctx, organizationID, campaignID)
	if err != nil {
		return nil, err
	}
	rows := make([]store.DonationAnswer, 0, len(answers))
	for _, question := range questions {
		answer, present := answers[question.ID]
		answer = strings.TrimSpace(answer)
		if question.IsRequired && answer == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				"Answer required for question: "+question.QuestionText, nil)
		}
		if !present || answer == "" {
			continue
		}
		rows = append(rows, store.DonationAnswer{
			ID:         util.NewID("ans"),
			QuestionID: question.ID,
			Answer:     answer,
		})
	}
	return rows, nil
}

// HandlePaymentWebhook verifies the provider signature and completes the
// pending donation. Replayed events find no pending row and are acknowledged
// without effect.
func (s *Service) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := s.payment.VerifyWebhook(payload, signature); err != nil {
		return domainError(http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed", nil)
	}

	var event struct {
		Type              string `json:"type"`
		ProviderSessionID string `json:"providerSessionId"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	if event.Type != "checkout.completed" {
		return nil
	}
	if event.ProviderSessionID == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "providerSessionId is required", nil)
	}

	donation, err := s.store.CompleteDonationByProviderSession(ctx, event.ProviderSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	if s.search != nil {
		s.search.IndexDonation(search.DonationRecord{
			ID:             donation.ID,
			DonorName:      donation.DonorName,
			DonorEmail:     donation.DonorEmail,
			CampaignID:     donation.CampaignID,
			OrganizationID: donation.OrganizationID,
			Status:         donation.Status,
		})
	}
	if s.SMTPConfigured() {
		go s.sendReceiptEmail(context.WithoutCancel(ctx), donation)
	}
	return nil
}

func (s *Service) sendReceiptEmail(ctx context.Context, donation store.Donation) {
	receipt, err := s.buildReceipt(ctx, donation)
	if err != nil {
		log.Printf("receipt email for donation %s: %v", donation.ID, err)
		return
	}
	date := ""
	if donation.CompletedAt != nil {
		date = donation.CompletedAt.Format("January 2, 2006")
	}
	if err := s.email.SendDonationReceiptEmail(donation.DonorEmail, emailReceiptData(receipt, date)); err != nil {
		log.Printf("receipt email for donation %s: %v", donation.ID, err)
	}
}

func emailReceiptData(receipt export.Receipt, date string) email.ReceiptData {
	return email.ReceiptData{
		OrganizationName: receipt.OrganizationName,
		DonorName:        receipt.DonorName,
		CampaignName:     receipt.CampaignName,
		DesignationName:  receipt.DesignationName,
		Amount:           export.FormatAmount(receipt.Amount, receipt.Currency),
		DonationID:       receipt.DonationID,
		Date:             date,
	}
}

// Donor self-service

func (s *Service) DonorProfile(ctx context.Context, sess Session) (map[string]any, error) {
	donor, err := s.store.GetDonorByID(ctx, sess.OrganizationID, sess.AccountID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          donor.ID,
		"email":       donor.Email,
		"displayName": donor.DisplayName,
		"createdAt":   donor.CreatedAt,
	}, nil
}

func (s *Service) DonorDonations(ctx context.Context, sess Session) ([]map[string]any, error) {
	donations, err := s.store.ListDonorDonations(ctx, sess.OrganizationID, sess.AccountID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(donations))
	for _, donation := range donations {
		items = append(items, donationPayload(donation))
	}
	return items, nil
}

// CRM donation views

func (s *Service) ListDonations(ctx context.Context, sess Session, filter store.DonationFilter) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	donations, err := s.store.ListDonations(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(donations))
	for _, donation := range donations {
		items = append(items, donationPayload(donation))
	}
	return items, nil
}

func (s *Service) GetDonation(ctx context.Context, sess Session, donationID string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	donation, answers, err := s.store.GetDonation(ctx, orgID, donationID)
	if err != nil {
		return nil, err
	}
	answerItems := make([]map[string]any, 0, len(answers))
	for _, answer := range answers {
		answerItems = append(answerItems, map[string]any{
			"questionId":   answer.QuestionID,
			"questionText": answer.QuestionText,
			"answer":       answer.Answer,
		})
	}
	payload := donationPayload(donation)
	payload["answers"] = answerItems
	return payload, nil
}

func (s *Service) ExportDonationsCSV(ctx context.Context, sess Session, filter store.DonationFilter) (*export.Result, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	donations, err := s.store.ListDonations(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}

	campaignNames := make(map[string]string)
	designationNames := make(map[string]string)
	rows := make([]export.DonationRow, 0, len(donations))
	for _, donation := range donations {
		row := export.DonationRow{
			ID:          donation.ID,
			DonorName:   donation.DonorName,
			DonorEmail:  donation.DonorEmail,
			Amount:      donation.Amount,
			Currency:    donation.Currency,
			Status:      donation.Status,
			CompletedAt: donation.CompletedAt,
			CreatedAt:   donation.CreatedAt,
		}
		row.CampaignName, err = s.lookupCampaignName(ctx, orgID, donation.CampaignID, campaignNames)
		if err != nil {
			return nil, err
		}
		if donation.DesignationID != nil {
			row.DesignationName, err = s.lookupDesignationName(ctx, orgID, *donation.DesignationID, designationNames)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	return s.export.DonationsCSV(rows)
}

func (s *Service) DonationReceiptPDF(ctx context.Context, sess Session, donationID string) (*export.Result, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	donation, _, err := s.store.GetDonation(ctx, orgID, donationID)
	if err != nil {
		return nil, err
	}
	receipt, err := s.buildReceipt(ctx, donation)
	if err != nil {
		return nil, err
	}
	return s.export.ReceiptPDF(receipt)
}

func (s *Service) buildReceipt(ctx context.Context, donation store.Donation) (export.Receipt, error) {
	if donation.Status != "completed" || donation.CompletedAt == nil {
		return export.Receipt{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "receipt is only available for completed donations", nil)
	}
	org, err := s.store.GetOrganization(ctx, donation.OrganizationID)
	if err != nil {
		return export.Receipt{}, err
	}
	campaign, err := s.store.GetCampaign(ctx, donation.OrganizationID, donation.CampaignID)
	if err != nil {
		return export.Receipt{}, err
	}
	designationName := ""
	if donation.DesignationID != nil {
		designation, err := s.store.GetDesignation(ctx, donation.OrganizationID, *donation.DesignationID)
		if err == nil {
			designationName = designation.Name
		}
	}
	_, answers, err := s.store.GetDonation(ctx, donation.OrganizationID, donation.ID)
	if err != nil {
		return export.Receipt{}, err
	}
	receiptAnswers := make([]export.ReceiptAnswer, 0, len(answers))
	for _, answer := range answers {
		receiptAnswers = append(receiptAnswers, export.ReceiptAnswer{
			Question: answer.QuestionText,
			Answer:   answer.Answer,
		})
	}

	return export.Receipt{
		DonationID:       donation.ID,
		OrganizationName: org.Name,
		CampaignName:     campaign.ExternalName,
		DesignationName:  designationName,
		DonorName:        donation.DonorName,
		DonorEmail:       donation.DonorEmail,
		Amount:           donation.Amount,
		Currency:         donation.Currency,
		CompletedAt:      *donation.CompletedAt,
		Answers:          receiptAnswers,
	}, nil
}

func (s *Service) lookupCampaignName(ctx context.Context, organizationID, campaignID string, cache map[string]string) (string, error) {
	if name, ok := cache[campaignID]; ok {
		return name, nil
	}
	campaign, err := s.store.GetCampaign(ctx, organizationID, campaignID)
	if err != nil {
		return "", err
	}
	cache[campaignID] = campaign.InternalName
	return campaign.InternalName, nil
}

func (s *Service) lookupDesignationName(ctx context.Context, organizationID, designationID string, cache map[string]string) (string, error) {
	if name, ok := cache[designationID]; ok {
		return name, nil
	}
	designation, err := s.store.GetDesignation(ctx, organizationID, designationID)
	if err != nil {
		return "", err
	}
	cache[designationID] = designation.Name
	return designation.Name, nil
}

func publicCampaignPayload(campaign store.Campaign) map[string]any {
	var defaultDesignationID any
	if campaign.DefaultDesignationID != nil {
		defaultDesignationID = *campaign.DefaultDesignationID
	}
	return map[string]any{
		"id":                   campaign.ID,
		"name":                 campaign.ExternalName,
		"slug":                 campaign.Slug,
		"defaultDesignationId": defaultDesignationID,
		"goalAmount":           campaign.GoalAmount,
		"icon":                 campaign.Icon,
		"pageConfig":           rawJSON(campaign.PageConfig),
	}
}

func donationPayload(donation store.Donation) map[string]any {
	var designationID, completedAt any
	if donation.DesignationID != nil {
		designationID = *donation.DesignationID
	}
	if donation.CompletedAt != nil {
		completedAt = *donation.CompletedAt
	}
	return map[string]any{
		"id":            donation.ID,
		"campaignId":    donation.CampaignID,
		"designationId": designationID,
		"amount":        donation.Amount,
		"currency":      donation.Currency,
		"status":        donation.Status,
		"donorName":     donation.DonorName,
		"donorEmail":    donation.DonorEmail,
		"createdAt":     donation.CreatedAt,
		"completedAt":   completedAt,
	}
}
