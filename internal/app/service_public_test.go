package app

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"donorbase/api/internal/auth"
	"donorbase/api/internal/store"
)

func publicOrgStore() *fakeStore {
	defaultDsg := "dsg_default"
	return &fakeStore{
		getOrgBySubdomainFn: func(_ context.Context, subdomain string) (store.Organization, error) {
			if subdomain != "hopeworks" {
				return store.Organization{}, sql.ErrNoRows
			}
			return store.Organization{
				ID:               "org_1",
				Name:             "Hopeworks",
				Subdomain:        "hopeworks",
				PaymentAccountID: "acct_1",
				IsPubliclyActive: true,
			}, nil
		},
		getCampaignBySlugFn: func(_ context.Context, organizationID, slug string) (store.Campaign, error) {
			if organizationID != "org_1" || slug != "spring-appeal" {
				return store.Campaign{}, sql.ErrNoRows
			}
			return store.Campaign{
				ID:                   "cmp_1",
				OrganizationID:       organizationID,
				InternalName:         "Spring Appeal",
				ExternalName:         "Spring Appeal",
				Slug:                 slug,
				DefaultDesignationID: &defaultDsg,
				IsActive:             true,
			}, nil
		},
		listCampaignDesignationIDsFn: func(context.Context, string, string) ([]string, error) {
			return []string{"dsg_water", "dsg_food"}, nil
		},
		listCampaignQuestionsFn: func(context.Context, string, string) ([]store.CampaignQuestion, error) {
			return []store.CampaignQuestion{
				{ID: "cq_1", QuestionText: "In whose honor?", QuestionType: "text", IsRequired: true},
				{ID: "cq_2", QuestionText: "Newsletter?", QuestionType: "checkbox"},
			}, nil
		},
	}
}

func donationInput() DonationInput {
	return DonationInput{
		CampaignSlug: "spring-appeal",
		Amount:       2500,
		DonorName:    "Pat Donor",
		DonorEmail:   "pat@example.org",
		Answers:      map[string]string{"cq_1": "Grandma Rose"},
	}
}

func TestCreateDonationOpensCheckout(t *testing.T) {
	fs := publicOrgStore()
	var inserted store.Donation
	var insertedAnswers []store.DonationAnswer
	fs.insertDonationFn = func(_ context.Context, donation store.Donation, answers []store.DonationAnswer) error {
		inserted = donation
		insertedAnswers = answers
		return nil
	}
	service, _ := newTestService(fs)

	payload, err := service.CreateDonation(context.Background(), "hopeworks", Session{}, donationInput())
	if err != nil {
		t.Fatalf("create donation failed: %v", err)
	}
	if inserted.Status != "pending" {
		t.Fatalf("expected pending donation, got %q", inserted.Status)
	}
	if inserted.Currency != "usd" {
		t.Fatalf("currency should default to usd, got %q", inserted.Currency)
	}
	if inserted.DesignationID == nil || *inserted.DesignationID != "dsg_default" {
		t.Fatalf("expected campaign default designation, got %v", inserted.DesignationID)
	}
	if inserted.ProviderSessionID != "cs_"+inserted.ID {
		t.Fatalf("provider session id not recorded: %+v", inserted)
	}
	if inserted.DonorAccountID != nil {
		t.Fatal("anonymous donation should not attach a donor account")
	}
	if len(insertedAnswers) != 1 || insertedAnswers[0].QuestionID != "cq_1" || insertedAnswers[0].DonationID != inserted.ID {
		t.Fatalf("unexpected answers %+v", insertedAnswers)
	}
	checkoutURL, _ := payload["checkoutUrl"].(string)
	if !strings.HasPrefix(checkoutURL, "http://pay.test/") {
		t.Fatalf("unexpected checkout url %q", checkoutURL)
	}
}

func TestCreateDonationAttachesDonorFromSameOrg(t *testing.T) {
	fs := publicOrgStore()
	var inserted store.Donation
	fs.insertDonationFn = func(_ context.Context, donation store.Donation, _ []store.DonationAnswer) error {
		inserted = donation
		return nil
	}
	service, _ := newTestService(fs)

	donor := Session{Kind: auth.KindDonor, AccountID: "dnr_1", OrganizationID: "org_1"}
	if _, err := service.CreateDonation(context.Background(), "hopeworks", donor, donationInput()); err != nil {
		t.Fatalf("create donation failed: %v", err)
	}
	if inserted.DonorAccountID == nil || *inserted.DonorAccountID != "dnr_1" {
		t.Fatalf("donor account not attached: %+v", inserted)
	}

	foreign := Session{Kind: auth.KindDonor, AccountID: "dnr_2", OrganizationID: "org_other"}
	if _, err := service.CreateDonation(context.Background(), "hopeworks", foreign, donationInput()); err != nil {
		t.Fatalf("create donation failed: %v", err)
	}
	if inserted.DonorAccountID != nil {
		t.Fatal("cross-organization donor session must not attach")
	}
}

func TestCreateDonationValidation(t *testing.T) {
	service, _ := newTestService(publicOrgStore())
	ctx := context.Background()

	input := donationInput()
	input.Amount = 0
	_, err := service.CreateDonation(ctx, "hopeworks", Session{}, input)
	requireDomainError(t, err, 400, "VALIDATION_ERROR")

	input = donationInput()
	input.Currency = "xyz"
	_, err = service.CreateDonation(ctx, "hopeworks", Session{}, input)
	requireDomainError(t, err, 400, "VALIDATION_ERROR")

	input = donationInput()
	input.DonorEmail = "  "
	_, err = service.CreateDonation(ctx, "hopeworks", Session{}, input)
	requireDomainError(t, err, 400, "VALIDATION_ERROR")

	input = donationInput()
	input.DesignationID = "dsg_foreign"
	_, err = service.CreateDonation(ctx, "hopeworks", Session{}, input)
	requireDomainError(t, err, 400, "VALIDATION_ERROR")

	input = donationInput()
	input.Answers = nil
	_, err = service.CreateDonation(ctx, "hopeworks", Session{}, input)
	domainErr := requireDomainError(t, err, 400, "VALIDATION_ERROR")
	if !strings.Contains(domainErr.Message, "In whose honor?") {
		t.Fatalf("missing-answer message should name the question: %q", domainErr.Message)
	}
}

func TestCreateDonationAcceptsListedDesignation(t *testing.T) {
	fs := publicOrgStore()
	var inserted store.Donation
	fs.insertDonationFn = func(_ context.Context, donation store.Donation, _ []store.DonationAnswer) error {
		inserted = donation
		return nil
	}
	service, _ := newTestService(fs)

	input := donationInput()
	input.DesignationID = "dsg_water"
	if _, err := service.CreateDonation(context.Background(), "hopeworks", Session{}, input); err != nil {
		t.Fatalf("create donation failed: %v", err)
	}
	if inserted.DesignationID == nil || *inserted.DesignationID != "dsg_water" {
		t.Fatalf("chosen designation lost: %+v", inserted)
	}
}

func TestCreateDonationInactiveCampaign(t *testing.T) {
	fs := publicOrgStore()
	base := fs.getCampaignBySlugFn
	fs.getCampaignBySlugFn = func(ctx context.Context, organizationID, slug string) (store.Campaign, error) {
		campaign, err := base(ctx, organizationID, slug)
		campaign.IsActive = false
		return campaign, err
	}
	service, _ := newTestService(fs)

	_, err := service.CreateDonation(context.Background(), "hopeworks", Session{}, donationInput())
	requireDomainError(t, err, 404, "NOT_FOUND")
}

func TestPublicOrganizationHiddenUntilActive(t *testing.T) {
	fs := publicOrgStore()
	fs.getOrgBySubdomainFn = func(_ context.Context, subdomain string) (store.Organization, error) {
		return store.Organization{ID: "org_1", Subdomain: subdomain, IsPubliclyActive: false}, nil
	}
	service, _ := newTestService(fs)

	_, err := service.PublicOrganization(context.Background(), "hopeworks")
	requireDomainError(t, err, 404, "NOT_FOUND")
}

func TestHandlePaymentWebhook(t *testing.T) {
	completions := 0
	fs := publicOrgStore()
	fs.completeDonationBySessionFn = func(_ context.Context, providerSessionID string) (store.Donation, error) {
		if providerSessionID != "cs_don_1" {
			return store.Donation{}, sql.ErrNoRows
		}
		completions++
		now := time.Now()
		return store.Donation{ID: "don_1", OrganizationID: "org_1", Status: "completed", CompletedAt: &now}, nil
	}
	service, _ := newTestService(fs)
	ctx := context.Background()

	payload := []byte(`{"type":"checkout.completed","providerSessionId":"cs_don_1"}`)
	err := service.HandlePaymentWebhook(ctx, payload, "bad-signature")
	requireDomainError(t, err, 401, "INVALID_SIGNATURE")
	if completions != 0 {
		t.Fatal("unverified webhook must not complete donations")
	}

	if err := service.HandlePaymentWebhook(ctx, payload, "test-signature"); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if completions != 1 {
		t.Fatalf("expected one completion, got %d", completions)
	}

	// Replays find no pending row and are acknowledged.
	replay := []byte(`{"type":"checkout.completed","providerSessionId":"cs_replayed"}`)
	if err := service.HandlePaymentWebhook(ctx, replay, "test-signature"); err != nil {
		t.Fatalf("replay should be acknowledged, got %v", err)
	}

	other := []byte(`{"type":"checkout.expired","providerSessionId":"cs_don_1"}`)
	if err := service.HandlePaymentWebhook(ctx, other, "test-signature"); err != nil {
		t.Fatalf("unhandled event types should be acknowledged, got %v", err)
	}
	if completions != 1 {
		t.Fatalf("expected completions unchanged, got %d", completions)
	}
}

func TestBuildReceiptRequiresCompletion(t *testing.T) {
	service, _ := newTestService(publicOrgStore())

	_, err := service.buildReceipt(context.Background(), store.Donation{ID: "don_1", Status: "pending"})
	requireDomainError(t, err, 400, "VALIDATION_ERROR")
}

func TestExportDonationsCSV(t *testing.T) {
	now := time.Now()
	designationID := "dsg_water"
	fs := publicOrgStore()
	fs.listDonationsFn = func(_ context.Context, organizationID string, _ store.DonationFilter) ([]store.Donation, error) {
		return []store.Donation{
			{ID: "don_1", OrganizationID: organizationID, CampaignID: "cmp_1", DesignationID: &designationID,
				Amount: 2500, Currency: "usd", Status: "completed", DonorName: "Pat Donor",
				DonorEmail: "pat@example.org", CreatedAt: now, CompletedAt: &now},
		}, nil
	}
	fs.getCampaignFn = func(_ context.Context, organizationID, campaignID string) (store.Campaign, error) {
		return store.Campaign{ID: campaignID, OrganizationID: organizationID, InternalName: "Spring Appeal", ExternalName: "Spring Appeal"}, nil
	}
	fs.getDesignationFn = func(_ context.Context, organizationID, id string) (store.Designation, error) {
		return store.Designation{ID: id, OrganizationID: organizationID, Name: "Clean Water"}, nil
	}
	service, _ := newTestService(fs)

	result, err := service.ExportDonationsCSV(context.Background(), staffSession("org_1", "admin"), store.DonationFilter{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if result.MimeType != "text/csv" {
		t.Fatalf("unexpected mime type %q", result.MimeType)
	}
	body := string(result.Data)
	for _, want := range []string{"don_1", "Spring Appeal", "Clean Water", "2500", "completed"} {
		if !strings.Contains(body, want) {
			t.Fatalf("csv missing %q:\n%s", want, body)
		}
	}
}
