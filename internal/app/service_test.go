package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"donorbase/api/internal/authpw"
	"donorbase/api/internal/config"
	"donorbase/api/internal/export"
	"donorbase/api/internal/payment"
	"donorbase/api/internal/session"
	"donorbase/api/internal/store"
)

type fakeStore struct {
	pingFn func(context.Context) error

	createOrganizationFn func(context.Context, store.Organization, string, string) error
	getOrganizationFn    func(context.Context, string) (store.Organization, error)
	getOrgBySubdomainFn  func(context.Context, string) (store.Organization, error)
	updateOrganizationFn func(context.Context, string, string, string) error
	deleteOrganizationFn func(context.Context, string) error
	setPaymentAccountFn  func(context.Context, string, string) error
	setPublicStatusFn    func(context.Context, string, bool) (bool, error)

	getStaffByEmailFn          func(context.Context, string) (store.StaffAccount, error)
	getStaffByIDFn             func(context.Context, string) (store.StaffAccount, error)
	listStaffRolesFn           func(context.Context, string) ([]store.StaffRole, error)
	getStaffRoleFn             func(context.Context, string, string) (store.StaffRole, error)
	listStaffRolesForAccountFn func(context.Context, string) ([]store.StaffRole, error)
	createStaffRoleFn          func(context.Context, store.StaffRole) error
	updateStaffRoleFn          func(context.Context, string, string, string) error
	deleteStaffRoleFn          func(context.Context, string, string) error

	getDonorByIDFn func(context.Context, string, string) (store.DonorAccount, error)

	listCampaignsFn            func(context.Context, string) ([]store.Campaign, error)
	listActiveCampaignsFn      func(context.Context, string) ([]store.Campaign, error)
	getCampaignFn              func(context.Context, string, string) (store.Campaign, error)
	getCampaignBySlugFn        func(context.Context, string, string) (store.Campaign, error)
	insertCampaignFn           func(context.Context, store.Campaign) error
	updateCampaignFn           func(context.Context, store.Campaign) error
	updateCampaignPageConfigFn func(context.Context, string, string, string) error
	publishCampaignFn          func(context.Context, string, string, string, []string) error

	listDesignationsFn       func(context.Context, string, bool) ([]store.Designation, error)
	getDesignationFn         func(context.Context, string, string) (store.Designation, error)
	insertDesignationFn      func(context.Context, store.Designation) error
	updateDesignationFn      func(context.Context, store.Designation) error
	setDesignationArchivedFn func(context.Context, string, string, bool) error

	listCampaignDesignationIDsFn  func(context.Context, string, string) ([]string, error)
	listAvailableDesignationsFn   func(context.Context, string, string) ([]store.Designation, error)
	replaceCampaignDesignationsFn func(context.Context, string, string, []string, []string) error

	listCampaignQuestionsFn func(context.Context, string, string) ([]store.CampaignQuestion, error)
	syncCampaignQuestionsFn func(context.Context, string, []string, []store.CampaignQuestion, []store.CampaignQuestion) error

	listOrganizationPagesFn   func(context.Context, string) ([]store.OrganizationPage, error)
	getOrganizationPageFn     func(context.Context, string, string) (store.OrganizationPage, error)
	upsertOrganizationPageFn  func(context.Context, store.OrganizationPage) error
	publishOrganizationPageFn func(context.Context, string, string, string, []string) error
	setPagePublishedFn        func(context.Context, string, string, bool) error

	insertUploadFn func(context.Context, store.Upload) error
	getUploadFn    func(context.Context, string, string) (store.Upload, error)
	deleteUploadFn func(context.Context, string, string) error

	insertDonationFn              func(context.Context, store.Donation, []store.DonationAnswer) error
	getDonationFn                 func(context.Context, string, string) (store.Donation, []store.DonationAnswer, error)
	listDonationsFn               func(context.Context, string, store.DonationFilter) ([]store.Donation, error)
	listDonorDonationsFn          func(context.Context, string, string) ([]store.Donation, error)
	completeDonationBySessionFn   func(context.Context, string) (store.Donation, error)
	campaignDonationTotalsFn      func(context.Context, string, string) (store.DonationTotals, error)
	createStaffAccountFn          func(context.Context, store.StaffAccount) error
	updateStaffVerificationFn     func(context.Context, string, string, time.Time) error
	verifyStaffEmailFn            func(context.Context, string) error
	updateStaffPasswordFn         func(context.Context, string, string) error
	createPasswordResetFn         func(context.Context, string, string, time.Time) error
	getPasswordResetFn            func(context.Context, string) (string, error)
	markPasswordResetUsedFn       func(context.Context, string) error
	getDonorByEmailFn             func(context.Context, string, string) (store.DonorAccount, error)
	createDonorAccountFn          func(context.Context, store.DonorAccount) error
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateOrganization(ctx context.Context, org store.Organization, ownerStaffAccountID, roleID string) error {
	if f.createOrganizationFn != nil {
		return f.createOrganizationFn(ctx, org, ownerStaffAccountID, roleID)
	}
	return nil
}

func (f *fakeStore) GetOrganization(ctx context.Context, organizationID string) (store.Organization, error) {
	if f.getOrganizationFn != nil {
		return f.getOrganizationFn(ctx, organizationID)
	}
	return store.Organization{}, sql.ErrNoRows
}

func (f *fakeStore) GetOrganizationBySubdomain(ctx context.Context, subdomain string) (store.Organization, error) {
	if f.getOrgBySubdomainFn != nil {
		return f.getOrgBySubdomainFn(ctx, subdomain)
	}
	return store.Organization{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateOrganization(ctx context.Context, organizationID, name, settings string) error {
	if f.updateOrganizationFn != nil {
		return f.updateOrganizationFn(ctx, organizationID, name, settings)
	}
	return nil
}

func (f *fakeStore) DeleteOrganization(ctx context.Context, organizationID string) error {
	if f.deleteOrganizationFn != nil {
		return f.deleteOrganizationFn(ctx, organizationID)
	}
	return nil
}

func (f *fakeStore) SetPaymentAccount(ctx context.Context, organizationID, paymentAccountID string) error {
	if f.setPaymentAccountFn != nil {
		return f.setPaymentAccountFn(ctx, organizationID, paymentAccountID)
	}
	return nil
}

func (f *fakeStore) SetPublicStatus(ctx context.Context, organizationID string, active bool) (bool, error) {
	if f.setPublicStatusFn != nil {
		return f.setPublicStatusFn(ctx, organizationID, active)
	}
	return false, nil
}

func (f *fakeStore) GetStaffByEmail(ctx context.Context, email string) (store.StaffAccount, error) {
	if f.getStaffByEmailFn != nil {
		return f.getStaffByEmailFn(ctx, email)
	}
	return store.StaffAccount{}, sql.ErrNoRows
}

func (f *fakeStore) GetStaffByID(ctx context.Context, staffAccountID string) (store.StaffAccount, error) {
	if f.getStaffByIDFn != nil {
		return f.getStaffByIDFn(ctx, staffAccountID)
	}
	return store.StaffAccount{}, sql.ErrNoRows
}

func (f *fakeStore) ListStaffRoles(ctx context.Context, organizationID string) ([]store.StaffRole, error) {
	if f.listStaffRolesFn != nil {
		return f.listStaffRolesFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeStore) GetStaffRole(ctx context.Context, organizationID, staffAccountID string) (store.StaffRole, error) {
	if f.getStaffRoleFn != nil {
		return f.getStaffRoleFn(ctx, organizationID, staffAccountID)
	}
	return store.StaffRole{}, sql.ErrNoRows
}

func (f *fakeStore) ListStaffRolesForAccount(ctx context.Context, staffAccountID string) ([]store.StaffRole, error) {
	if f.listStaffRolesForAccountFn != nil {
		return f.listStaffRolesForAccountFn(ctx, staffAccountID)
	}
	return nil, nil
}

func (f *fakeStore) CreateStaffRole(ctx context.Context, role store.StaffRole) error {
	if f.createStaffRoleFn != nil {
		return f.createStaffRoleFn(ctx, role)
	}
	return nil
}

func (f *fakeStore) UpdateStaffRole(ctx context.Context, organizationID, staffAccountID, role string) error {
	if f.updateStaffRoleFn != nil {
		return f.updateStaffRoleFn(ctx, organizationID, staffAccountID, role)
	}
	return nil
}

func (f *fakeStore) DeleteStaffRole(ctx context.Context, organizationID, staffAccountID string) error {
	if f.deleteStaffRoleFn != nil {
		return f.deleteStaffRoleFn(ctx, organizationID, staffAccountID)
	}
	return nil
}

func (f *fakeStore) GetDonorByID(ctx context.Context, organizationID, donorAccountID string) (store.DonorAccount, error) {
	if f.getDonorByIDFn != nil {
		return f.getDonorByIDFn(ctx, organizationID, donorAccountID)
	}
	return store.DonorAccount{}, sql.ErrNoRows
}

func (f *fakeStore) ListCampaigns(ctx context.Context, organizationID string) ([]store.Campaign, error) {
	if f.listCampaignsFn != nil {
		return f.listCampaignsFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeStore) ListActiveCampaigns(ctx context.Context, organizationID string) ([]store.Campaign, error) {
	if f.listActiveCampaignsFn != nil {
		return f.listActiveCampaignsFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeStore) GetCampaign(ctx context.Context, organizationID, campaignID string) (store.Campaign, error) {
	if f.getCampaignFn != nil {
		return f.getCampaignFn(ctx, organizationID, campaignID)
	}
	return store.Campaign{}, sql.ErrNoRows
}

func (f *fakeStore) GetCampaignBySlug(ctx context.Context, organizationID, slug string) (store.Campaign, error) {
	if f.getCampaignBySlugFn != nil {
		return f.getCampaignBySlugFn(ctx, organizationID, slug)
	}
	return store.Campaign{}, sql.ErrNoRows
}

func (f *fakeStore) InsertCampaign(ctx context.Context, item store.Campaign) error {
	if f.insertCampaignFn != nil {
		return f.insertCampaignFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateCampaign(ctx context.Context, item store.Campaign) error {
	if f.updateCampaignFn != nil {
		return f.updateCampaignFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateCampaignPageConfig(ctx context.Context, organizationID, campaignID, pageConfig string) error {
	if f.updateCampaignPageConfigFn != nil {
		return f.updateCampaignPageConfigFn(ctx, organizationID, campaignID, pageConfig)
	}
	return nil
}

func (f *fakeStore) PublishCampaign(ctx context.Context, organizationID, campaignID, pageConfig string, assetURLs []string) error {
	if f.publishCampaignFn != nil {
		return f.publishCampaignFn(ctx, organizationID, campaignID, pageConfig, assetURLs)
	}
	return nil
}

func (f *fakeStore) ListDesignations(ctx context.Context, organizationID string, includeArchived bool) ([]store.Designation, error) {
	if f.listDesignationsFn != nil {
		return f.listDesignationsFn(ctx, organizationID, includeArchived)
	}
	return nil, nil
}

func (f *fakeStore) GetDesignation(ctx context.Context, organizationID, designationID string) (store.Designation, error) {
	if f.getDesignationFn != nil {
		return f.getDesignationFn(ctx, organizationID, designationID)
	}
	return store.Designation{}, sql.ErrNoRows
}

func (f *fakeStore) InsertDesignation(ctx context.Context, item store.Designation) error {
	if f.insertDesignationFn != nil {
		return f.insertDesignationFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateDesignation(ctx context.Context, item store.Designation) error {
	if f.updateDesignationFn != nil {
		return f.updateDesignationFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) SetDesignationArchived(ctx context.Context, organizationID, designationID string, archived bool) error {
	if f.setDesignationArchivedFn != nil {
		return f.setDesignationArchivedFn(ctx, organizationID, designationID, archived)
	}
	return nil
}

func (f *fakeStore) ListCampaignDesignationIDs(ctx context.Context, organizationID, campaignID string) ([]string, error) {
	if f.listCampaignDesignationIDsFn != nil {
		return f.listCampaignDesignationIDsFn(ctx, organizationID, campaignID)
	}
	return nil, nil
}

func (f *fakeStore) ListAvailableDesignations(ctx context.Context, organizationID, campaignID string) ([]store.Designation, error) {
	if f.listAvailableDesignationsFn != nil {
		return f.listAvailableDesignationsFn(ctx, organizationID, campaignID)
	}
	return nil, nil
}

func (f *fakeStore) ReplaceCampaignDesignations(ctx context.Context, organizationID, campaignID string, toAdd, toRemove []string) error {
	if f.replaceCampaignDesignationsFn != nil {
		return f.replaceCampaignDesignationsFn(ctx, organizationID, campaignID, toAdd, toRemove)
	}
	return nil
}

func (f *fakeStore) ListCampaignQuestions(ctx context.Context, organizationID, campaignID string) ([]store.CampaignQuestion, error) {
	if f.listCampaignQuestionsFn != nil {
		return f.listCampaignQuestionsFn(ctx, organizationID, campaignID)
	}
	return nil, nil
}

func (f *fakeStore) SyncCampaignQuestions(ctx context.Context, campaignID string, toRemove []string, toAdd, toUpdate []store.CampaignQuestion) error {
	if f.syncCampaignQuestionsFn != nil {
		return f.syncCampaignQuestionsFn(ctx, campaignID, toRemove, toAdd, toUpdate)
	}
	return nil
}

func (f *fakeStore) ListOrganizationPages(ctx context.Context, organizationID string) ([]store.OrganizationPage, error) {
	if f.listOrganizationPagesFn != nil {
		return f.listOrganizationPagesFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeStore) GetOrganizationPage(ctx context.Context, organizationID, pageType string) (store.OrganizationPage, error) {
	if f.getOrganizationPageFn != nil {
		return f.getOrganizationPageFn(ctx, organizationID, pageType)
	}
	return store.OrganizationPage{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertOrganizationPage(ctx context.Context, page store.OrganizationPage) error {
	if f.upsertOrganizationPageFn != nil {
		return f.upsertOrganizationPageFn(ctx, page)
	}
	return nil
}

func (f *fakeStore) PublishOrganizationPage(ctx context.Context, organizationID, pageType, contentConfig string, assetURLs []string) error {
	if f.publishOrganizationPageFn != nil {
		return f.publishOrganizationPageFn(ctx, organizationID, pageType, contentConfig, assetURLs)
	}
	return nil
}

func (f *fakeStore) SetPagePublished(ctx context.Context, organizationID, pageType string, published bool) error {
	if f.setPagePublishedFn != nil {
		return f.setPagePublishedFn(ctx, organizationID, pageType, published)
	}
	return nil
}

func (f *fakeStore) InsertUpload(ctx context.Context, upload store.Upload) error {
	if f.insertUploadFn != nil {
		return f.insertUploadFn(ctx, upload)
	}
	return nil
}

func (f *fakeStore) GetUpload(ctx context.Context, organizationID, uploadID string) (store.Upload, error) {
	if f.getUploadFn != nil {
		return f.getUploadFn(ctx, organizationID, uploadID)
	}
	return store.Upload{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteUpload(ctx context.Context, organizationID, uploadID string) error {
	if f.deleteUploadFn != nil {
		return f.deleteUploadFn(ctx, organizationID, uploadID)
	}
	return nil
}

func (f *fakeStore) InsertDonation(ctx context.Context, donation store.Donation, answers []store.DonationAnswer) error {
	if f.insertDonationFn != nil {
		return f.insertDonationFn(ctx, donation, answers)
	}
	return nil
}

func (f *fakeStore) GetDonation(ctx context.Context, organizationID, donationID string) (store.Donation, []store.DonationAnswer, error) {
	if f.getDonationFn != nil {
		return f.getDonationFn(ctx, organizationID, donationID)
	}
	return store.Donation{}, nil, sql.ErrNoRows
}

func (f *fakeStore) ListDonations(ctx context.Context, organizationID string, filter store.DonationFilter) ([]store.Donation, error) {
	if f.listDonationsFn != nil {
		return f.listDonationsFn(ctx, organizationID, filter)
	}
	return nil, nil
}

func (f *fakeStore) ListDonorDonations(ctx context.Context, organizationID, donorAccountID string) ([]store.Donation, error) {
	if f.listDonorDonationsFn != nil {
		return f.listDonorDonationsFn(ctx, organizationID, donorAccountID)
	}
	return nil, nil
}

func (f *fakeStore) CompleteDonationByProviderSession(ctx context.Context, providerSessionID string) (store.Donation, error) {
	if f.completeDonationBySessionFn != nil {
		return f.completeDonationBySessionFn(ctx, providerSessionID)
	}
	return store.Donation{}, sql.ErrNoRows
}

func (f *fakeStore) CampaignDonationTotals(ctx context.Context, organizationID, campaignID string) (store.DonationTotals, error) {
	if f.campaignDonationTotalsFn != nil {
		return f.campaignDonationTotalsFn(ctx, organizationID, campaignID)
	}
	return store.DonationTotals{}, nil
}

// authpw.AccountStore methods so the same fake can back the password service.

func (f *fakeStore) CreateStaffAccount(ctx context.Context, account store.StaffAccount) error {
	if f.createStaffAccountFn != nil {
		return f.createStaffAccountFn(ctx, account)
	}
	return nil
}

func (f *fakeStore) UpdateStaffVerificationToken(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error {
	if f.updateStaffVerificationFn != nil {
		return f.updateStaffVerificationFn(ctx, staffAccountID, token, expiresAt)
	}
	return nil
}

func (f *fakeStore) VerifyStaffEmail(ctx context.Context, token string) error {
	if f.verifyStaffEmailFn != nil {
		return f.verifyStaffEmailFn(ctx, token)
	}
	return nil
}

func (f *fakeStore) UpdateStaffPassword(ctx context.Context, staffAccountID, passwordHash string) error {
	if f.updateStaffPasswordFn != nil {
		return f.updateStaffPasswordFn(ctx, staffAccountID, passwordHash)
	}
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error {
	if f.createPasswordResetFn != nil {
		return f.createPasswordResetFn(ctx, staffAccountID, token, expiresAt)
	}
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if f.getPasswordResetFn != nil {
		return f.getPasswordResetFn(ctx, token)
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if f.markPasswordResetUsedFn != nil {
		return f.markPasswordResetUsedFn(ctx, token)
	}
	return nil
}

func (f *fakeStore) GetDonorByEmail(ctx context.Context, organizationID, email string) (store.DonorAccount, error) {
	if f.getDonorByEmailFn != nil {
		return f.getDonorByEmailFn(ctx, organizationID, email)
	}
	return store.DonorAccount{}, sql.ErrNoRows
}

func (f *fakeStore) CreateDonorAccount(ctx context.Context, donor store.DonorAccount) error {
	if f.createDonorAccountFn != nil {
		return f.createDonorAccountFn(ctx, donor)
	}
	return nil
}

// In-memory session store matching the Redis store's contract.

type fakeSessions struct {
	mu      sync.Mutex
	refresh map[string]session.Identity
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		refresh: make(map[string]session.Identity),
		revoked: make(map[string]bool),
	}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, identity session.Identity, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = identity
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.refresh[tokenHash]
	if !ok {
		return session.Identity{}, session.ErrNotFound
	}
	return identity, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

type fakePayment struct {
	verifyAccountFn func(context.Context, string) (bool, error)
}

func (f *fakePayment) CreateCheckoutSession(_ context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error) {
	if params.Amount <= 0 {
		return payment.CheckoutSession{}, errors.New("amount must be positive")
	}
	return payment.CheckoutSession{ID: "cs_" + params.DonationID, RedirectURL: "http://pay.test/cs_" + params.DonationID}, nil
}

func (f *fakePayment) VerifyWebhook(_ []byte, signature string) error {
	if signature != "test-signature" {
		return payment.ErrInvalidSignature
	}
	return nil
}

func (f *fakePayment) VerifyAccount(ctx context.Context, paymentAccountID string) (bool, error) {
	if f.verifyAccountFn != nil {
		return f.verifyAccountFn(ctx, paymentAccountID)
	}
	return paymentAccountID != "", nil
}

type fakeBlob struct {
	base    string
	removed []string
}

func (f *fakeBlob) PresignUpload(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return f.base + objectKey + "?signed", nil
}

func (f *fakeBlob) PublicURL(objectKey string) string { return f.base + objectKey }
func (f *fakeBlob) BaseURL() string                   { return f.base }

func (f *fakeBlob) Remove(_ context.Context, objectKey string) error {
	f.removed = append(f.removed, objectKey)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		PublicBaseURL: "http://localhost:3000",
	}
}

func newTestService(fs *fakeStore) (*Service, *fakeSessions) {
	sessions := newFakeSessions()
	service := New(testConfig(), fs, Deps{
		Sessions: sessions,
		Auth:     authpw.NewService(fs),
		Export:   export.NewService(),
		Payment:  &fakePayment{},
		Blob:     &fakeBlob{base: "https://assets.test/"},
	})
	return service, sessions
}

func staffSession(organizationID, role string) Session {
	return Session{
		Kind:           "staff",
		AccountID:      "stf_tester",
		OrganizationID: organizationID,
		Role:           role,
		DisplayName:    "Test Staffer",
	}
}
