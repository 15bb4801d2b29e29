package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"donorbase/api/internal/auth"
	"donorbase/api/internal/authpw"
	"donorbase/api/internal/config"
	"donorbase/api/internal/email"
	"donorbase/api/internal/export"
	"donorbase/api/internal/payment"
	"donorbase/api/internal/rbac"
	"donorbase/api/internal/revisions"
	"donorbase/api/internal/search"
	"donorbase/api/internal/session"
	"donorbase/api/internal/store"
	"donorbase/api/internal/util"
)

// Session is the decoded principal attached to a request. Kind discriminates
// staff from donor sessions; downstream code switches on it instead of probing
// for optional fields. Role is set only for staff.
type Session struct {
	Token          string
	RefreshToken   string
	Kind           string
	AccountID      string
	OrganizationID string
	Role           string
	DisplayName    string
	JTI            string
	ExpiresAt      time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateOrganization(ctx context.Context, org store.Organization, ownerStaffAccountID, roleID string) error
	GetOrganization(ctx context.Context, organizationID string) (store.Organization, error)
	GetOrganizationBySubdomain(ctx context.Context, subdomain string) (store.Organization, error)
	UpdateOrganization(ctx context.Context, organizationID, name, settings string) error
	DeleteOrganization(ctx context.Context, organizationID string) error
	SetPaymentAccount(ctx context.Context, organizationID, paymentAccountID string) error
	SetPublicStatus(ctx context.Context, organizationID string, active bool) (bool, error)

	GetStaffByEmail(ctx context.Context, email string) (store.StaffAccount, error)
	GetStaffByID(ctx context.Context, staffAccountID string) (store.StaffAccount, error)
	ListStaffRoles(ctx context.Context, organizationID string) ([]store.StaffRole, error)
	GetStaffRole(ctx context.Context, organizationID, staffAccountID string) (store.StaffRole, error)
	ListStaffRolesForAccount(ctx context.Context, staffAccountID string) ([]store.StaffRole, error)
	CreateStaffRole(ctx context.Context, role store.StaffRole) error
	UpdateStaffRole(ctx context.Context, organizationID, staffAccountID, role string) error
	DeleteStaffRole(ctx context.Context, organizationID, staffAccountID string) error

	GetDonorByID(ctx context.Context, organizationID, donorAccountID string) (store.DonorAccount, error)

	ListCampaigns(ctx context.Context, organizationID string) ([]store.Campaign, error)
	ListActiveCampaigns(ctx context.Context, organizationID string) ([]store.Campaign, error)
	GetCampaign(ctx context.Context, organizationID, campaignID string) (store.Campaign, error)
	GetCampaignBySlug(ctx context.Context, organizationID, slug string) (store.Campaign, error)
	InsertCampaign(ctx context.Context, item store.Campaign) error
	UpdateCampaign(ctx context.Context, item store.Campaign) error
	UpdateCampaignPageConfig(ctx context.Context, organizationID, campaignID, pageConfig string) error
	PublishCampaign(ctx context.Context, organizationID, campaignID, pageConfig string, assetURLs []string) error

	ListDesignations(ctx context.Context, organizationID string, includeArchived bool) ([]store.Designation, error)
	GetDesignation(ctx context.Context, organizationID, designationID string) (store.Designation, error)
	InsertDesignation(ctx context.Context, item store.Designation) error
	UpdateDesignation(ctx context.Context, item store.Designation) error
	SetDesignationArchived(ctx context.Context, organizationID, designationID string, archived bool) error

	ListCampaignDesignationIDs(ctx context.Context, organizationID, campaignID string) ([]string, error)
	ListAvailableDesignations(ctx context.Context, organizationID, campaignID string) ([]store.Designation, error)
	ReplaceCampaignDesignations(ctx context.Context, organizationID, campaignID string, toAdd, toRemove []string) error

	ListCampaignQuestions(ctx context.Context, organizationID, campaignID string) ([]store.CampaignQuestion, error)
	SyncCampaignQuestions(ctx context.Context, campaignID string, toRemove []string, toAdd, toUpdate []store.CampaignQuestion) error

	ListOrganizationPages(ctx context.Context, organizationID string) ([]store.OrganizationPage, error)
	GetOrganizationPage(ctx context.Context, organizationID, pageType string) (store.OrganizationPage, error)
	UpsertOrganizationPage(ctx context.Context, page store.OrganizationPage) error
	PublishOrganizationPage(ctx context.Context, organizationID, pageType, contentConfig string, assetURLs []string) error
	SetPagePublished(ctx context.Context, organizationID, pageType string, published bool) error

	InsertUpload(ctx context.Context, upload store.Upload) error
	GetUpload(ctx context.Context, organizationID, uploadID string) (store.Upload, error)
	DeleteUpload(ctx context.Context, organizationID, uploadID string) error

	InsertDonation(ctx context.Context, donation store.Donation, answers []store.DonationAnswer) error
	GetDonation(ctx context.Context, organizationID, donationID string) (store.Donation, []store.DonationAnswer, error)
	ListDonations(ctx context.Context, organizationID string, filter store.DonationFilter) ([]store.Donation, error)
	ListDonorDonations(ctx context.Context, organizationID, donorAccountID string) ([]store.Donation, error)
	CompleteDonationByProviderSession(ctx context.Context, providerSessionID string) (store.Donation, error)
	CampaignDonationTotals(ctx context.Context, organizationID, campaignID string) (store.DonationTotals, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity session.Identity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type blobStore interface {
	PresignUpload(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PublicURL(objectKey string) string
	BaseURL() string
	Remove(ctx context.Context, objectKey string) error
}

// Deps bundles the collaborators the service drives. Search, Revisions,
// Export, Email, and Blob may be nil when the corresponding feature is not
// configured; the service degrades instead of failing startup.
type Deps struct {
	Sessions  sessionStore
	Auth      *authpw.Service
	Email     *email.Service
	Search    *search.Service
	Revisions *revisions.Service
	Export    *export.Service
	Payment   payment.Provider
	Blob      blobStore
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	auth      *authpw.Service
	email     *email.Service
	search    *search.Service
	revisions *revisions.Service
	export    *export.Service
	payment   payment.Provider
	blob      blobStore
}

func New(cfg config.Config, dataStore dataStore, deps Deps) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  deps.Sessions,
		auth:      deps.Auth,
		email:     deps.Email,
		search:    deps.Search,
		revisions: deps.Revisions,
		export:    deps.Export,
		payment:   deps.Payment,
		blob:      deps.Blob,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.auth
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Role(role), action)
}

// orgScope rejects sessions without an organization before any repository is
// touched. A blank organization id is a wiring bug, not a tenancy miss, so it
// surfaces as 500 rather than 404.
func (s *Service) orgScope(sess Session) (string, error) {
	if strings.TrimSpace(sess.OrganizationID) == "" {
		return "", domainError(http.StatusInternalServerError, "SESSION_MISCONFIGURED", "Session is not bound to an organization", nil)
	}
	return sess.OrganizationID, nil
}

// Sessions and tokens

func (s *Service) StaffSignIn(ctx context.Context, emailAddr, password, organizationID string) (Session, error) {
	resp, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}

	role, err := s.resolveStaffRole(ctx, resp.Account.ID, organizationID)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, session.Identity{
		Kind:           auth.KindStaff,
		AccountID:      resp.Account.ID,
		OrganizationID: role.OrganizationID,
		Role:           role.Role,
	}, resp.Account.DisplayName)
}

// resolveStaffRole picks the membership a staff session binds to. An explicit
// organization id must match one of the account's roles; otherwise the first
// membership wins, and an account with no memberships yet gets an unbound
// session so it can still create an organization.
func (s *Service) resolveStaffRole(ctx context.Context, staffAccountID, organizationID string) (store.StaffRole, error) {
	roles, err := s.store.ListStaffRolesForAccount(ctx, staffAccountID)
	if err != nil {
		return store.StaffRole{}, err
	}
	if organizationID != "" {
		for _, role := range roles {
			if role.OrganizationID == organizationID {
				return role, nil
			}
		}
		return store.StaffRole{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if len(roles) > 0 {
		return roles[0], nil
	}
	return store.StaffRole{}, nil
}

func (s *Service) DonorSignIn(ctx context.Context, subdomain, emailAddr, password string) (Session, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return Session{}, err
	}
	donor, err := s.auth.DonorSignIn(ctx, org.ID, emailAddr, password)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, session.Identity{
		Kind:           auth.KindDonor,
		AccountID:      donor.ID,
		OrganizationID: org.ID,
	}, donor.DisplayName)
}

func (s *Service) DonorSignUp(ctx context.Context, subdomain, emailAddr, password, displayName string) (Session, error) {
	org, err := s.publicOrganization(ctx, subdomain)
	if err != nil {
		return Session{}, err
	}
	donor, err := s.auth.DonorSignUp(ctx, authpw.DonorSignUpRequest{
		OrganizationID: org.ID,
		Email:          emailAddr,
		Password:       password,
		DisplayName:    displayName,
	})
	if err != nil {
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, session.Identity{
		Kind:           auth.KindDonor,
		AccountID:      donor.ID,
		OrganizationID: org.ID,
	}, donor.DisplayName)
}

func (s *Service) issueSession(ctx context.Context, identity session.Identity, displayName string) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  identity.AccountID,
		Org:  identity.OrganizationID,
		Kind: identity.Kind,
		Role: identity.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	identity.CreatedAt = now
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), identity, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:          token,
		RefreshToken:   refresh,
		Kind:           identity.Kind,
		AccountID:      identity.AccountID,
		OrganizationID: identity.OrganizationID,
		Role:           identity.Role,
		DisplayName:    displayName,
		JTI:            jti,
		ExpiresAt:      expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	identity, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}

	displayName, identity, err := s.reloadIdentity(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, identity, displayName)
}

// reloadIdentity re-reads the account behind a refresh token so revoked
// memberships and role changes take effect on rotation.
func (s *Service) reloadIdentity(ctx context.Context, identity session.Identity) (string, session.Identity, error) {
	switch identity.Kind {
	case auth.KindStaff:
		account, err := s.store.GetStaffByID(ctx, identity.AccountID)
		if err != nil {
			return "", session.Identity{}, auth.ErrInvalidToken
		}
		if identity.OrganizationID != "" {
			role, err := s.store.GetStaffRole(ctx, identity.OrganizationID, identity.AccountID)
			if err != nil {
				return "", session.Identity{}, auth.ErrInvalidToken
			}
			identity.Role = role.Role
		}
		return account.DisplayName, identity, nil
	case auth.KindDonor:
		donor, err := s.store.GetDonorByID(ctx, identity.OrganizationID, identity.AccountID)
		if err != nil {
			return "", session.Identity{}, auth.ErrInvalidToken
		}
		return donor.DisplayName, identity, nil
	default:
		return "", session.Identity{}, auth.ErrInvalidToken
	}
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	displayName, identity, err := s.reloadIdentity(ctx, session.Identity{
		Kind:           claims.Kind,
		AccountID:      claims.Sub,
		OrganizationID: claims.Org,
		Role:           claims.Role,
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:          token,
		Kind:           identity.Kind,
		AccountID:      identity.AccountID,
		OrganizationID: identity.OrganizationID,
		Role:           identity.Role,
		DisplayName:    displayName,
		JTI:            claims.JTI,
		ExpiresAt:      time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Organizations

func (s *Service) CreateOrganization(ctx context.Context, sess Session, name, subdomain string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if name == "" || subdomain == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name and subdomain are required", nil)
	}

	org := store.Organization{
		ID:        util.NewID("org"),
		Name:      name,
		Subdomain: subdomain,
		Settings:  "{}",
	}
	if err := s.store.CreateOrganization(ctx, org, sess.AccountID, util.NewID("rol")); err != nil {
		return nil, err
	}

	stored, err := s.store.GetOrganization(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	return organizationPayload(stored), nil
}

func (s *Service) GetOrganization(ctx context.Context, sess Session) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return organizationPayload(org), nil
}

func (s *Service) UpdateOrganization(ctx context.Context, sess Session, name string, settings json.RawMessage) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	updatedName := strings.TrimSpace(name)
	if updatedName == "" {
		updatedName = org.Name
	}
	updatedSettings := org.Settings
	if len(settings) > 0 {
		if !json.Valid(settings) {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "settings must be valid JSON", nil)
		}
		updatedSettings = string(settings)
	}

	if err := s.store.UpdateOrganization(ctx, orgID, updatedName, updatedSettings); err != nil {
		return nil, err
	}
	org, err = s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return organizationPayload(org), nil
}

func (s *Service) DeleteOrganization(ctx context.Context, sess Session) error {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return err
	}
	return s.store.DeleteOrganization(ctx, orgID)
}

func (s *Service) GetPaymentAccount(ctx context.Context, sess Session) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	verified, err := s.payment.VerifyAccount(ctx, org.PaymentAccountID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"paymentAccountId": org.PaymentAccountID,
		"verified":         verified,
	}, nil
}

func (s *Service) SetPaymentAccount(ctx context.Context, sess Session, paymentAccountID string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPaymentAccount(ctx, orgID, strings.TrimSpace(paymentAccountID)); err != nil {
		return nil, err
	}
	if err := s.recomputePublicStatus(ctx, orgID); err != nil {
		return nil, err
	}
	return s.GetPaymentAccount(ctx, sess)
}

// recomputePublicStatus derives isPubliclyActive from payment verification and
// required-page publication. The store only writes when the value changes, so
// repeated recomputation is a no-op.
func (s *Service) recomputePublicStatus(ctx context.Context, organizationID string) error {
	org, err := s.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	verified, err := s.payment.VerifyAccount(ctx, org.PaymentAccountID)
	if err != nil {
		return err
	}

	pages, err := s.store.ListOrganizationPages(ctx, organizationID)
	if err != nil {
		return err
	}
	published := make(map[PageType]bool, len(pages))
	for _, page := range pages {
		published[PageType(page.PageType)] = page.IsPublished
	}
	allRequired := true
	for _, pageType := range requiredPageTypes {
		if !published[pageType] {
			allRequired = false
			break
		}
	}

	active := verified && allRequired
	changed, err := s.store.SetPublicStatus(ctx, organizationID, active)
	if err != nil {
		return err
	}
	if changed {
		log.Printf(`{"event":"public_status_changed","organization_id":"%s","active":%t}`, organizationID, active)
	}
	return nil
}

// Staff membership

func (s *Service) ListStaff(ctx context.Context, sess Session) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.ListStaffRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		items = append(items, map[string]any{
			"staffAccountId": role.StaffAccountID,
			"email":          role.Email,
			"displayName":    role.DisplayName,
			"role":           role.Role,
			"joinedAt":       role.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) InviteStaff(ctx context.Context, sess Session, emailAddr, role string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if !rbac.Valid(role) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "role must be admin or editor", nil)
	}

	account, err := s.store.GetStaffByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No staff account with that email", nil)
		}
		return nil, err
	}

	if err := s.store.CreateStaffRole(ctx, store.StaffRole{
		ID:             util.NewID("rol"),
		StaffAccountID: account.ID,
		OrganizationID: orgID,
		Role:           role,
	}); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusConflict, "ALREADY_MEMBER", "Staff member already belongs to this organization", nil)
		}
		return nil, err
	}

	if s.SMTPConfigured() {
		org, orgErr := s.store.GetOrganization(ctx, orgID)
		if orgErr == nil {
			go func() {
				if sendErr := s.email.SendStaffInviteEmail(account.Email, org.Name, sess.DisplayName, role, s.cfg.PublicBaseURL+"/crm"); sendErr != nil {
					log.Printf("staff invite email to %s failed: %v", account.Email, sendErr)
				}
			}()
		}
	}

	return map[string]any{
		"staffAccountId": account.ID,
		"email":          account.Email,
		"role":           role,
	}, nil
}

func (s *Service) UpdateStaffRole(ctx context.Context, sess Session, staffAccountID, role string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if staffAccountID == sess.AccountID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You cannot change your own role", nil)
	}
	if !rbac.Valid(role) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "role must be admin or editor", nil)
	}
	if err := s.store.UpdateStaffRole(ctx, orgID, staffAccountID, role); err != nil {
		return nil, err
	}
	return map[string]any{"staffAccountId": staffAccountID, "role": role}, nil
}

func (s *Service) RemoveStaff(ctx context.Context, sess Session, staffAccountID string) error {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return err
	}
	if staffAccountID == sess.AccountID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You cannot remove yourself", nil)
	}
	return s.store.DeleteStaffRole(ctx, orgID, staffAccountID)
}

// Payload shaping

func organizationPayload(org store.Organization) map[string]any {
	return map[string]any{
		"id":               org.ID,
		"name":             org.Name,
		"subdomain":        org.Subdomain,
		"paymentAccountId": org.PaymentAccountID,
		"isPubliclyActive": org.IsPubliclyActive,
		"settings":         rawJSON(org.Settings),
		"createdAt":        org.CreatedAt,
		"updatedAt":        org.UpdatedAt,
	}
}

func rawJSON(value string) json.RawMessage {
	if strings.TrimSpace(value) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(value)
}
