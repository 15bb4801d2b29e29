package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"donorbase/api/internal/search"
	"donorbase/api/internal/store"
	"donorbase/api/internal/util"
)

// SectionKey enumerates the page-builder sections a campaign or organization
// page may enable. The publish gate only accepts keys present in sectionRules.
type SectionKey string

const (
	SectionBanner  SectionKey = "banner"
	SectionStory   SectionKey = "story"
	SectionDonate  SectionKey = "donate"
	SectionGallery SectionKey = "gallery"
	SectionFAQ     SectionKey = "faq"
	SectionContact SectionKey = "contact"
)

type sectionRule struct {
	Label          string
	RequiredFields []string
}

var sectionRules = map[SectionKey]sectionRule{
	SectionBanner:  {Label: "Banner", RequiredFields: []string{"title"}},
	SectionStory:   {Label: "Story", RequiredFields: []string{"body"}},
	SectionDonate:  {Label: "Donate", RequiredFields: []string{"buttonLabel"}},
	SectionGallery: {Label: "Gallery", RequiredFields: []string{"heading"}},
	SectionFAQ:     {Label: "FAQ", RequiredFields: []string{"heading"}},
	SectionContact: {Label: "Contact", RequiredFields: []string{"email"}},
}

// PageType enumerates the organization pages. An organization only becomes
// publicly active once every type in requiredPageTypes is published.
type PageType string

const (
	PageLanding PageType = "landing"
	PageAbout   PageType = "about"
)

var requiredPageTypes = []PageType{PageLanding, PageAbout}

func validPageType(pageType string) bool {
	switch PageType(pageType) {
	case PageLanding, PageAbout:
		return true
	default:
		return false
	}
}

var allowedQuestionTypes = map[string]struct{}{
	"text":     {},
	"textarea": {},
	"select":   {},
	"checkbox": {},
}

// Designations

func (s *Service) ListDesignations(ctx context.Context, sess Session, includeArchived bool) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	designations, err := s.store.ListDesignations(ctx, orgID, includeArchived)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(designations))
	for _, designation := range designations {
		items = append(items, designationPayload(designation))
	}
	return items, nil
}

func (s *Service) GetDesignation(ctx context.Context, sess Session, designationID string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	designation, err := s.store.GetDesignation(ctx, orgID, designationID)
	if err != nil {
		return nil, err
	}
	return designationPayload(designation), nil
}

type DesignationInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	GoalAmount  int64  `json:"goalAmount"`
}

func (s *Service) CreateDesignation(ctx context.Context, sess Session, input DesignationInput) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}
	designation := store.Designation{
		ID:             util.NewID("dsg"),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Description:    strings.TrimSpace(input.Description),
		GoalAmount:     input.GoalAmount,
	}
	if err := s.store.InsertDesignation(ctx, designation); err != nil {
		return nil, err
	}
	stored, err := s.store.GetDesignation(ctx, orgID, designation.ID)
	if err != nil {
		return nil, err
	}
	s.indexDesignation(stored)
	return designationPayload(stored), nil
}

func (s *Service) UpdateDesignation(ctx context.Context, sess Session, designationID string, input DesignationInput) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	designation, err := s.store.GetDesignation(ctx, orgID, designationID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		designation.Name = name
	}
	designation.Description = strings.TrimSpace(input.Description)
	if input.GoalAmount > 0 {
		designation.GoalAmount = input.GoalAmount
	}
	if err := s.store.UpdateDesignation(ctx, designation); err != nil {
		return nil, err
	}
	stored, err := s.store.GetDesignation(ctx, orgID, designationID)
	if err != nil {
		return nil, err
	}
	s.indexDesignation(stored)
	return designationPayload(stored), nil
}

func (s *Service) SetDesignationArchived(ctx context.Context, sess Session, designationID string, archived bool) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetDesignationArchived(ctx, orgID, designationID, archived); err != nil {
		return nil, err
	}
	stored, err := s.store.GetDesignation(ctx, orgID, designationID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		if archived {
			s.search.DeleteDesignation(designationID)
		} else {
			s.indexDesignation(stored)
		}
	}
	return designationPayload(stored), nil
}

func (s *Service) indexDesignation(designation store.Designation) {
	if s.search == nil {
		return
	}
	s.search.IndexDesignation(search.DesignationRecord{
		ID:             designation.ID,
		Name:           designation.Name,
		Description:    designation.Description,
		OrganizationID: designation.OrganizationID,
		IsArchived:     designation.IsArchived,
	})
}

// Campaigns

func (s *Service) ListCampaigns(ctx context.Context, sess Session) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.store.ListCampaigns(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(campaigns))
	for _, campaign := range campaigns {
		items = append(items, campaignPayload(campaign))
	}
	return items, nil
}

func (s *Service) GetCampaign(ctx context.Context, sess Session, campaignID string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.CampaignDonationTotals(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	payload := campaignPayload(campaign)
	payload["donationCount"] = totals.Count
	payload["donationTotal"] = totals.TotalAmount
	return payload, nil
}

type CampaignInput struct {
	InternalName         string `json:"internalName"`
	ExternalName         string `json:"externalName"`
	Slug                 string `json:"slug"`
	DefaultDesignationID string `json:"defaultDesignationId"`
	GoalAmount           int64  `json:"goalAmount"`
	Icon                 string `json:"icon"`
}

func (s *Service) CreateCampaign(ctx context.Context, sess Session, input CampaignInput) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	internalName := strings.TrimSpace(input.InternalName)
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if internalName == "" || slug == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "internalName and slug are required", nil)
	}

	campaign := store.Campaign{
		ID:             util.NewID("cmp"),
		OrganizationID: orgID,
		InternalName:   internalName,
		ExternalName:   firstNonBlank(strings.TrimSpace(input.ExternalName), internalName),
		Slug:           slug,
		GoalAmount:     input.GoalAmount,
		Icon:           strings.TrimSpace(input.Icon),
		PageConfig:     "{}",
	}
	if id := strings.TrimSpace(input.DefaultDesignationID); id != "" {
		if _, err := s.store.GetDesignation(ctx, orgID, id); err != nil {
			return nil, err
		}
		campaign.DefaultDesignationID = &id
	}

	if err := s.store.InsertCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	stored, err := s.store.GetCampaign(ctx, orgID, campaign.ID)
	if err != nil {
		return nil, err
	}
	s.indexCampaign(stored)
	return campaignPayload(stored), nil
}

func (s *Service) UpdateCampaign(ctx context.Context, sess Session, campaignID string, input CampaignInput) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.InternalName); name != "" {
		campaign.InternalName = name
	}
	if name := strings.TrimSpace(input.ExternalName); name != "" {
		campaign.ExternalName = name
	}
	if slug := strings.ToLower(strings.TrimSpace(input.Slug)); slug != "" {
		campaign.Slug = slug
	}
	if input.GoalAmount > 0 {
		campaign.GoalAmount = input.GoalAmount
	}
	if icon := strings.TrimSpace(input.Icon); icon != "" {
		campaign.Icon = icon
	}
	if id := strings.TrimSpace(input.DefaultDesignationID); id != "" {
		if _, err := s.store.GetDesignation(ctx, orgID, id); err != nil {
			return nil, err
		}
		campaign.DefaultDesignationID = &id
	}

	if err := s.store.UpdateCampaign(ctx, campaign); err != nil {
		return nil, err
	}
	stored, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	s.indexCampaign(stored)
	return campaignPayload(stored), nil
}

func (s *Service) indexCampaign(campaign store.Campaign) {
	if s.search == nil {
		return
	}
	s.search.IndexCampaign(search.CampaignRecord{
		ID:             campaign.ID,
		InternalName:   campaign.InternalName,
		ExternalName:   campaign.ExternalName,
		Slug:           campaign.Slug,
		OrganizationID: campaign.OrganizationID,
		IsActive:       campaign.IsActive,
	})
}

// Page config drafts and revision history

func (s *Service) SaveCampaignPageConfig(ctx context.Context, sess Session, campaignID string, pageConfig json.RawMessage) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	if len(pageConfig) == 0 || !json.Valid(pageConfig) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "pageConfig must be valid JSON", nil)
	}
	if err := s.store.UpdateCampaignPageConfig(ctx, orgID, campaignID, string(pageConfig)); err != nil {
		return nil, err
	}
	if s.revisions != nil {
		if _, err := s.revisions.RecordRevision(campaignID, string(pageConfig), sess.DisplayName, "Save page config"); err != nil {
			return nil, err
		}
	}
	campaign, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	return campaignPayload(campaign), nil
}

func (s *Service) ListCampaignRevisions(ctx context.Context, sess Session, campaignID string, limit int) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []map[string]any{}, nil
	}
	history, err := s.revisions.History(campaignID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(history))
	for _, revision := range history {
		items = append(items, revisionPayload(revision))
	}
	return items, nil
}

func (s *Service) GetCampaignRevision(ctx context.Context, sess Session, campaignID, hash string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	config, info, err := s.revisions.GetRevision(campaignID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	payload := revisionPayload(info)
	payload["pageConfig"] = rawJSON(config)
	return payload, nil
}

// RestoreCampaignRevision writes a historical config back as the current draft
// and records the restore itself as a new revision, so history stays linear.
func (s *Service) RestoreCampaignRevision(ctx context.Context, sess Session, campaignID, hash string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	config, info, err := s.revisions.GetRevision(campaignID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	if err := s.store.UpdateCampaignPageConfig(ctx, orgID, campaignID, config); err != nil {
		return nil, err
	}
	if _, err := s.revisions.RecordRevision(campaignID, config, sess.DisplayName, "Restore revision "+info.Hash); err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	return campaignPayload(campaign), nil
}

// Designation membership sync

type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

func (s *Service) ListCampaignDesignations(ctx context.Context, sess Session, campaignID string) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	designations, err := s.store.ListAvailableDesignations(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(designations))
	for _, designation := range designations {
		items = append(items, designationPayload(designation))
	}
	return items, nil
}

// SyncCampaignDesignations reconciles a campaign's designation set against the
// desired ids. Duplicates in the input collapse; adds and removes apply in one
// transaction with every added id re-verified against the organization, so a
// stale or cross-tenant id aborts the whole sync.
func (s *Service) SyncCampaignDesignations(ctx context.Context, sess Session, campaignID string, desiredIDs []string) (SyncResult, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return SyncResult{}, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return SyncResult{}, err
	}
	if len(desiredIDs) > 100 {
		return SyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "too many designations, maximum is 100", nil)
	}

	desired := make(map[string]struct{}, len(desiredIDs))
	for _, id := range desiredIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return SyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "designation ids must be non-empty", nil)
		}
		desired[id] = struct{}{}
	}

	currentIDs, err := s.store.ListCampaignDesignationIDs(ctx, orgID, campaignID)
	if err != nil {
		return SyncResult{}, err
	}
	current := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = struct{}{}
	}

	var toAdd, toRemove []string
	for id := range desired {
		if _, ok := current[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for id := range current {
		if _, ok := desired[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}

	if len(toAdd) > 0 || len(toRemove) > 0 {
		if err := s.store.ReplaceCampaignDesignations(ctx, orgID, campaignID, toAdd, toRemove); err != nil {
			return SyncResult{}, err
		}
	}

	return SyncResult{Added: len(toAdd), Removed: len(toRemove), Total: len(desired)}, nil
}

// Question sync

type QuestionInput struct {
	ID           string          `json:"id"`
	QuestionText string          `json:"questionText"`
	QuestionType string          `json:"questionType"`
	Options      json.RawMessage `json:"options"`
	IsRequired   bool            `json:"isRequired"`
	// DisplayOrder nil means "use the input position", so an explicit 0
	// still pins a question to the top.
	DisplayOrder *int `json:"displayOrder"`
}

type QuestionSyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

func (s *Service) ListCampaignQuestions(ctx context.Context, sess Session, campaignID string) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return nil, err
	}
	questions, err := s.store.ListCampaignQuestions(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(questions))
	for _, question := range questions {
		items = append(items, questionPayload(question))
	}
	return items, nil
}

// SyncCampaignQuestions partitions the submitted questions into adds (no id),
// updates (id present) and removes (existing ids absent from the input), then
// applies all three phases in one transaction. An id that matches no row for
// the campaign aborts the whole sync.
func (s *Service) SyncCampaignQuestions(ctx context.Context, sess Session, campaignID string, inputs []QuestionInput) (QuestionSyncResult, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return QuestionSyncResult{}, err
	}
	if _, err := s.store.GetCampaign(ctx, orgID, campaignID); err != nil {
		return QuestionSyncResult{}, err
	}
	if len(inputs) > 50 {
		return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "too many questions, maximum is 50", nil)
	}

	existing, err := s.store.ListCampaignQuestions(ctx, orgID, campaignID)
	if err != nil {
		return QuestionSyncResult{}, err
	}
	existingIDs := make(map[string]struct{}, len(existing))
	for _, question := range existing {
		existingIDs[question.ID] = struct{}{}
	}

	var toAdd, toUpdate []store.CampaignQuestion
	keep := make(map[string]struct{}, len(inputs))
	for position, input := range inputs {
		if strings.TrimSpace(input.QuestionText) == "" {
			return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "questionText is required", nil)
		}
		if _, ok := allowedQuestionTypes[input.QuestionType]; !ok {
			return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown question type %q", input.QuestionType), nil)
		}
		options := "[]"
		if len(input.Options) > 0 {
			if !json.Valid(input.Options) {
				return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "options must be valid JSON", nil)
			}
			options = string(input.Options)
		}
		displayOrder := position
		if input.DisplayOrder != nil {
			if *input.DisplayOrder < 0 {
				return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "displayOrder must not be negative", nil)
			}
			displayOrder = *input.DisplayOrder
		}

		question := store.CampaignQuestion{
			CampaignID:   campaignID,
			QuestionText: strings.TrimSpace(input.QuestionText),
			QuestionType: input.QuestionType,
			Options:      options,
			IsRequired:   input.IsRequired,
			DisplayOrder: displayOrder,
		}
		if id := strings.TrimSpace(input.ID); id != "" {
			if _, dup := keep[id]; dup {
				return QuestionSyncResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("duplicate question id %q", id), nil)
			}
			question.ID = id
			keep[id] = struct{}{}
			toUpdate = append(toUpdate, question)
		} else {
			question.ID = util.NewID("cq")
			toAdd = append(toAdd, question)
		}
	}

	var toRemove []string
	for _, question := range existing {
		if _, ok := keep[question.ID]; !ok {
			toRemove = append(toRemove, question.ID)
		}
	}

	if err := s.store.SyncCampaignQuestions(ctx, campaignID, toRemove, toAdd, toUpdate); err != nil {
		return QuestionSyncResult{}, err
	}

	return QuestionSyncResult{
		Added:   len(toAdd),
		Updated: len(toUpdate),
		Removed: len(toRemove),
		Total:   len(inputs),
	}, nil
}

// Publication

// PublishCampaign validates the submitted pageConfig against the section rule
// table, confirms any uploads the config references, and flips isActive, all
// in one transaction. There is no unpublish transition for campaigns.
func (s *Service) PublishCampaign(ctx context.Context, sess Session, campaignID string, pageConfig json.RawMessage) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	campaign, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if len(pageConfig) == 0 {
		pageConfig = json.RawMessage(campaign.PageConfig)
	}

	sections, err := decodeSections(pageConfig)
	if err != nil {
		return nil, err
	}
	if err := validateSections(sections); err != nil {
		return nil, err
	}

	assetURLs := s.collectAssetURLs(pageConfig)
	if err := s.store.PublishCampaign(ctx, orgID, campaignID, string(pageConfig), assetURLs); err != nil {
		return nil, err
	}

	stored, err := s.store.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	s.indexCampaign(stored)
	return campaignPayload(stored), nil
}

type sectionConfig struct {
	Enabled bool           `json:"enabled"`
	Props   map[string]any `json:"props"`
}

func decodeSections(pageConfig json.RawMessage) (map[SectionKey]sectionConfig, error) {
	var sections map[SectionKey]sectionConfig
	if err := json.Unmarshal(pageConfig, &sections); err != nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "pageConfig must map section keys to {enabled, props}", nil)
	}
	// The literal null unmarshals into a nil map without error.
	if sections == nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "pageConfig must map section keys to {enabled, props}", nil)
	}
	return sections, nil
}

// validateSections checks every enabled section against the rule table. The
// first missing or blank required field aborts the publish with a message
// naming the section and field.
func validateSections(sections map[SectionKey]sectionConfig) error {
	for key, section := range sections {
		if !section.Enabled {
			continue
		}
		rule, ok := sectionRules[key]
		if !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Cannot publish: unknown section %q.", string(key)), nil)
		}
		for _, field := range rule.RequiredFields {
			value, present := section.Props[field]
			if !present || isBlankValue(value) {
				return domainError(http.StatusBadRequest, "PUBLISH_INCOMPLETE",
					fmt.Sprintf("Cannot publish: The %s section is missing a %s.", rule.Label, field), nil)
			}
		}
	}
	return nil
}

func isBlankValue(value any) bool {
	if value == nil {
		return true
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text) == ""
	}
	return false
}

// collectAssetURLs walks the decoded config for string values under the asset
// base URL. Matching uploads get confirmed inside the publish transaction so
// cleanup never garbage-collects a referenced asset.
func (s *Service) collectAssetURLs(pageConfig json.RawMessage) []string {
	if s.blob == nil {
		return nil
	}
	baseURL := s.blob.BaseURL()
	if baseURL == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(pageConfig, &decoded); err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var urls []string
	var walk func(value any)
	walk = func(value any) {
		switch typed := value.(type) {
		case string:
			if strings.HasPrefix(typed, baseURL) {
				if _, ok := seen[typed]; !ok {
					seen[typed] = struct{}{}
					urls = append(urls, typed)
				}
			}
		case map[string]any:
			for _, child := range typed {
				walk(child)
			}
		case []any:
			for _, child := range typed {
				walk(child)
			}
		}
	}
	walk(decoded)
	return urls
}

// Organization pages

func (s *Service) ListPages(ctx context.Context, sess Session) ([]map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	pages, err := s.store.ListOrganizationPages(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, pagePayload(page))
	}
	return items, nil
}

func (s *Service) SavePage(ctx context.Context, sess Session, pageType string, contentConfig json.RawMessage) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if !validPageType(pageType) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown page type %q", pageType), nil)
	}
	if len(contentConfig) == 0 || !json.Valid(contentConfig) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "contentConfig must be valid JSON", nil)
	}
	if err := s.store.UpsertOrganizationPage(ctx, store.OrganizationPage{
		ID:             util.NewID("pg"),
		OrganizationID: orgID,
		PageType:       pageType,
		ContentConfig:  string(contentConfig),
	}); err != nil {
		return nil, err
	}
	page, err := s.store.GetOrganizationPage(ctx, orgID, pageType)
	if err != nil {
		return nil, err
	}
	return pagePayload(page), nil
}

func (s *Service) PublishPage(ctx context.Context, sess Session, pageType string, contentConfig json.RawMessage) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if !validPageType(pageType) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown page type %q", pageType), nil)
	}
	if len(contentConfig) == 0 {
		page, err := s.store.GetOrganizationPage(ctx, orgID, pageType)
		if err != nil {
			return nil, err
		}
		contentConfig = json.RawMessage(page.ContentConfig)
	}

	sections, err := decodeSections(contentConfig)
	if err != nil {
		return nil, err
	}
	if err := validateSections(sections); err != nil {
		return nil, err
	}

	assetURLs := s.collectAssetURLs(contentConfig)
	if err := s.store.PublishOrganizationPage(ctx, orgID, pageType, string(contentConfig), assetURLs); err != nil {
		return nil, err
	}
	if err := s.recomputePublicStatus(ctx, orgID); err != nil {
		return nil, err
	}

	page, err := s.store.GetOrganizationPage(ctx, orgID, pageType)
	if err != nil {
		return nil, err
	}
	return pagePayload(page), nil
}

func (s *Service) UnpublishPage(ctx context.Context, sess Session, pageType string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if !validPageType(pageType) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown page type %q", pageType), nil)
	}
	if err := s.store.SetPagePublished(ctx, orgID, pageType, false); err != nil {
		return nil, err
	}
	if err := s.recomputePublicStatus(ctx, orgID); err != nil {
		return nil, err
	}
	page, err := s.store.GetOrganizationPage(ctx, orgID, pageType)
	if err != nil {
		return nil, err
	}
	return pagePayload(page), nil
}

// Uploads

func (s *Service) CreateUpload(ctx context.Context, sess Session, filename, contentType string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	if s.blob == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage not configured", nil)
	}

	uploadID := util.NewID("up")
	objectKey := orgID + "/" + uploadID + strings.ToLower(path.Ext(filename))
	uploadURL, err := s.blob.PresignUpload(ctx, objectKey, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	publicURL := s.blob.PublicURL(objectKey)

	if err := s.store.InsertUpload(ctx, store.Upload{
		ID:             uploadID,
		OrganizationID: orgID,
		ObjectKey:      objectKey,
		URL:            publicURL,
		ContentType:    contentType,
		Status:         "pending",
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"uploadId":  uploadID,
		"uploadUrl": uploadURL,
		"publicUrl": publicURL,
	}, nil
}

// GetUpload reports whether an issued upload is still pending or has been
// confirmed by a publish that references it.
func (s *Service) GetUpload(ctx context.Context, sess Session, uploadID string) (map[string]any, error) {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return nil, err
	}
	upload, err := s.store.GetUpload(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"uploadId":    upload.ID,
		"publicUrl":   upload.URL,
		"contentType": upload.ContentType,
		"status":      upload.Status,
		"createdAt":   upload.CreatedAt,
	}, nil
}

// AbandonUpload deletes a pending upload and its stored object. Confirmed
// uploads are referenced by published content and cannot be abandoned.
func (s *Service) AbandonUpload(ctx context.Context, sess Session, uploadID string) error {
	orgID, err := s.orgScope(sess)
	if err != nil {
		return err
	}
	upload, err := s.store.GetUpload(ctx, orgID, uploadID)
	if err != nil {
		return err
	}
	if upload.Status != "pending" {
		return domainError(http.StatusConflict, "UPLOAD_CONFIRMED", "Upload is referenced by published content", nil)
	}
	if err := s.store.DeleteUpload(ctx, orgID, uploadID); err != nil {
		return err
	}
	if s.blob != nil {
		if err := s.blob.Remove(ctx, upload.ObjectKey); err != nil {
			log.Printf("uploads: remove object %s: %v", upload.ObjectKey, err)
		}
	}
	return nil
}

// Payload shaping

func campaignPayload(campaign store.Campaign) map[string]any {
	var defaultDesignationID any
	if campaign.DefaultDesignationID != nil {
		defaultDesignationID = *campaign.DefaultDesignationID
	}
	return map[string]any{
		"id":                   campaign.ID,
		"internalName":         campaign.InternalName,
		"externalName":         campaign.ExternalName,
		"slug":                 campaign.Slug,
		"defaultDesignationId": defaultDesignationID,
		"goalAmount":           campaign.GoalAmount,
		"icon":                 campaign.Icon,
		"pageConfig":           rawJSON(campaign.PageConfig),
		"isActive":             campaign.IsActive,
		"createdAt":            campaign.CreatedAt,
		"updatedAt":            campaign.UpdatedAt,
	}
}

func designationPayload(designation store.Designation) map[string]any {
	return map[string]any{
		"id":          designation.ID,
		"name":        designation.Name,
		"description": designation.Description,
		"goalAmount":  designation.GoalAmount,
		"isArchived":  designation.IsArchived,
		"createdAt":   designation.CreatedAt,
		"updatedAt":   designation.UpdatedAt,
	}
}

func questionPayload(question store.CampaignQuestion) map[string]any {
	options := question.Options
	if strings.TrimSpace(options) == "" {
		options = "[]"
	}
	return map[string]any{
		"id":           question.ID,
		"questionText": question.QuestionText,
		"questionType": question.QuestionType,
		"options":      json.RawMessage(options),
		"isRequired":   question.IsRequired,
		"displayOrder": question.DisplayOrder,
	}
}

func pagePayload(page store.OrganizationPage) map[string]any {
	return map[string]any{
		"id":            page.ID,
		"pageType":      page.PageType,
		"contentConfig": rawJSON(page.ContentConfig),
		"isPublished":   page.IsPublished,
		"updatedAt":     page.UpdatedAt,
	}
}

func revisionPayload(revision store.RevisionInfo) map[string]any {
	return map[string]any{
		"hash":      revision.Hash,
		"message":   revision.Message,
		"author":    revision.Author,
		"createdAt": revision.CreatedAt,
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
