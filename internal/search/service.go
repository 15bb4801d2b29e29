package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexCampaign indexes a campaign (fire-and-forget to Meilisearch).
func (s *Service) IndexCampaign(c CampaignRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCampaign(c); err != nil {
			log.Printf("search: index campaign %s: %v", c.ID, err)
		}
	}()
}

// IndexDesignation indexes a designation (fire-and-forget to Meilisearch).
func (s *Service) IndexDesignation(d DesignationRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDesignation(d); err != nil {
			log.Printf("search: index designation %s: %v", d.ID, err)
		}
	}()
}

// IndexDonation indexes a donation (fire-and-forget to Meilisearch).
func (s *Service) IndexDonation(d DonationRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDonation(d); err != nil {
			log.Printf("search: index donation %s: %v", d.ID, err)
		}
	}()
}

// DeleteCampaign removes a campaign from the search index (fire-and-forget).
func (s *Service) DeleteCampaign(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCampaign(id); err != nil {
			log.Printf("search: delete campaign %s: %v", id, err)
		}
	}()
}

// DeleteDesignation removes a designation from the search index (fire-and-forget).
func (s *Service) DeleteDesignation(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDesignation(id); err != nil {
			log.Printf("search: delete designation %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(campaigns []CampaignRecord, designations []DesignationRecord, donations []DonationRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(campaigns) > 0 {
		if err := s.meili.IndexCampaigns(campaigns); err != nil {
			log.Printf("search: reindex campaigns: %v", err)
		}
	}
	if len(designations) > 0 {
		if err := s.meili.IndexDesignations(designations); err != nil {
			log.Printf("search: reindex designations: %v", err)
		}
	}
	if len(donations) > 0 {
		if err := s.meili.IndexDonations(donations); err != nil {
			log.Printf("search: reindex donations: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	campaigns, designations, donations, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(campaigns, designations, donations)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
