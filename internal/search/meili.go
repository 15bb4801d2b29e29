package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxCampaigns    = "donorbase_campaigns"
	idxDesignations = "donorbase_designations"
	idxDonations    = "donorbase_donations"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// The caller should proceed without search if the initial connection fails.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxCampaigns,
			primaryKey: "id",
			filterable: []string{"organizationId", "isActive"},
			searchable: []string{"internalName", "externalName", "slug"},
		},
		{
			uid:        idxDesignations,
			primaryKey: "id",
			filterable: []string{"organizationId", "isArchived"},
			searchable: []string{"name", "description"},
		},
		{
			uid:        idxDonations,
			primaryKey: "id",
			filterable: []string{"organizationId", "campaignId", "status"},
			searchable: []string{"donorName", "donorEmail"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
// Every query carries an organizationId filter.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.OrganizationID == "" {
		return nil, 0, fmt.Errorf("search requires an organization filter")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxCampaigns, ResultCampaign},
		{idxDesignations, ResultDesignation},
		{idxDonations, ResultDonation},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
			Filter:                []string{fmt.Sprintf("organizationId = %q", q.OrganizationID)},
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxCampaigns:
		return ResultCampaign
	case idxDesignations:
		return ResultDesignation
	case idxDonations:
		return ResultDonation
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.OrganizationID = decodeString(hit, "organizationId")
	r.CampaignID = decodeString(hit, "campaignId")

	switch rtyp {
	case ResultCampaign:
		r.Title = firstNonBlank(decodeFormattedString(hit, "internalName"), decodeString(hit, "internalName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "externalName"), decodeString(hit, "externalName"))
		r.CampaignID = r.ID
	case ResultDesignation:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	case ResultDonation:
		r.Title = firstNonBlank(decodeFormattedString(hit, "donorName"), decodeString(hit, "donorName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "donorEmail"), decodeString(hit, "donorEmail"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexCampaign adds or updates a campaign in the search index.
func (m *Meili) IndexCampaign(c CampaignRecord) error {
	_, err := m.client.Index(idxCampaigns).AddDocuments([]CampaignRecord{c}, nil)
	return err
}

// IndexDesignation adds or updates a designation in the search index.
func (m *Meili) IndexDesignation(d DesignationRecord) error {
	_, err := m.client.Index(idxDesignations).AddDocuments([]DesignationRecord{d}, nil)
	return err
}

// IndexDonation adds or updates a donation in the search index.
func (m *Meili) IndexDonation(d DonationRecord) error {
	_, err := m.client.Index(idxDonations).AddDocuments([]DonationRecord{d}, nil)
	return err
}

// DeleteCampaign removes a campaign from the search index.
func (m *Meili) DeleteCampaign(id string) error {
	_, err := m.client.Index(idxCampaigns).DeleteDocument(id, nil)
	return err
}

// DeleteDesignation removes a designation from the search index.
func (m *Meili) DeleteDesignation(id string) error {
	_, err := m.client.Index(idxDesignations).DeleteDocument(id, nil)
	return err
}

// IndexCampaigns bulk-indexes campaigns.
func (m *Meili) IndexCampaigns(campaigns []CampaignRecord) error {
	if len(campaigns) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCampaigns).AddDocuments(campaigns, nil)
	return err
}

// IndexDesignations bulk-indexes designations.
func (m *Meili) IndexDesignations(designations []DesignationRecord) error {
	if len(designations) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDesignations).AddDocuments(designations, nil)
	return err
}

// IndexDonations bulk-indexes donation records.
func (m *Meili) IndexDonations(donations []DonationRecord) error {
	if len(donations) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDonations).AddDocuments(donations, nil)
	return err
}
