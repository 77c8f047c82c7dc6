package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxOpportunities = "linkboard_opportunities"
	idxResources     = "linkboard_resources"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the listing indexes.
// An unreachable server is tolerated; the health loop keeps probing.
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
	for _, uid := range []string{idxOpportunities, idxResources} {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", uid, err)
		}

		index := m.client.Index(uid)
		filterable := []interface{}{"officeId"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", uid, err)
		}
		searchable := []string{"title", "description", "keywords", "shortLink"}
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", uid, err)
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

// Search queries both listing indexes (or one when q.Kind filters) and merges.
func (m *Meili) Search(q Query) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targets := []struct {
		uid  string
		kind Kind
	}{
		{idxOpportunities, KindOpportunity},
		{idxResources, KindResource},
	}

	for _, target := range targets {
		if q.Kind != "" && q.Kind != target.kind {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID: target.uid,
			Query:    q.Text,
			Limit:    limit,
		}
		if q.OfficeID != "" {
			sr.Filter = []string{fmt.Sprintf("officeId = %q", q.OfficeID)}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	for _, sr := range resp.Results {
		kind := KindOpportunity
		if sr.IndexUID == idxResources {
			kind = KindResource
		}
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, kind))
		}
	}
	return results, nil
}

// Index pushes a listing record into its kind's index.
func (m *Meili) Index(kind Kind, record Record) error {
	_, err := m.client.Index(indexFor(kind)).AddDocuments([]Record{record}, nil)
	return err
}

// Delete removes a listing from its kind's index.
func (m *Meili) Delete(kind Kind, id string) error {
	_, err := m.client.Index(indexFor(kind)).DeleteDocument(id, nil)
	return err
}

func indexFor(kind Kind) string {
	if kind == KindResource {
		return idxResources
	}
	return idxOpportunities
}

func hitToResult(hit meili.Hit, kind Kind) Result {
	return Result{
		Kind:      kind,
		ID:        decodeString(hit, "id"),
		Title:     decodeString(hit, "title"),
		Snippet:   decodeString(hit, "description"),
		ShortLink: decodeString(hit, "shortLink"),
		OfficeID:  decodeString(hit, "officeId"),
	}
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
