package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// Postgres ILIKE matching.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil when not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) []Result {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(q)
		if err == nil {
			return nonNil(results)
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return []Result{}
	}
	return nonNil(results)
}

// Index pushes a listing into Meilisearch (fire-and-forget).
func (s *Service) Index(kind Kind, record Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Index(kind, record); err != nil {
			log.Printf("search: index %s %s: %v", kind, record.ID, err)
		}
	}()
}

// Delete removes a listing from Meilisearch (fire-and-forget).
func (s *Service) Delete(kind Kind, id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Delete(kind, id); err != nil {
			log.Printf("search: delete %s %s: %v", kind, id, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
