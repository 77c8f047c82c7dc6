package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher with ILIKE matching as the fallback when
// Meilisearch is not configured or unreachable.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(q Query) ([]Result, error) {
	return p.SearchContext(context.Background(), q)
}

func (p *PgSearch) SearchContext(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + q.Text + "%"
	var subQueries []string
	args := []any{pattern}
	argN := 2

	officeFilter := ""
	if q.OfficeID != "" {
		officeFilter = fmt.Sprintf(" AND office_id = $%d", argN)
		args = append(args, q.OfficeID)
		argN++
	}

	if q.Kind == "" || q.Kind == KindOpportunity {
		subQueries = append(subQueries, `
			SELECT 'opportunity'::text AS kind, id, title, description AS snippet, short_link, office_id
			FROM opportunities
			WHERE (title ILIKE $1 OR description ILIKE $1 OR short_link ILIKE $1)`+officeFilter)
	}

	if q.Kind == "" || q.Kind == KindResource {
		subQueries = append(subQueries, `
			SELECT 'resource'::text AS kind, id, title, description AS snippet, short_link, office_id
			FROM resources
			WHERE (title ILIKE $1 OR description ILIKE $1 OR short_link ILIKE $1 OR keywords::text ILIKE $1)`+officeFilter)
	}

	query := strings.Join(subQueries, "\nUNION ALL\n") + fmt.Sprintf("\nLIMIT $%d", argN)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Kind, &r.ID, &r.Title, &r.Snippet, &r.ShortLink, &r.OfficeID); err != nil {
			return nil, fmt.Errorf("pg search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
