package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher with PostgreSQL full-text search over the JSON
// collections written by the Postgres storage backend.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down so is persistence.
func (p *PgFTS) Healthy() bool {
	return true
}

const controlDocument = `concat_ws(' ', e->>'id', e->>'name', e->>'description', e->>'implementationDetails', e->>'owner')`

const evidenceDocument = `concat_ws(' ', e->>'id', e->>'name', e->>'description')`

// buildQuery assembles the count and page queries. Every array element of the
// controls and evidence rows is one candidate document.
func buildQuery(q Query) (countSQL, dataSQL string, args []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args = []any{q.Text}
	argN := 2

	var subQueries []string
	statusFilter := func() string {
		if q.FilterStatus == "" {
			return ""
		}
		clause := fmt.Sprintf(" AND e->>'status' = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
		return clause
	}

	if q.FilterType == "" || q.FilterType == ResultControl {
		where := fmt.Sprintf("c.key = 'controls' AND to_tsvector('english', c.payload::text) @@ %s AND to_tsvector('english', %s) @@ %s",
			tsQuery, controlDocument, tsQuery)
		where += statusFilter()
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'control'::text AS type, e->>'id' AS id, coalesce(e->>'name', '') AS title,
				ts_headline('english', coalesce(e->>'description', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(e->>'status', '') AS status, coalesce(e->>'category', '') AS category,
				ts_rank(to_tsvector('english', %s), %s) AS rank
			FROM collections c, jsonb_array_elements(c.payload) e
			WHERE %s`, tsQuery, controlDocument, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultEvidence {
		where := fmt.Sprintf("c.key = 'evidence' AND to_tsvector('english', %s) @@ %s", evidenceDocument, tsQuery)
		where += statusFilter()
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'evidence'::text AS type, e->>'id' AS id, coalesce(e->>'name', '') AS title,
				ts_headline('english', coalesce(e->>'description', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(e->>'status', '') AS status, ''::text AS category,
				ts_rank(to_tsvector('english', %s), %s) AS rank
			FROM collections c, jsonb_array_elements(c.payload) e
			WHERE %s`, tsQuery, evidenceDocument, tsQuery, where))
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, title, snippet, status, category
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, q.limit(), q.offset())
	return countSQL, dataSQL, args
}

// Search ranks matching controls and evidence with ts_rank and highlights the
// description with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.FilterType != "" && q.FilterType != ResultControl && q.FilterType != ResultEvidence {
		return nil, 0, nil
	}

	countSQL, dataSQL, args := buildQuery(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.Category); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}
