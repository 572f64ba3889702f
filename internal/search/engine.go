package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// querier is the slice of *sql.DB the engine needs. Tests substitute a fake.
type querier interface {
	queryContext(ctx context.Context, query string, args ...any) (rowIter, error)
	queryRowContext(ctx context.Context, query string, args ...any) rowScanner
}

type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

type dbQuerier struct {
	db *sql.DB
}

func (d dbQuerier) queryContext(ctx context.Context, query string, args ...any) (rowIter, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func (d dbQuerier) queryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Engine runs federated queries across the entity sources of one database.
type Engine struct {
	q        querier
	adapters []adapter
}

func NewEngine(db *sql.DB) *Engine {
	return newEngine(dbQuerier{db: db})
}

func newEngine(q querier) *Engine {
	return &Engine{
		q: q,
		adapters: []adapter{
			patientAdapter{},
			sessionAdapter{},
			interviewAdapter{},
			attemptAdapter{},
			attachmentAdapter{},
		},
	}
}

// plan returns the adapters the query asks for, in registration order.
// Unknown types are ignored here; the HTTP layer rejects them before the
// engine ever sees one.
func (e *Engine) plan(types []EntityType) []adapter {
	if len(types) == 0 {
		return e.adapters
	}
	want := make(map[EntityType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var picked []adapter
	for _, a := range e.adapters {
		if want[a.typ()] {
			picked = append(picked, a)
		}
	}
	return picked
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampPageSize(size int) int {
	if size < 1 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// Search runs one federated query and returns a globally ranked page.
// All sources are combined into a single UNION ALL statement so that the
// whole request shares one ordering, one total and one cancellation point.
func (e *Engine) Search(ctx context.Context, q Query) (*Page, error) {
	start := time.Now()
	page := clampPage(q.Page)
	pageSize := clampPageSize(q.PageSize)

	out := &Page{Page: page, PageSize: pageSize, Items: []ResultItem{}}
	plan := e.plan(q.Types)
	if len(plan) == 0 {
		out.DurationMs = time.Since(start).Milliseconds()
		return out, nil
	}

	b := &builder{}
	subs := make([]string, len(plan))
	for i, a := range plan {
		subs[i] = a.searchQuery(b, q)
	}
	union := strings.Join(subs, "\nUNION ALL\n")

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM (\n%s\n) results", union)
	if err := e.q.queryRowContext(ctx, countSQL, b.args...).Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("count search results: %w", err)
	}

	pageSQL := fmt.Sprintf(`SELECT type, id, title, snippet, updated_at, parent_id, rank_bucket FROM (
%s
) results
ORDER BY rank_bucket ASC, updated_at DESC NULLS LAST, id ASC
LIMIT %s OFFSET %s`, union, b.bind(pageSize), b.bind((page-1)*pageSize))

	rows, err := e.q.queryContext(ctx, pageSQL, b.args...)
	if err != nil {
		return nil, fmt.Errorf("run search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    ResultItem
			typ     string
			snippet sql.NullString
			updated sql.NullTime
			parent  sql.NullString
			bucket  int
		)
		if err := rows.Scan(&typ, &item.ID, &item.Title, &snippet, &updated, &parent, &bucket); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		item.Type = EntityType(typ)
		if snippet.Valid {
			item.Snippet = snippet.String
		}
		if updated.Valid {
			t := updated.Time
			item.UpdatedAt = &t
		}
		if parent.Valid {
			item.ParentID = parent.String
		}
		item.URL = ResolveLink(item.Type, item.ID, item.ParentID)
		out.Items = append(out.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}

	out.DurationMs = time.Since(start).Milliseconds()
	return out, nil
}
