package search

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	defaultSuggestLimit = 10
	maxSuggestLimit     = 25
)

func clampSuggestLimit(limit int) int {
	if limit < 1 {
		return defaultSuggestLimit
	}
	if limit > maxSuggestLimit {
		return maxSuggestLimit
	}
	return limit
}

// Suggest returns typeahead candidates for a prefix: hashtags and labels by
// prefix match, plus a handful of recent entities by substring match. The
// three categories run concurrently and each degrades to empty on failure so
// a broken source never takes the whole response down.
func (e *Engine) Suggest(ctx context.Context, tenantID, prefix string, limit int) *Suggestions {
	start := time.Now()
	limit = clampSuggestLimit(limit)
	prefix = strings.TrimSpace(prefix)

	out := &Suggestions{
		Hashtags: []string{},
		Labels:   []LabelSuggestion{},
		Entities: []EntitySuggestion{},
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		tags, err := e.suggestHashtags(ctx, tenantID, prefix, limit)
		if err != nil {
			log.Printf("suggest hashtags: %v", err)
			return
		}
		out.Hashtags = tags
	}()
	go func() {
		defer wg.Done()
		labels, err := e.suggestLabels(ctx, tenantID, prefix, limit)
		if err != nil {
			log.Printf("suggest labels: %v", err)
			return
		}
		out.Labels = labels
	}()
	go func() {
		defer wg.Done()
		out.Entities = e.suggestEntities(ctx, tenantID, prefix, limit)
	}()
	wg.Wait()

	out.DurationMs = time.Since(start).Milliseconds()
	return out
}

func (e *Engine) suggestHashtags(ctx context.Context, tenantID, prefix string, limit int) ([]string, error) {
	b := &builder{}
	query := fmt.Sprintf(`SELECT h.tag FROM hashtags h
WHERE h.tenant_id = %s AND h.tag ILIKE %s
ORDER BY h.tag ASC
LIMIT %s`, b.bind(tenantID), b.bind(prefixPattern(strings.TrimPrefix(prefix, "#"))), b.bind(limit))

	rows, err := e.q.queryContext(ctx, query, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (e *Engine) suggestLabels(ctx context.Context, tenantID, prefix string, limit int) ([]LabelSuggestion, error) {
	b := &builder{}
	pattern := b.bind(prefixPattern(prefix))
	query := fmt.Sprintf(`SELECT l.id, l.code, l.name, l.color_hex FROM labels l
WHERE l.tenant_id = %s AND (l.code ILIKE %s OR l.name ILIKE %s)
ORDER BY l.code ASC
LIMIT %s`, b.bind(tenantID), pattern, pattern, b.bind(limit))

	rows, err := e.q.queryContext(ctx, query, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []LabelSuggestion{}
	for rows.Next() {
		var l LabelSuggestion
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.ColorHex); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// suggestEntities queries every source for recent items matching the prefix
// as a substring. The per-source share is limit/5, at least one each. A
// failing source is logged and skipped rather than failing the category.
func (e *Engine) suggestEntities(ctx context.Context, tenantID, prefix string, limit int) []EntitySuggestion {
	items := []EntitySuggestion{}
	if prefix == "" {
		return items
	}

	perSource := limit / len(e.adapters)
	if perSource < 1 {
		perSource = 1
	}
	pattern := likePattern(prefix)

	for _, a := range e.adapters {
		b := &builder{}
		query := a.suggestQuery(b, tenantID, pattern, perSource)
		rows, err := e.q.queryContext(ctx, query, b.args...)
		if err != nil {
			log.Printf("suggest %s entities: %v", a.typ(), err)
			continue
		}
		batch, err := scanEntitySuggestions(rows)
		rows.Close()
		if err != nil {
			log.Printf("suggest %s entities: %v", a.typ(), err)
			continue
		}
		items = append(items, batch...)
	}
	return items
}

func scanEntitySuggestions(rows rowIter) ([]EntitySuggestion, error) {
	var batch []EntitySuggestion
	for rows.Next() {
		var s EntitySuggestion
		var typ string
		if err := rows.Scan(&typ, &s.ID, &s.Title); err != nil {
			return nil, err
		}
		s.Type = EntityType(typ)
		batch = append(batch, s)
	}
	return batch, rows.Err()
}
