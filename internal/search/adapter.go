package search

import (
	"fmt"
	"strconv"
	"strings"
)

// builder accumulates positional arguments for one composed SQL statement.
// Every clause helper binds through it so placeholder numbering stays
// consistent across all unioned subqueries.
type builder struct {
	args []any
}

func (b *builder) bind(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

// adapter translates a generic query into one entity kind's native matching
// predicate. Adding a searchable entity kind means adding one adapter; the
// planner and merge engine stay type-agnostic.
type adapter interface {
	typ() EntityType

	// searchQuery returns a SELECT contributing this source's matching rows
	// to the union, projecting exactly:
	//   type, id, title, snippet, updated_at, parent_id, rank_bucket
	searchQuery(b *builder, q Query) string

	// suggestQuery returns a small most-recently-updated title match used by
	// the suggestion fast path, projecting: type, id, title.
	suggestQuery(b *builder, tenantID, pattern string, limit int) string
}

// likePattern builds a case-insensitive containment pattern, escaping LIKE
// metacharacters in the user's text.
func likePattern(text string) string {
	return "%" + escapeLike(text) + "%"
}

func prefixPattern(text string) string {
	return escapeLike(text) + "%"
}

func escapeLike(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(text)
}

func textOr(cols []string, pattern string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " ILIKE " + pattern
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// bucketExpr ranks each row: 0 when the free text hits the title, 1 when it
// hits the snippet, 2 otherwise. With no free text everything lands in 2.
func bucketExpr(b *builder, q Query, titleExpr, snippetExpr string) string {
	if q.FreeText == "" {
		return "2"
	}
	pattern := b.bind(likePattern(q.FreeText))
	return fmt.Sprintf("CASE WHEN %s ILIKE %s THEN 0 WHEN %s ILIKE %s THEN 1 ELSE 2 END",
		titleExpr, pattern, snippetExpr, pattern)
}

func labelClause(b *builder, q Query, target EntityType, tenantArg, idExpr string) string {
	codes := b.bind(q.LabelCodes)
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM label_assignments la
		JOIN labels l ON l.id = la.label_id
		WHERE la.tenant_id = %s AND la.target_type = '%s' AND la.target_id = %s AND l.code = ANY(%s)
	)`, tenantArg, target, idExpr, codes)
}

func hashtagClause(b *builder, q Query, target EntityType, tenantArg, idExpr string) string {
	tags := b.bind(q.Hashtags)
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM hashtag_assignments ha
		JOIN hashtags h ON h.id = ha.hashtag_id
		WHERE ha.tenant_id = %s AND ha.target_type = '%s' AND ha.target_id = %s AND h.tag = ANY(%s)
	)`, tenantArg, target, idExpr, tags)
}

// matchClause combines the free text predicate with label and hashtag
// narrowing. The parts join with OR: a row matches when it satisfies the
// text, or carries a requested label, or carries a requested hashtag. When
// no filter set is present the corresponding join is not emitted at all; an
// entirely empty query yields no clause (every tenant row passes).
func matchClause(b *builder, q Query, target EntityType, tenantArg, idExpr string, textCols []string) string {
	var parts []string
	if q.FreeText != "" {
		parts = append(parts, textOr(textCols, b.bind(likePattern(q.FreeText))))
	}
	if len(q.LabelCodes) > 0 {
		parts = append(parts, labelClause(b, q, target, tenantArg, idExpr))
	}
	if len(q.Hashtags) > 0 {
		parts = append(parts, hashtagClause(b, q, target, tenantArg, idExpr))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// dateClause bounds the adapter's freshness timestamp: inclusive from,
// exclusive to.
func dateClause(b *builder, q Query, tsExpr string) string {
	var parts []string
	if q.DateFrom != nil {
		parts = append(parts, tsExpr+" >= "+b.bind(*q.DateFrom))
	}
	if q.DateTo != nil {
		parts = append(parts, tsExpr+" < "+b.bind(*q.DateTo))
	}
	return strings.Join(parts, " AND ")
}

func whereAnd(parts []string) string {
	filtered := parts[:0]
	for _, part := range parts {
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, " AND ")
}
